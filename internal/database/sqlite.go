package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatbak/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Operation statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation is one journaled CLI invocation.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string
	BackupID   string
	Error      string
}

// Duration returns how long the operation ran, or 0 if it never finished.
func (o *Operation) Duration() time.Duration {
	if !o.FinishedAt.Valid {
		return 0
	}
	return o.FinishedAt.Time.Sub(o.StartedAt)
}

// SQLiteJournal records operations in a SQLite database.
type SQLiteJournal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteJournal opens the journal at path, or ":memory:" for an in-memory
// journal, and applies pending migrations.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}

	return &SQLiteJournal{db: db, path: path, now: time.Now}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// An in-memory database is limited to one connection so every query sees the same data.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	return db, nil
}

// CreateOperation inserts a running operation and returns it with its id.
func (s *SQLiteJournal) CreateOperation(ctx context.Context, operation, parameters string) (*Operation, error) {
	op := &Operation{
		StartedAt:  s.now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     StatusRunning,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

// FinishOperation marks operation id finished with status. backupID and
// errMsg may be empty.
func (s *SQLiteJournal) FinishOperation(ctx context.Context, id int64, status, backupID, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operations SET finished_at = ?, status = ?, backup_id = ?, error = ? WHERE id = ?`,
		s.now().UTC(), status, backupID, errMsg, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

// ListOperations returns up to limit operations, newest first.
func (s *SQLiteJournal) ListOperations(ctx context.Context, limit int) ([]*Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, operation, parameters, status, backup_id, error
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.StartedAt, &op.FinishedAt, &op.Operation,
			&op.Parameters, &op.Status, &op.BackupID, &op.Error); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// MaxOperationID returns the highest operation id, or 0 for an empty journal.
func (s *SQLiteJournal) MaxOperationID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max operation id: %w", err)
	}
	return id, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteJournal) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteJournal) CheckMigrations() error {
	return migrations.Check(s.db)
}

// Close closes the database connection.
func (s *SQLiteJournal) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
