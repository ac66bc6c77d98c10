package database

import (
	"fmt"
	"path/filepath"

	"chatbak/internal/config"
)

// journalFile is the SQLite file name inside DatabaseConfig.DataDir.
const journalFile = "journal.db"

// NewJournalFromConfig creates a journal based on the database config type.
func NewJournalFromConfig(cfg config.DatabaseConfig) (*SQLiteJournal, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteJournal(filepath.Join(cfg.DataDir, journalFile))
	case "memory":
		return NewSQLiteJournal(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
