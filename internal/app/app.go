package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"chatbak/internal/backup"
	"chatbak/internal/codec"
	"chatbak/internal/config"
	"chatbak/internal/database"
	"chatbak/internal/encryption"
	"chatbak/internal/index"
	"chatbak/internal/store"
	"chatbak/internal/vault"
)

// Journal records the CLI operations that changed backup state.
type Journal interface {
	CreateOperation(ctx context.Context, operation, parameters string) (*database.Operation, error)
	FinishOperation(ctx context.Context, id int64, status, backupID, errMsg string) error
	ListOperations(ctx context.Context, limit int) ([]*database.Operation, error)
	CheckMigrations() error
	Close() error
}

// PassphraseFunc supplies the passphrase that unlocks the private key.
type PassphraseFunc func() (string, error)

// Options controls how an App is built.
type Options struct {
	// Operation names the CLI command being run, e.g. "CreateBackup".
	Operation string
	// Parameters is a short description of the command's arguments, stored in the journal.
	Parameters string
	// Passphrase is called at most once, the first time an encrypted payload is read.
	Passphrase PassphraseFunc
	// Verbose sends Info records to stderr as well as the log file.
	Verbose bool
	// Stderr receives log output; defaults to os.Stderr.
	Stderr io.Writer
}

// App is the application layer between the CLI and the backup Manager.
// It constructs all dependencies from config, journals mutating commands,
// and releases resources on Close.
type App struct {
	cfg       *config.Config
	journal   Journal
	vault     backup.Vault
	encryptor backup.Encryptor
	manager   *backup.Manager
	op        *Operation
	logger    *slog.Logger
	logFile   *os.File
}

// New creates a fully wired App from cfg. The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v, err := vault.NewVaultFromConfig(ctx, cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if err := v.ValidateSetup(ctx); err != nil {
		return nil, errors.WithHint(fmt.Errorf("validating vault: %w", err),
			"check the [vault] section of the config file")
	}

	collector, err := store.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating data store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	journal, err := database.NewJournalFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := journal.CheckMigrations(); err != nil {
		journal.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	stderrLevel := slog.LevelWarn
	if opts.Verbose {
		stderrLevel = slog.LevelInfo
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, stderr, stderrLevel)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	cdc := codec.New(enc, unlockWith(enc, opts.Passphrase))
	mgr := backup.NewManager(
		index.NewJSONStore(v), v, cdc, collector,
		&slogAdapter{l: logger}, backup.RealClock{}, backup.UUIDGenerator{},
		backup.WithMaxChainDepth(cfg.ChainDepth()),
	)

	return &App{
		cfg:       cfg,
		journal:   journal,
		vault:     v,
		encryptor: enc,
		manager:   mgr,
		op:        NewOperation(opts.Operation, opts.Parameters),
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// unlockWith returns the codec's unlock hook: ask for the passphrase, then
// decrypt the identity with it.
func unlockWith(enc backup.Encryptor, passphrase PassphraseFunc) codec.UnlockFunc {
	return func() (backup.DecryptionContext, error) {
		if passphrase == nil {
			return nil, errors.New("a passphrase is required to read encrypted backups")
		}
		p, err := passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		return enc.Unlock(p)
	}
}

// persistOperation saves the operation to the journal, giving it an auto-increment ID.
// This should only be called for commands that change backup state.
func (a *App) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.journal.CreateOperation(ctx, a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// InitKeys generates the encryption key pair protected by passphrase.
func (a *App) InitKeys(ctx context.Context, passphrase string) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	err := a.encryptor.Setup(passphrase)
	if errors.Is(err, encryption.ErrKeysExist) {
		err = errors.WithHint(err, "existing encrypted backups depend on these keys; move them aside only if you are sure")
	}
	a.op.Fail(err)
	if err == nil {
		a.logger.Info("encryption keys created")
	}
	return err
}

// CreateBackup creates a full backup. A zero KeepDays falls back to the configured retention.
func (a *App) CreateBackup(ctx context.Context, opts backup.CreateOptions) (*backup.BackupRecord, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	if opts.KeepDays == 0 {
		opts.KeepDays = a.cfg.Retention.KeepDays
	}
	rec, err := a.manager.CreateBackup(ctx, opts)
	a.track(rec, err)
	return rec, err
}

// CreateIncrementalBackup creates an incremental backup on top of baseID.
func (a *App) CreateIncrementalBackup(ctx context.Context, baseID string, opts backup.IncrementalOptions) (*backup.BackupRecord, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	rec, err := a.manager.CreateIncrementalBackup(ctx, baseID, opts)
	a.track(rec, err)
	return rec, err
}

// RestoreBackup restores id. Previews are read-only and are not journaled.
func (a *App) RestoreBackup(ctx context.Context, id string, opts backup.RestoreOptions) (*backup.RestoreResult, error) {
	if !opts.Preview {
		if err := a.persistOperation(ctx); err != nil {
			return nil, err
		}
	}
	res, err := a.manager.RestoreBackup(ctx, id, opts)
	a.op.BackupID = id
	a.op.Fail(err)
	return res, err
}

// ListBackups returns the backups matching f, newest first.
func (a *App) ListBackups(ctx context.Context, f backup.Filter) ([]*backup.BackupRecord, error) {
	return a.manager.ListBackups(ctx, f)
}

// ShowBackup returns the record for id and the chain needed to restore it.
func (a *App) ShowBackup(ctx context.Context, id string) (*backup.BackupRecord, []*backup.BackupRecord, error) {
	rec, err := a.manager.GetBackup(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	chain, err := a.manager.Chain(ctx, id)
	if err != nil {
		return rec, nil, err
	}
	return rec, chain, nil
}

// DeleteBackup deletes id, and its dependents when cascade is set.
func (a *App) DeleteBackup(ctx context.Context, id string, opts backup.DeleteOptions) ([]string, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	deleted, err := a.manager.DeleteBackup(ctx, id, opts)
	a.op.BackupID = id
	a.op.Fail(err)
	return deleted, err
}

// CleanOldBackups applies retention. A negative days uses the configured keep_days.
func (a *App) CleanOldBackups(ctx context.Context, days int) (*backup.CleanupResult, error) {
	if days < 0 {
		days = a.cfg.Retention.KeepDays
		if days <= 0 {
			return nil, errors.WithHint(errors.New("no retention period given"),
				"pass the number of days to keep or set retention.keep_days in the config file")
		}
	}
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	res, err := a.manager.CleanOldBackups(ctx, days)
	a.op.Fail(err)
	return res, err
}

// ExportBackup writes a self-contained copy of id to path.
func (a *App) ExportBackup(ctx context.Context, id, path string, format backup.ExportFormat) (int64, error) {
	n, err := a.manager.ExportBackup(ctx, id, path, format)
	a.op.BackupID = id
	a.op.Fail(err)
	return n, err
}

// ImportBackup registers the snapshot in path as a new imported backup.
func (a *App) ImportBackup(ctx context.Context, path string, opts backup.ImportOptions) (*backup.BackupRecord, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	rec, err := a.manager.ImportBackup(ctx, path, opts)
	a.track(rec, err)
	return rec, err
}

// GetHistory returns the most recent journaled operations.
func (a *App) GetHistory(ctx context.Context, limit int) ([]*database.Operation, error) {
	return a.journal.ListOperations(ctx, limit)
}

func (a *App) track(rec *backup.BackupRecord, err error) {
	if rec != nil {
		a.op.BackupID = rec.ID
	}
	a.op.Fail(err)
}

// Close finishes the journaled operation, if any, and closes all resources.
func (a *App) Close(ctx context.Context) error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.journal.FinishOperation(ctx, a.op.ID, a.op.Status, a.op.BackupID, a.op.Err); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}
	if err := a.journal.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
