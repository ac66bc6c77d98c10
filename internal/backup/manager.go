package backup

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultMaxChainDepth bounds how many records chain resolution will follow.
const DefaultMaxChainDepth = 64

// Manager is the orchestration layer of the backup engine. It coordinates
// the collector, codec, vault and index store to create, resolve, restore
// and remove backups. It holds no index state between calls.
type Manager struct {
	index         IndexStore
	vault         Vault
	codec         Codec
	collector     Collector
	logger        Logger
	clock         Clock
	idgen         IDGenerator
	maxChainDepth int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxChainDepth sets the chain resolution depth limit. Non-positive values are ignored.
func WithMaxChainDepth(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxChainDepth = n
		}
	}
}

// NewManager creates a Manager with the provided dependencies.
func NewManager(index IndexStore, vault Vault, codec Codec, collector Collector, logger Logger, clock Clock, idgen IDGenerator, opts ...Option) *Manager {
	m := &Manager{
		index:         index,
		vault:         vault,
		codec:         codec,
		collector:     collector,
		logger:        logger,
		clock:         clock,
		idgen:         idgen,
		maxChainDepth: DefaultMaxChainDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateOptions controls CreateBackup.
type CreateOptions struct {
	Encrypt     bool
	KeepDays    int // when positive, retention cleanup runs after the backup is registered
	Description string
}

// IncrementalOptions controls CreateIncrementalBackup.
type IncrementalOptions struct {
	Description string
}

// CreateBackup collects every domain and stores it as a new full backup.
// No record is registered unless the payload was written. If KeepDays is set,
// the returned error may report a cleanup failure alongside a valid record.
func (m *Manager) CreateBackup(ctx context.Context, opts CreateOptions) (*BackupRecord, error) {
	current, err := m.collect()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now().UTC()
	rec := &BackupRecord{
		ID:          newBackupID(now, m.idgen.New()),
		Kind:        KindFull,
		CreatedAt:   now,
		Encrypted:   opts.Encrypt,
		Description: opts.Description,
	}
	rec.StoragePath = payloadName(rec.ID)

	data, err := m.codec.Encode(current, opts.Encrypt)
	if err != nil {
		return nil, opError("create", rec.ID, "", fmt.Errorf("encoding snapshot: %w", err))
	}

	if err := m.register(ctx, rec, data); err != nil {
		return nil, opError("create", rec.ID, "", err)
	}
	m.logger.Info("backup created", "backup_id", rec.ID, "kind", rec.Kind, "size", rec.SizeBytes, "encrypted", rec.Encrypted)

	if opts.KeepDays > 0 {
		if _, err := m.CleanOldBackups(ctx, opts.KeepDays); err != nil {
			return rec, fmt.Errorf("backup %s created but retention cleanup failed: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// CreateIncrementalBackup stores the domains that changed since baseID as a
// new incremental backup. The base may itself be incremental; its chain is
// resolved first. The new backup inherits the base's encryption flag. An
// empty change set is still recorded.
func (m *Manager) CreateIncrementalBackup(ctx context.Context, baseID string, opts IncrementalOptions) (*BackupRecord, error) {
	idx, err := m.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	base, ok := idx.Get(baseID)
	if !ok {
		return nil, baseNotFound("incremental", baseID)
	}

	baseSnap, err := m.resolve(ctx, idx, base)
	if err != nil {
		return nil, err
	}

	current, err := m.collect()
	if err != nil {
		return nil, err
	}

	changes, err := Diff(baseSnap, current)
	if err != nil {
		return nil, opError("incremental", baseID, "", fmt.Errorf("computing changes: %w", err))
	}

	now := m.clock.Now().UTC()
	basedOn := base.ID
	rec := &BackupRecord{
		ID:          newBackupID(now, m.idgen.New()),
		Kind:        KindIncremental,
		CreatedAt:   now,
		Encrypted:   base.Encrypted,
		BasedOn:     &basedOn,
		Description: opts.Description,
	}
	rec.StoragePath = payloadName(rec.ID)

	data, err := m.codec.Encode(Snapshot(changes), rec.Encrypted)
	if err != nil {
		return nil, opError("incremental", rec.ID, "", fmt.Errorf("encoding changes: %w", err))
	}

	if err := m.register(ctx, rec, data); err != nil {
		return nil, opError("incremental", rec.ID, "", err)
	}

	changed := make([]string, 0, len(changes))
	for _, d := range changes.Domains() {
		changed = append(changed, string(d))
	}
	m.logger.Info("incremental backup created", "backup_id", rec.ID, "based_on", base.ID,
		"changed", strings.Join(changed, ","), "size", rec.SizeBytes)
	return rec, nil
}

// ListBackups returns the records matching f, newest first.
func (m *Manager) ListBackups(ctx context.Context, f Filter) ([]*BackupRecord, error) {
	idx, err := m.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	return idx.List(f), nil
}

// GetBackup returns the record for id.
func (m *Manager) GetBackup(ctx context.Context, id string) (*BackupRecord, error) {
	idx, err := m.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := idx.Get(id)
	if !ok {
		return nil, notFound("get", id)
	}
	return rec, nil
}

// DeleteOptions controls DeleteBackup.
type DeleteOptions struct {
	// Cascade also deletes every incremental backup whose chain passes through the target.
	Cascade bool
}

// DeleteBackup removes a backup's payload and then its index entry. A backup
// that others are based on is only deleted with Cascade, in which case its
// descendants are deleted first. Returns the ids deleted.
func (m *Manager) DeleteBackup(ctx context.Context, id string, opts DeleteOptions) ([]string, error) {
	idx, err := m.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := idx.Get(id)
	if !ok {
		return nil, notFound("delete", id)
	}

	descendants := idx.Descendants(id)
	if len(descendants) > 0 && !opts.Cascade {
		ids := make([]string, len(descendants))
		for i, d := range descendants {
			ids[i] = d.ID
		}
		return nil, errors.WithHint(
			opError("delete", id, "", fmt.Errorf("%w: %s", ErrHasDependents, strings.Join(ids, ", "))),
			"delete the dependents first or pass --cascade to delete them together")
	}

	var deleted []string
	for _, r := range append(descendants, rec) {
		if err := m.deleteRecord(ctx, idx, r); err != nil {
			return deleted, opError("delete", r.ID, "", err)
		}
		deleted = append(deleted, r.ID)
		m.logger.Info("backup deleted", "backup_id", r.ID, "kind", r.Kind)
	}
	return deleted, nil
}

// CleanupResult reports the outcome of retention cleanup.
type CleanupResult struct {
	Cutoff     time.Time
	Deleted    []string
	Failed     []string
	SpaceFreed int64
	// Orphaned lists surviving incremental backups whose chain lost a base
	// during this cleanup; they can no longer be restored.
	Orphaned []string
}

// CleanOldBackups deletes every backup created strictly before now minus
// days, exactly as DeleteBackup would but without the dependents check.
// Surviving incrementals whose base was removed are reported as orphaned.
func (m *Manager) CleanOldBackups(ctx context.Context, days int) (*CleanupResult, error) {
	if days < 0 {
		return nil, fmt.Errorf("retention days must not be negative: %d", days)
	}

	idx, err := m.index.Load(ctx)
	if err != nil {
		return nil, err
	}

	// Calendar arithmetic in UTC keeps whole 24h days and cannot overflow for large periods.
	result := &CleanupResult{Cutoff: m.clock.Now().UTC().AddDate(0, 0, -days)}
	var firstErr error
	for _, r := range idx.Records() {
		if !r.CreatedAt.Before(result.Cutoff) {
			continue
		}
		if err := m.deleteRecord(ctx, idx, r); err != nil {
			result.Failed = append(result.Failed, r.ID)
			m.logger.Error("retention delete failed", "backup_id", r.ID, "error", err)
			if firstErr == nil {
				firstErr = opError("clean", r.ID, "", err)
			}
			continue
		}
		result.Deleted = append(result.Deleted, r.ID)
		result.SpaceFreed += r.SizeBytes
	}

	if len(result.Deleted) > 0 {
		deleted := make(map[string]bool, len(result.Deleted))
		for _, id := range result.Deleted {
			deleted[id] = true
		}
		for _, r := range idx.List(Filter{Kind: KindIncremental}) {
			if lost := brokenBy(idx, r, deleted); lost != "" {
				result.Orphaned = append(result.Orphaned, r.ID)
				m.logger.Warn("incremental backup orphaned by retention cleanup", "backup_id", r.ID, "removed_base", lost)
			}
		}
	}

	m.logger.Info("retention cleanup complete", "days", days, "deleted", len(result.Deleted), "freed", result.SpaceFreed)
	if firstErr != nil {
		return result, fmt.Errorf("deleting %d of %d stale backups failed: %w",
			len(result.Failed), len(result.Failed)+len(result.Deleted), firstErr)
	}
	return result, nil
}

// brokenBy walks r's chain and returns the first missing base that is in
// removed, or "" if the chain is intact or was already broken elsewhere.
func brokenBy(idx *Index, r *BackupRecord, removed map[string]bool) string {
	seen := map[string]bool{r.ID: true}
	for cur := r; cur.Kind == KindIncremental; {
		base := cur.Base()
		next, ok := idx.Get(base)
		if !ok {
			if removed[base] {
				return base
			}
			return ""
		}
		if seen[base] {
			return ""
		}
		seen[base] = true
		cur = next
	}
	return ""
}

// collect reads every known domain from the collector.
func (m *Manager) collect() (Snapshot, error) {
	s := make(Snapshot, len(allDomains))
	for _, d := range allDomains {
		v, err := m.collector.Collect(d)
		if err != nil {
			return nil, opError("collect", "", d, fmt.Errorf("%w: %w", ErrCollection, err))
		}
		if len(v) == 0 {
			v = []byte("null")
		}
		s[d] = v
	}
	return s, nil
}

// register writes the payload and then inserts rec into a freshly loaded
// index. If anything after the payload write fails, the payload is removed
// so no unreferenced file is left behind.
func (m *Manager) register(ctx context.Context, rec *BackupRecord, data []byte) error {
	rec.SizeBytes = int64(len(data))
	if err := m.vault.PutObject(ctx, rec.StoragePath, bytes.NewReader(data), rec.SizeBytes); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}

	idx, err := m.index.Load(ctx)
	if err == nil {
		err = idx.Insert(rec)
	}
	if err == nil {
		err = m.index.Save(ctx, idx)
	}
	if err != nil {
		if derr := m.vault.DeleteObject(ctx, rec.StoragePath); derr != nil {
			m.logger.Warn("removing unregistered payload failed", "backup_id", rec.ID, "error", derr)
		}
		return fmt.Errorf("registering backup: %w", err)
	}
	return nil
}

// deleteRecord removes the payload first and the index entry second, saving
// the index immediately. A crash in between leaves an entry pointing at a
// missing file rather than an untracked file.
func (m *Manager) deleteRecord(ctx context.Context, idx *Index, r *BackupRecord) error {
	if err := m.vault.DeleteObject(ctx, r.StoragePath); err != nil {
		return fmt.Errorf("deleting payload: %w", err)
	}
	idx.Remove(r.ID)
	if err := m.index.Save(ctx, idx); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	return nil
}
