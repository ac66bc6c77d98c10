package backup

import "context"

// RestoreOptions controls RestoreBackup.
type RestoreOptions struct {
	// Preview resolves the backup and reports per-domain item counts without writing anything.
	Preview bool
	// Overwrite replaces each domain's state; otherwise restored values are merged in.
	Overwrite bool
}

// RestoreResult describes a resolved backup and what was written.
type RestoreResult struct {
	BackupID string
	Preview  bool
	Mode     PersistMode
	Domains  []DomainSummary
	Restored []Domain
}

// RestoreBackup resolves id to a full snapshot and writes every domain back
// through the collector. Writes stop at the first failing domain; the
// returned *PartialRestoreError lists which domains were written. Restore is
// not atomic across domains.
func (m *Manager) RestoreBackup(ctx context.Context, id string, opts RestoreOptions) (*RestoreResult, error) {
	idx, err := m.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := idx.Get(id)
	if !ok {
		return nil, notFound("restore", id)
	}

	snap, err := m.resolve(ctx, idx, rec)
	if err != nil {
		return nil, err
	}

	mode := PersistMerge
	if opts.Overwrite {
		mode = PersistOverwrite
	}
	result := &RestoreResult{
		BackupID: id,
		Preview:  opts.Preview,
		Mode:     mode,
		Domains:  Summarize(snap),
	}
	if opts.Preview {
		m.logger.Debug("restore preview", "backup_id", id, "domains", len(result.Domains))
		return result, nil
	}

	domains := snap.Domains()
	var results []DomainResult
	for i, d := range domains {
		if err := m.collector.Persist(d, snap[d], mode); err != nil {
			results = append(results, DomainResult{Domain: d, Err: err})
			m.logger.Error("domain restore failed", "backup_id", id, "domain", d, "error", err)
			return result, &PartialRestoreError{
				BackupID: id,
				Results:  results,
				Skipped:  append([]Domain(nil), domains[i+1:]...),
			}
		}
		results = append(results, DomainResult{Domain: d})
		result.Restored = append(result.Restored, d)
	}

	m.logger.Info("backup restored", "backup_id", id, "mode", mode, "domains", len(result.Restored))
	return result, nil
}
