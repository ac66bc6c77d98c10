package backup

import (
	"bytes"
	"context"
	"fmt"
)

// Chain returns the records needed to materialize id, starting at the
// self-contained root and ending at id itself.
func (m *Manager) Chain(ctx context.Context, id string) ([]*BackupRecord, error) {
	idx, err := m.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := idx.Get(id)
	if !ok {
		return nil, notFound("chain", id)
	}
	return m.chain(idx, rec)
}

// chain walks BasedOn pointers from rec back to a full or imported record.
// It fails with ErrChainTooDeep on a cycle or when the chain is longer than
// maxChainDepth, and with ErrBaseNotFound when a link is missing.
func (m *Manager) chain(idx *Index, rec *BackupRecord) ([]*BackupRecord, error) {
	var links []*BackupRecord
	seen := make(map[string]bool)
	for cur := rec; ; {
		if seen[cur.ID] {
			m.logger.Error("backup chain contains a cycle", "backup_id", rec.ID, "repeated", cur.ID)
			return nil, opError("resolve chain", rec.ID, "", fmt.Errorf("%w: cycle at %s", ErrChainTooDeep, cur.ID))
		}
		seen[cur.ID] = true
		links = append(links, cur)
		if len(links) > m.maxChainDepth {
			m.logger.Error("backup chain exceeds depth limit", "backup_id", rec.ID, "limit", m.maxChainDepth)
			return nil, opError("resolve chain", rec.ID, "", fmt.Errorf("%w: more than %d links", ErrChainTooDeep, m.maxChainDepth))
		}
		if cur.Kind != KindIncremental {
			break
		}
		base, ok := idx.Get(cur.Base())
		if !ok {
			return nil, opError("resolve chain", cur.ID, "", fmt.Errorf("%w: %s", ErrBaseNotFound, cur.Base()))
		}
		cur = base
	}

	for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
		links[i], links[j] = links[j], links[i]
	}
	return links, nil
}

// resolve materializes the full snapshot of rec by loading the root payload
// and applying every change set along the chain in order.
func (m *Manager) resolve(ctx context.Context, idx *Index, rec *BackupRecord) (Snapshot, error) {
	links, err := m.chain(idx, rec)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	for i, link := range links {
		payload, err := m.readPayload(ctx, link)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			snap = payload
			continue
		}
		snap = Apply(snap, ChangeSet(payload))
	}
	m.logger.Debug("backup chain resolved", "backup_id", rec.ID, "links", len(links))
	return snap, nil
}

// readPayload fetches and decodes the stored payload of one record.
func (m *Manager) readPayload(ctx context.Context, rec *BackupRecord) (Snapshot, error) {
	var buf bytes.Buffer
	if err := m.vault.GetObject(ctx, rec.StoragePath, &buf); err != nil {
		return nil, opError("read payload", rec.ID, "", err)
	}
	snap, err := m.codec.Decode(buf.Bytes(), rec.Encrypted)
	if err != nil {
		return nil, opError("read payload", rec.ID, "", err)
	}
	return snap, nil
}
