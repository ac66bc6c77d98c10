// Package index persists the backup index as a single JSON object in the vault.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatbak/internal/backup"
)

const (
	// ObjectName is the vault object holding the index.
	ObjectName = "index.json"

	formatVersion = 1
)

// document is the on-disk layout: {"version":1,"backups":{"<id>":{...}}}.
type document struct {
	Version int                             `json:"version"`
	Backups map[string]*backup.BackupRecord `json:"backups"`
}

// JSONStore implements backup.IndexStore on top of a backup.Vault.
type JSONStore struct {
	vault backup.Vault
}

var _ backup.IndexStore = (*JSONStore)(nil)

// NewJSONStore returns a store that keeps the index in v.
func NewJSONStore(v backup.Vault) *JSONStore {
	return &JSONStore{vault: v}
}

// Load reads the index. A missing object is an empty index. Anything that
// cannot be parsed, including a single invalid record, fails the whole load
// with backup.ErrIndexCorrupt rather than silently dropping records.
func (s *JSONStore) Load(ctx context.Context) (*backup.Index, error) {
	var buf bytes.Buffer
	if err := s.vault.GetObject(ctx, ObjectName, &buf); err != nil {
		if errors.Is(err, backup.ErrObjectNotFound) {
			return backup.NewIndex(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", ObjectName, err)
	}

	var doc document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, backup.IndexCorrupt(ObjectName, err)
	}
	if doc.Version != formatVersion {
		return nil, backup.IndexCorrupt(ObjectName, fmt.Errorf("unsupported version %d", doc.Version))
	}

	idx := backup.NewIndex()
	for id, rec := range doc.Backups {
		if rec == nil {
			return nil, backup.IndexCorrupt(ObjectName, fmt.Errorf("record %s is null", id))
		}
		if rec.ID != id {
			return nil, backup.IndexCorrupt(ObjectName, fmt.Errorf("record key %s holds id %s", id, rec.ID))
		}
		if err := idx.Restore(rec); err != nil {
			return nil, backup.IndexCorrupt(ObjectName, err)
		}
	}
	return idx, nil
}

// Save writes the full index, replacing the previous object.
func (s *JSONStore) Save(ctx context.Context, idx *backup.Index) error {
	doc := document{
		Version: formatVersion,
		Backups: make(map[string]*backup.BackupRecord, idx.Len()),
	}
	for _, rec := range idx.Records() {
		doc.Backups[rec.ID] = rec
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	data = append(data, '\n')

	if err := s.vault.PutObject(ctx, ObjectName, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("writing %s: %w", ObjectName, err)
	}
	return nil
}
