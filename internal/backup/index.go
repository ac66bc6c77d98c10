package backup

import (
	"context"
	"fmt"
	"sort"
)

// IndexStore loads and saves the durable backup index. The Manager loads the
// index at the start of every operation and saves it after every mutation;
// it never keeps an Index between operations.
type IndexStore interface {
	// Load returns the persisted index. A missing index yields an empty one;
	// an unreadable index returns an error wrapping ErrIndexCorrupt.
	Load(ctx context.Context) (*Index, error)

	// Save persists idx, replacing the previous index.
	Save(ctx context.Context, idx *Index) error
}

// Index maps backup ids to records. It is a plain value with no I/O.
type Index struct {
	records map[string]*BackupRecord
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{records: make(map[string]*BackupRecord)}
}

// Insert adds a record. The id must be new, the record must be valid, and an
// incremental record's base must already be in the index.
func (x *Index) Insert(r *BackupRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, exists := x.records[r.ID]; exists {
		return fmt.Errorf("backup %s already exists", r.ID)
	}
	if base := r.Base(); base != "" {
		if _, ok := x.records[base]; !ok {
			return fmt.Errorf("backup %s is based on unknown backup %s", r.ID, base)
		}
	}
	x.records[r.ID] = r
	return nil
}

// Restore adds a record read back from storage without checking its base.
// Stores use it so that an index with a missing base still loads and the
// damage surfaces during chain resolution.
func (x *Index) Restore(r *BackupRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	x.records[r.ID] = r
	return nil
}

// Get returns the record for id.
func (x *Index) Get(id string) (*BackupRecord, bool) {
	r, ok := x.records[id]
	return r, ok
}

// Remove deletes id from the index. Removing a missing id is a no-op.
func (x *Index) Remove(id string) {
	delete(x.records, id)
}

// Len returns the number of records.
func (x *Index) Len() int {
	return len(x.records)
}

// List returns the records matching f, newest first. Ties are broken by id.
func (x *Index) List(f Filter) []*BackupRecord {
	out := make([]*BackupRecord, 0, len(x.records))
	for _, r := range x.records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Dependents returns the records directly based on id, newest first.
func (x *Index) Dependents(id string) []*BackupRecord {
	var out []*BackupRecord
	for _, r := range x.List(Filter{Kind: KindIncremental}) {
		if r.Base() == id {
			out = append(out, r)
		}
	}
	return out
}

// Descendants returns every record whose chain passes through id, ordered so
// that each record comes before its base (safe deletion order).
func (x *Index) Descendants(id string) []*BackupRecord {
	var out []*BackupRecord
	seen := map[string]bool{id: true}
	var walk func(string)
	walk = func(parent string) {
		for _, child := range x.Dependents(parent) {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			walk(child.ID)
			out = append(out, child)
		}
	}
	walk(id)
	return out
}

// Records returns all records, newest first.
func (x *Index) Records() []*BackupRecord {
	return x.List(Filter{})
}
