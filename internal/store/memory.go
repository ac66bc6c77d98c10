package store

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"

	"chatbak/internal/backup"
)

// MemoryStore is an in-memory backup.Collector. Individual domains can be
// made to fail on Collect or Persist. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	values      map[backup.Domain]json.RawMessage
	collectErrs map[backup.Domain]error
	persistErrs map[backup.Domain]error
}

var _ backup.Collector = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:      make(map[backup.Domain]json.RawMessage),
		collectErrs: make(map[backup.Domain]error),
		persistErrs: make(map[backup.Domain]error),
	}
}

// Set replaces the value of d. raw must be valid JSON.
func (s *MemoryStore) Set(d backup.Domain, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[d] = json.RawMessage(raw)
}

// Get returns the stored value of d, or null.
func (s *MemoryStore) Get(d backup.Domain) json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[d]; ok {
		return append(json.RawMessage(nil), v...)
	}
	return json.RawMessage("null")
}

// FailCollect makes Collect(d) return err. A nil err clears it.
func (s *MemoryStore) FailCollect(d backup.Domain, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setOrClear(s.collectErrs, d, err)
}

// FailPersist makes Persist(d, ...) return err. A nil err clears it.
func (s *MemoryStore) FailPersist(d backup.Domain, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setOrClear(s.persistErrs, d, err)
}

func (s *MemoryStore) Collect(d backup.Domain) (json.RawMessage, error) {
	if !d.Known() {
		return nil, errors.Newf("unknown domain %q", d)
	}
	s.mu.RLock()
	err := s.collectErrs[d]
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.Get(d), nil
}

func (s *MemoryStore) Persist(d backup.Domain, value json.RawMessage, mode backup.PersistMode) error {
	if !d.Known() {
		return errors.Newf("unknown domain %q", d)
	}
	s.mu.RLock()
	err := s.persistErrs[d]
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	next := append(json.RawMessage(nil), value...)
	if mode == backup.PersistMerge {
		if next, err = Merge(s.Get(d), value); err != nil {
			return errors.Wrapf(err, "merging %s", d)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[d] = next
	return nil
}

func setOrClear(m map[backup.Domain]error, d backup.Domain, err error) {
	if err == nil {
		delete(m, d)
		return
	}
	m[d] = err
}
