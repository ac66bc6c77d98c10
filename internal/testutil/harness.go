// Package testutil wires a backup.Manager over in-memory backends for tests.
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chatbak/internal/backup"
	"chatbak/internal/codec"
	"chatbak/internal/encryption"
	"chatbak/internal/index"
	"chatbak/internal/store"
	"chatbak/internal/vault"
)

// Passphrase is the passphrase the harness unlocks encrypted payloads with.
const Passphrase = "test-passphrase"

// Harness bundles a Manager with handles on each of its backends.
type Harness struct {
	Manager   *backup.Manager
	Vault     *vault.MemoryVault
	Store     *store.MemoryStore
	Index     *index.JSONStore
	Encryptor *encryption.TestEncryptor
	Clock     *StubClock
	IDs       *StubIDGenerator
}

// NewHarness returns a Manager over a memory vault and store, the test
// encryptor and a clock fixed at FixedClock.
func NewHarness(t *testing.T, opts ...backup.Option) *Harness {
	t.Helper()

	h := &Harness{
		Vault:     vault.NewMemoryVault(),
		Store:     store.NewMemoryStore(),
		Encryptor: encryption.NewTestEncryptor(),
		Clock:     FixedClock(),
		IDs:       NewStubIDGenerator(),
	}
	if err := h.Encryptor.Setup(Passphrase); err != nil {
		t.Fatalf("setting up encryptor: %v", err)
	}
	h.Index = index.NewJSONStore(h.Vault)
	h.Manager = h.newManager(opts...)
	return h
}

// Reopen returns a fresh Manager over the same backends, as a new process would see them.
func (h *Harness) Reopen(opts ...backup.Option) *backup.Manager {
	return h.newManager(opts...)
}

func (h *Harness) newManager(opts ...backup.Option) *backup.Manager {
	unlock := func() (backup.DecryptionContext, error) {
		return h.Encryptor.Unlock(Passphrase)
	}
	return backup.NewManager(
		h.Index, h.Vault, codec.New(h.Encryptor, unlock), h.Store,
		backup.NewNopLogger(), h.Clock, h.IDs, opts...,
	)
}

// SetDomains replaces the given domains in the store.
func (h *Harness) SetDomains(values map[backup.Domain]string) {
	for d, raw := range values {
		h.Store.Set(d, raw)
	}
}

// Items decodes d's stored value as a JSON array.
func (h *Harness) Items(t *testing.T, d backup.Domain) []any {
	t.Helper()
	var items []any
	if err := json.Unmarshal(h.Store.Get(d), &items); err != nil {
		t.Fatalf("decoding %s: %v", d, err)
	}
	return items
}

// MustCreate creates a full backup at the current clock time and advances the clock by a second.
func (h *Harness) MustCreate(t *testing.T, opts backup.CreateOptions) *backup.BackupRecord {
	t.Helper()
	rec, err := h.Manager.CreateBackup(context.Background(), opts)
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	h.Clock.Advance(time.Second)
	return rec
}

// MustIncrement creates an incremental backup on top of baseID and advances the clock by a second.
func (h *Harness) MustIncrement(t *testing.T, baseID string) *backup.BackupRecord {
	t.Helper()
	rec, err := h.Manager.CreateIncrementalBackup(context.Background(), baseID, backup.IncrementalOptions{})
	if err != nil {
		t.Fatalf("CreateIncrementalBackup(%s) error = %v", baseID, err)
	}
	h.Clock.Advance(time.Second)
	return rec
}
