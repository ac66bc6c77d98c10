package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"chatbak/internal/backup"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It is useful for tests and dry runs. This implementation is safe for concurrent use.
type MemoryVault struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// failPut, when set, makes PutObject fail for the named object.
	failPut map[string]error
}

// NewMemoryVault creates a new empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		objects: make(map[string][]byte),
		failPut: make(map[string]error),
	}
}

// PutObject stores the object under name.
func (m *MemoryVault) PutObject(ctx context.Context, name string, r io.Reader, size int64) error {
	m.mu.RLock()
	injected := m.failPut[name]
	m.mu.RUnlock()
	if injected != nil {
		return injected
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	return nil
}

// GetObject writes the named object to w.
func (m *MemoryVault) GetObject(ctx context.Context, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", backup.ErrObjectNotFound, name)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// DeleteObject removes the named object if present.
func (m *MemoryVault) DeleteObject(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// Names returns the stored object names in sorted order.
func (m *MemoryVault) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.objects))
	for n := range m.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bytes returns a copy of the named object, or nil if it does not exist.
func (m *MemoryVault) Bytes(name string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	if !ok {
		return nil
	}
	return append([]byte(nil), data...)
}

// SetBytes stores raw bytes under name, bypassing size checks.
func (m *MemoryVault) SetBytes(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), data...)
}

// FailPut makes every later PutObject for name return err. A nil err clears it.
func (m *MemoryVault) FailPut(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failPut, name)
		return
	}
	m.failPut[name] = err
}

var _ backup.Vault = (*MemoryVault)(nil)
