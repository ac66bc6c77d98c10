package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbak/internal/backup"
	"chatbak/internal/config"
	"chatbak/internal/store"
)

func newFSStore(t *testing.T) *store.FileSystemStore {
	t.Helper()
	s, err := store.NewFileSystemStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return s
}

func TestFileSystemStore_CollectMissingIsNull(t *testing.T) {
	s := newFSStore(t)
	got, err := s.Collect(backup.DomainNotes)
	require.NoError(t, err)
	assert.Equal(t, "null", string(got))
}

func TestFileSystemStore_CollectReadsDomainFile(t *testing.T) {
	s := newFSStore(t)
	require.NoError(t, os.WriteFile(s.Path(backup.DomainTodos), []byte(`[{"id":1,"done":false}]`), 0600))

	got, err := s.Collect(backup.DomainTodos)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"done":false}]`, string(got))
}

func TestFileSystemStore_CollectInvalidJSON(t *testing.T) {
	s := newFSStore(t)
	require.NoError(t, os.WriteFile(s.Path(backup.DomainCron), []byte(`{oops`), 0600))

	_, err := s.Collect(backup.DomainCron)
	assert.Error(t, err)
}

func TestFileSystemStore_RejectsUnknownDomain(t *testing.T) {
	s := newFSStore(t)
	_, err := s.Collect(backup.Domain("kanban"))
	assert.Error(t, err)
	assert.Error(t, s.Persist(backup.Domain("kanban"), json.RawMessage(`[]`), backup.PersistOverwrite))
}

func TestFileSystemStore_PersistOverwrite(t *testing.T) {
	s := newFSStore(t)
	require.NoError(t, s.Persist(backup.DomainNotes, json.RawMessage(`[1,2,3]`), backup.PersistOverwrite))
	require.NoError(t, s.Persist(backup.DomainNotes, json.RawMessage(`[4]`), backup.PersistOverwrite))

	got, err := s.Collect(backup.DomainNotes)
	require.NoError(t, err)
	assert.JSONEq(t, `[4]`, string(got))

	entries, err := os.ReadDir(filepath.Dir(s.Path(backup.DomainNotes)))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should be left behind")
}

func TestFileSystemStore_PersistMerge(t *testing.T) {
	s := newFSStore(t)
	require.NoError(t, s.Persist(backup.DomainEnv, json.RawMessage(`{"EDITOR":"vim","PAGER":"less"}`), backup.PersistOverwrite))
	require.NoError(t, s.Persist(backup.DomainEnv, json.RawMessage(`{"EDITOR":"nano"}`), backup.PersistMerge))

	got, err := s.Collect(backup.DomainEnv)
	require.NoError(t, err)
	assert.JSONEq(t, `{"EDITOR":"nano","PAGER":"less"}`, string(got))
}

func TestFileSystemStore_PersistInvalidValue(t *testing.T) {
	s := newFSStore(t)
	require.NoError(t, s.Persist(backup.DomainNotes, json.RawMessage(`[1]`), backup.PersistOverwrite))

	assert.Error(t, s.Persist(backup.DomainNotes, json.RawMessage(`[1,`), backup.PersistOverwrite))

	got, err := s.Collect(backup.DomainNotes)
	require.NoError(t, err)
	assert.JSONEq(t, `[1]`, string(got), "failed write must leave the previous value intact")
}

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StoreConfig{Type: "memory"}},
		{name: "filesystem", cfg: config.StoreConfig{Type: "filesystem", DataDir: t.TempDir()}},
		{name: "filesystem without dir", cfg: config.StoreConfig{Type: "filesystem"}, wantErr: true},
		{name: "unknown", cfg: config.StoreConfig{Type: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.NewStoreFromConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}
