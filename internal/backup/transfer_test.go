package backup_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbak/internal/backup"
	"chatbak/internal/testutil"
)

func TestExportBackup_JSON(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness(t)
	seedNotesAndTodos(h)

	f := h.MustCreate(t, backup.CreateOptions{Encrypt: true})
	h.Store.Set(backup.DomainNotes, `[{"id":1}]`)
	inc := h.MustIncrement(t, f.ID)

	path := filepath.Join(t.TempDir(), "export.json")
	n, err := h.Manager.ExportBackup(ctx, inc.ID, path, backup.FormatJSON)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	var doc backup.ExportDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 1, doc.Format)
	assert.Equal(t, inc.ID, doc.BackupID)
	assert.Equal(t, backup.KindIncremental, doc.Kind)
	assert.Len(t, doc.Domains, len(backup.AllDomains()), "an incremental export is materialized")
	assert.JSONEq(t, `[{"id":1}]`, string(doc.Domains[backup.DomainNotes]))
	assert.JSONEq(t, `[{"t":"a"},{"t":"b"}]`, string(doc.Domains[backup.DomainTodos]))
}

func TestExportImport_RoundTrip(t *testing.T) {
	for _, format := range []backup.ExportFormat{backup.FormatJSON, backup.FormatGzip} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			h := testutil.NewHarness(t)
			seedNotesAndTodos(h)

			f := h.MustCreate(t, backup.CreateOptions{})
			h.Store.Set(backup.DomainTodos, `[]`)
			inc := h.MustIncrement(t, f.ID)

			path := filepath.Join(t.TempDir(), "export")
			_, err := h.Manager.ExportBackup(ctx, inc.ID, path, format)
			require.NoError(t, err)

			imported, err := h.Manager.ImportBackup(ctx, path, backup.ImportOptions{Description: "from laptop"})
			require.NoError(t, err)
			assert.Equal(t, backup.KindImported, imported.Kind)
			assert.Nil(t, imported.BasedOn)
			assert.Equal(t, "from laptop", imported.Description)

			h.SetDomains(map[backup.Domain]string{
				backup.DomainNotes: `[]`,
				backup.DomainTodos: `[{"t":"q"}]`,
			})
			_, err = h.Manager.RestoreBackup(ctx, imported.ID, backup.RestoreOptions{Overwrite: true})
			require.NoError(t, err)
			assert.Len(t, h.Items(t, backup.DomainNotes), 3)
			assert.Len(t, h.Items(t, backup.DomainTodos), 0)

			list, err := h.Manager.ListBackups(ctx, backup.Filter{})
			require.NoError(t, err)
			assert.Len(t, list, 3, "import never modifies existing backups")
		})
	}
}

func TestExportBackup_GzipOfFullIsStoredBytes(t *testing.T) {
	h := testutil.NewHarness(t)
	seedNotesAndTodos(h)
	f := h.MustCreate(t, backup.CreateOptions{Encrypt: true})

	path := filepath.Join(t.TempDir(), "full.json.gz")
	_, err := h.Manager.ExportBackup(context.Background(), f.ID, path, backup.FormatGzip)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, h.Vault.Bytes(f.StoragePath), data)

	imported, err := h.Manager.ImportBackup(context.Background(), path, backup.ImportOptions{Decrypt: true, Encrypt: true})
	require.NoError(t, err)
	assert.True(t, imported.Encrypted)
}

func TestImportBackup_EncryptedWithoutDecrypt(t *testing.T) {
	h := testutil.NewHarness(t)
	seedNotesAndTodos(h)
	f := h.MustCreate(t, backup.CreateOptions{Encrypt: true})

	path := filepath.Join(t.TempDir(), "full.json.gz")
	_, err := h.Manager.ExportBackup(context.Background(), f.ID, path, backup.FormatGzip)
	require.NoError(t, err)

	_, err = h.Manager.ImportBackup(context.Background(), path, backup.ImportOptions{})
	assert.ErrorIs(t, err, backup.ErrCorruptPayload)
}

func TestImportBackup_BareObject(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness(t)

	path := filepath.Join(t.TempDir(), "bare.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"notes":[1,2],"passwords":["hunter2"]}`), 0600))

	rec, err := h.Manager.ImportBackup(ctx, path, backup.ImportOptions{})
	require.NoError(t, err)

	snap := payload(t, h, rec)
	assert.Equal(t, []backup.Domain{backup.DomainNotes}, snap.Domains())
	_, ok := snap["passwords"]
	assert.False(t, ok, "unknown domains are dropped")
}

func TestImportBackup_Invalid(t *testing.T) {
	h := testutil.NewHarness(t)
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("\x00\x01garbage"), 0600))
	_, err := h.Manager.ImportBackup(context.Background(), garbage, backup.ImportOptions{})
	assert.ErrorIs(t, err, backup.ErrCorruptPayload)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"format":99,"domains":{}}`), 0600))
	_, err = h.Manager.ImportBackup(context.Background(), future, backup.ImportOptions{})
	assert.Error(t, err)

	_, err = h.Manager.ImportBackup(context.Background(), filepath.Join(dir, "missing"), backup.ImportOptions{})
	assert.Error(t, err)

	assert.Empty(t, h.Vault.Names())
}

func TestExportBackup_Errors(t *testing.T) {
	h := testutil.NewHarness(t)
	f := h.MustCreate(t, backup.CreateOptions{})

	_, err := h.Manager.ExportBackup(context.Background(), "missing", filepath.Join(t.TempDir(), "x"), backup.FormatJSON)
	assert.ErrorIs(t, err, backup.ErrBackupNotFound)

	_, err = h.Manager.ExportBackup(context.Background(), f.ID, filepath.Join(t.TempDir(), "x"), "zip")
	assert.Error(t, err)
}
