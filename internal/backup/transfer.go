package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExportFormat selects the layout of an exported backup file.
type ExportFormat string

const (
	// FormatJSON writes the resolved snapshot as human-readable JSON.
	FormatJSON ExportFormat = "json"
	// FormatGzip writes the compressed container, encrypted if the backup is.
	FormatGzip ExportFormat = "gzip"
)

const exportFormatVersion = 1

// ExportDocument is the layout of a JSON export.
type ExportDocument struct {
	Format      int                        `json:"format"`
	BackupID    string                     `json:"backup_id"`
	Kind        Kind                       `json:"kind"`
	CreatedAt   time.Time                  `json:"created_at"`
	Description string                     `json:"description,omitempty"`
	Domains     map[Domain]json.RawMessage `json:"domains"`
}

// ImportOptions controls ImportBackup.
type ImportOptions struct {
	// Encrypt stores the imported snapshot encrypted.
	Encrypt bool
	// Decrypt declares that a container input is encrypted.
	Decrypt bool
	// Description is recorded on the new backup.
	Description string
}

// ExportBackup writes backup id to path. Exports are always self-contained:
// an incremental backup is resolved through its chain first. A gzip export
// of a full or imported backup is a byte copy of the stored container.
// Returns the number of bytes written.
func (m *Manager) ExportBackup(ctx context.Context, id, path string, format ExportFormat) (int64, error) {
	idx, err := m.index.Load(ctx)
	if err != nil {
		return 0, err
	}
	rec, ok := idx.Get(id)
	if !ok {
		return 0, notFound("export", id)
	}

	var data []byte
	switch format {
	case FormatJSON:
		snap, err := m.resolve(ctx, idx, rec)
		if err != nil {
			return 0, err
		}
		doc := ExportDocument{
			Format:      exportFormatVersion,
			BackupID:    rec.ID,
			Kind:        rec.Kind,
			CreatedAt:   rec.CreatedAt,
			Description: rec.Description,
			Domains:     snap,
		}
		data, err = json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return 0, opError("export", id, "", fmt.Errorf("encoding json: %w", err))
		}
		data = append(data, '\n')
	case FormatGzip:
		if rec.Kind == KindIncremental {
			snap, err := m.resolve(ctx, idx, rec)
			if err != nil {
				return 0, err
			}
			data, err = m.codec.Encode(snap, rec.Encrypted)
			if err != nil {
				return 0, opError("export", id, "", fmt.Errorf("encoding container: %w", err))
			}
		} else {
			var buf bytes.Buffer
			if err := m.vault.GetObject(ctx, rec.StoragePath, &buf); err != nil {
				return 0, opError("export", id, "", err)
			}
			data = buf.Bytes()
		}
	default:
		return 0, fmt.Errorf("unknown export format: %q", format)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return 0, opError("export", id, "", err)
	}
	m.logger.Info("backup exported", "backup_id", id, "format", format, "path", path, "size", len(data))
	return int64(len(data)), nil
}

// ImportBackup reads a file produced by ExportBackup (either format) and
// registers its snapshot as a new imported backup. Existing backups are never
// modified. Domains outside the known set are dropped.
func (m *Manager) ImportBackup(ctx context.Context, path string, opts ImportOptions) (*BackupRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, opError("import", "", "", fmt.Errorf("reading %s: %w", path, err))
	}

	var snap Snapshot
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		snap, err = parseExportJSON(trimmed)
	} else {
		snap, err = m.codec.Decode(raw, opts.Decrypt)
	}
	if err != nil {
		return nil, opError("import", "", "", err)
	}

	known := make(Snapshot, len(snap))
	for d, v := range snap {
		if !d.Known() {
			m.logger.Warn("dropping unknown domain from import", "domain", d, "path", path)
			continue
		}
		known[d] = v
	}

	now := m.clock.Now().UTC()
	rec := &BackupRecord{
		ID:          newBackupID(now, m.idgen.New()),
		Kind:        KindImported,
		CreatedAt:   now,
		Encrypted:   opts.Encrypt,
		Description: opts.Description,
	}
	rec.StoragePath = payloadName(rec.ID)

	data, err := m.codec.Encode(known, opts.Encrypt)
	if err != nil {
		return nil, opError("import", rec.ID, "", fmt.Errorf("encoding snapshot: %w", err))
	}
	if err := m.register(ctx, rec, data); err != nil {
		return nil, opError("import", rec.ID, "", err)
	}
	m.logger.Info("backup imported", "backup_id", rec.ID, "path", path, "domains", len(known))
	return rec, nil
}

// parseExportJSON accepts an ExportDocument, or a bare object keyed by domain name.
func parseExportJSON(data []byte) (Snapshot, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, CorruptPayload("parsing json export", err)
	}
	if _, ok := probe["domains"]; ok {
		var doc ExportDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, CorruptPayload("parsing json export", err)
		}
		if doc.Format > exportFormatVersion {
			return nil, fmt.Errorf("export format %d is newer than supported version %d", doc.Format, exportFormatVersion)
		}
		return Snapshot(doc.Domains), nil
	}
	snap := make(Snapshot, len(probe))
	for k, v := range probe {
		snap[Domain(k)] = v
	}
	return snap, nil
}

// writeFileAtomic writes data to path using a temp file in the same directory and a rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".chatbak-export-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}
