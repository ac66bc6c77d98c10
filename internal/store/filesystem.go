// Package store implements backup.Collector over the application's
// per-domain JSON files.
package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"chatbak/internal/backup"
)

// FileSystemStore keeps each domain in <dir>/<domain>.json.
type FileSystemStore struct {
	dir string
}

var _ backup.Collector = (*FileSystemStore)(nil)

// NewFileSystemStore returns a store over dir, creating it if needed.
func NewFileSystemStore(dir string) (*FileSystemStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}
	return &FileSystemStore{dir: dir}, nil
}

// Path returns the file that holds domain d.
func (s *FileSystemStore) Path(d backup.Domain) string {
	return filepath.Join(s.dir, string(d)+".json")
}

// Collect returns the stored value of d, or null if the domain has no file yet.
func (s *FileSystemStore) Collect(d backup.Domain) (json.RawMessage, error) {
	if !d.Known() {
		return nil, errors.Newf("unknown domain %q", d)
	}
	data, err := os.ReadFile(s.Path(d))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return json.RawMessage("null"), nil
		}
		return nil, errors.Wrapf(err, "reading %s", d)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, errors.Newf("%s holds invalid JSON", s.Path(d))
	}
	return json.RawMessage(data), nil
}

// Persist writes value to d's file, replacing it or merging into it.
func (s *FileSystemStore) Persist(d backup.Domain, value json.RawMessage, mode backup.PersistMode) error {
	if !d.Known() {
		return errors.Newf("unknown domain %q", d)
	}

	next := value
	if mode == backup.PersistMerge {
		current, err := s.Collect(d)
		if err != nil {
			return err
		}
		if next, err = Merge(current, value); err != nil {
			return errors.Wrapf(err, "merging %s", d)
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, next, "", "  "); err != nil {
		return errors.Wrapf(err, "formatting %s", d)
	}
	pretty.WriteByte('\n')

	return atomicWriteFile(s.Path(d), pretty.Bytes(), 0600)
}

// atomicWriteFile writes data to a temp file in the target directory and renames it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".chatbak-store-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return errors.Wrap(err, "setting file permissions")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "renaming temp file")
	}
	return nil
}
