package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chatbak/internal/backup"
)

// FileSystemVault stores every object as a file directly under root:
//
//	<root>/
//	  index.json
//	  <backup id>.json.gz
//
// Writes go through a temp file in the same directory followed by a rename,
// so a crash never leaves a truncated object behind.
type FileSystemVault struct {
	root string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}
	return &FileSystemVault{root: root}, nil
}

// Root returns the directory holding the vault's objects.
func (v *FileSystemVault) Root() string {
	return v.root
}

// PutObject stores r under name, replacing any existing object.
func (v *FileSystemVault) PutObject(ctx context.Context, name string, r io.Reader, size int64) error {
	destPath, err := v.objectPath(name)
	if err != nil {
		return err
	}
	return writeFile(destPath, r, size)
}

// GetObject copies the named object to w.
func (v *FileSystemVault) GetObject(ctx context.Context, name string, w io.Writer) error {
	srcPath, err := v.objectPath(name)
	if err != nil {
		return err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", backup.ErrObjectNotFound, name)
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read object %s: %w", name, err)
	}
	return nil
}

// DeleteObject removes the named object. A missing object is not an error.
func (v *FileSystemVault) DeleteObject(ctx context.Context, name string) error {
	path, err := v.objectPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", name, err)
	}
	return nil
}

// ValidateSetup verifies that the vault root exists and is a directory.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	return nil
}

// objectPath maps an object name to a path inside root. Names are flat:
// separators and dot-only names are rejected.
func (v *FileSystemVault) objectPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid object name: %q", name)
	}
	return filepath.Join(v.root, name), nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ backup.Vault = (*FileSystemVault)(nil)
