package backup

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Vault implementations when the named object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Vault stores backup payloads and the index file as named objects.
// All operations use io.Reader/io.Writer for streaming.
type Vault interface {
	// PutObject stores an object under name, replacing any existing object.
	// size is the number of bytes that will be read from r. Implementations
	// must not leave a partially written object behind on failure.
	PutObject(ctx context.Context, name string, r io.Reader, size int64) error

	// GetObject writes the named object to w. Returns an error wrapping
	// ErrObjectNotFound if it does not exist.
	GetObject(ctx context.Context, name string, w io.Writer) error

	// DeleteObject removes the named object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, name string) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
