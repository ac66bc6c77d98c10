package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"chatbak/internal/backup"
)

// testHeader marks payloads sealed by TestEncryptor.
var testHeader = []byte("CBTEST\x00\x01")

// ErrTestPassphrase is returned by TestEncryptor.Unlock for a rejected passphrase.
var ErrTestPassphrase = errors.New("test encryptor: wrong passphrase")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. It prepends a
// fixed header on Encrypt and strips it on Decrypt, so sealed payloads differ
// from plaintext without any real cryptography. When Setup has been called
// with a passphrase, Unlock only accepts that passphrase.
type TestEncryptor struct {
	passphrase string
	unlocks    int
}

var _ backup.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor that accepts any passphrase.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (backup.DecryptionContext, error) {
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, ErrTestPassphrase
	}
	e.unlocks++
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// Unlocks reports how many times Unlock succeeded.
func (e *TestEncryptor) Unlocks() int {
	return e.unlocks
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ backup.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
