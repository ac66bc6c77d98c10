// Package codec converts snapshots to stored payload bytes: canonical JSON,
// gzip compression, and optional encryption through a backup.Encryptor.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	"chatbak/internal/backup"
)

const envelopeFormat = 1

// envelope is the serialized form inside the compressed container.
type envelope struct {
	Format  int                               `json:"format"`
	Domains map[backup.Domain]json.RawMessage `json:"domains"`
}

// UnlockFunc returns a DecryptionContext, typically by prompting for a passphrase.
type UnlockFunc func() (backup.DecryptionContext, error)

// GzipCodec implements backup.Codec. Compression is always applied; when
// encryption is requested the compressed bytes are encrypted with the
// configured Encryptor. Decryption unlocks lazily, at most once per codec.
type GzipCodec struct {
	encryptor backup.Encryptor
	unlock    UnlockFunc

	mu      sync.Mutex
	decrypt backup.DecryptionContext
}

var _ backup.Codec = (*GzipCodec)(nil)

// New creates a GzipCodec. encryptor and unlock may be nil when encrypted
// payloads are never written or read.
func New(encryptor backup.Encryptor, unlock UnlockFunc) *GzipCodec {
	return &GzipCodec{encryptor: encryptor, unlock: unlock}
}

// Encode serializes s canonically, compresses it, and encrypts it if asked.
func (c *GzipCodec) Encode(s backup.Snapshot, encrypt bool) ([]byte, error) {
	env := envelope{Format: envelopeFormat, Domains: make(map[backup.Domain]json.RawMessage, len(s))}
	for d, v := range s {
		canon, err := backup.Canonicalize(v)
		if err != nil {
			return nil, fmt.Errorf("canonicalizing %s: %w", d, err)
		}
		env.Domains[d] = canon
	}
	plain, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(plain); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing compression: %w", err)
	}

	if !encrypt {
		return compressed.Bytes(), nil
	}
	if c.encryptor == nil || !c.encryptor.IsConfigured() {
		return nil, fmt.Errorf("encryption requested but no keys are configured (run `chatbak keys init`)")
	}
	var sealed bytes.Buffer
	if err := c.encryptor.Encrypt(&compressed, &sealed); err != nil {
		return nil, fmt.Errorf("encrypting snapshot: %w", err)
	}
	return sealed.Bytes(), nil
}

// Decode reverses Encode. Every failure wraps backup.ErrCorruptPayload.
func (c *GzipCodec) Decode(data []byte, encrypted bool) (backup.Snapshot, error) {
	compressed := data
	if encrypted {
		dc, err := c.decryptionContext()
		if err != nil {
			return nil, backup.CorruptPayload("unlocking decryption key", err)
		}
		var plain bytes.Buffer
		if err := dc.Decrypt(bytes.NewReader(data), &plain); err != nil {
			return nil, backup.CorruptPayload("decrypting payload", err)
		}
		compressed = plain.Bytes()
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, backup.CorruptPayload("opening compressed payload", err)
	}
	defer zr.Close()
	plain, err := io.ReadAll(zr)
	if err != nil {
		return nil, backup.CorruptPayload("decompressing payload", err)
	}

	var env envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return nil, backup.CorruptPayload("parsing payload", err)
	}
	if env.Format != envelopeFormat {
		return nil, backup.CorruptPayload("parsing payload", fmt.Errorf("unsupported payload format %d", env.Format))
	}
	if env.Domains == nil {
		return nil, backup.CorruptPayload("parsing payload", fmt.Errorf("payload has no domains"))
	}
	return backup.Snapshot(env.Domains), nil
}

func (c *GzipCodec) decryptionContext() (backup.DecryptionContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decrypt != nil {
		return c.decrypt, nil
	}
	if c.unlock == nil {
		return nil, fmt.Errorf("payload is encrypted but no passphrase source is available")
	}
	dc, err := c.unlock()
	if err != nil {
		return nil, err
	}
	c.decrypt = dc
	return dc, nil
}
