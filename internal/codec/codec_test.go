package codec_test

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbak/internal/backup"
	"chatbak/internal/codec"
	"chatbak/internal/config"
	"chatbak/internal/encryption"
)

func sampleSnapshot() backup.Snapshot {
	return backup.Snapshot{
		backup.DomainNotes:    json.RawMessage(`[{"text":"hi","id":1}]`),
		backup.DomainEnv:      json.RawMessage(`{"B":"2","A":"1"}`),
		backup.DomainPersonas: json.RawMessage(`null`),
	}
}

func newAgeEncryptor(t *testing.T, passphrase string) *encryption.AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	enc := encryption.NewAgeEncryptor(config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(dir, "chatbak.pub"),
		PrivateKeyPath: filepath.Join(dir, "chatbak.key"),
	})
	require.NoError(t, enc.Setup(passphrase))
	return enc
}

func TestGzipCodec_PlainRoundTrip(t *testing.T) {
	c := codec.New(nil, nil)
	data, err := c.Encode(sampleSnapshot(), false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2], "payload is gzip")

	got, err := c.Decode(data, false)
	require.NoError(t, err)
	assert.True(t, backup.Equal(sampleSnapshot(), got))
	assert.Equal(t, `{"A":"1","B":"2"}`, string(got[backup.DomainEnv]), "values are stored canonically")
}

func TestGzipCodec_Deterministic(t *testing.T) {
	c := codec.New(nil, nil)
	a, err := c.Encode(sampleSnapshot(), false)
	require.NoError(t, err)
	b, err := c.Encode(sampleSnapshot(), false)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGzipCodec_TestEncryptor(t *testing.T) {
	enc := encryption.NewTestEncryptor()
	require.NoError(t, enc.Setup("secret-pass"))

	calls := 0
	c := codec.New(enc, func() (backup.DecryptionContext, error) {
		calls++
		return enc.Unlock("secret-pass")
	})

	data, err := c.Encode(sampleSnapshot(), true)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := c.Decode(data, true)
		require.NoError(t, err)
		assert.True(t, backup.Equal(sampleSnapshot(), got))
	}
	assert.Equal(t, 1, calls, "unlock runs once per codec")
	assert.Equal(t, 1, enc.Unlocks())

	// Plain payloads never unlock.
	p := codec.New(enc, func() (backup.DecryptionContext, error) {
		t.Fatal("unlock called for a plain payload")
		return nil, nil
	})
	plain, err := p.Encode(sampleSnapshot(), false)
	require.NoError(t, err)
	_, err = p.Decode(plain, false)
	require.NoError(t, err)
}

func TestGzipCodec_Age(t *testing.T) {
	enc := newAgeEncryptor(t, "correct horse battery")
	c := codec.New(enc, func() (backup.DecryptionContext, error) {
		return enc.Unlock("correct horse battery")
	})

	data, err := c.Encode(sampleSnapshot(), true)
	require.NoError(t, err)
	assert.NotEqual(t, []byte{0x1f, 0x8b}, data[:2], "encrypted payload is not plain gzip")

	got, err := c.Decode(data, true)
	require.NoError(t, err)
	assert.True(t, backup.Equal(sampleSnapshot(), got))
}

func TestGzipCodec_AgeWrongKey(t *testing.T) {
	sealer := newAgeEncryptor(t, "correct horse battery")
	other := newAgeEncryptor(t, "another passphrase")

	data, err := codec.New(sealer, nil).Encode(sampleSnapshot(), true)
	require.NoError(t, err)

	c := codec.New(other, func() (backup.DecryptionContext, error) {
		return other.Unlock("another passphrase")
	})
	_, err = c.Decode(data, true)
	assert.ErrorIs(t, err, backup.ErrCorruptPayload)
}

func TestGzipCodec_UnlockFailure(t *testing.T) {
	enc := encryption.NewTestEncryptor()
	data, err := codec.New(enc, nil).Encode(sampleSnapshot(), true)
	require.NoError(t, err)

	boom := errors.New("no tty")
	c := codec.New(enc, func() (backup.DecryptionContext, error) { return nil, boom })
	_, err = c.Decode(data, true)
	assert.ErrorIs(t, err, backup.ErrCorruptPayload)
	assert.ErrorIs(t, err, boom)

	_, err = codec.New(enc, nil).Decode(data, true)
	assert.ErrorIs(t, err, backup.ErrCorruptPayload)
}

func TestGzipCodec_Corrupt(t *testing.T) {
	c := codec.New(nil, nil)
	valid, err := c.Encode(sampleSnapshot(), false)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "garbage", data: []byte("definitely not gzip")},
		{name: "truncated", data: valid[:len(valid)/2]},
		{name: "empty", data: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.data, false)
			assert.ErrorIs(t, err, backup.ErrCorruptPayload)
		})
	}
}

func TestGzipCodec_EncryptWithoutKeys(t *testing.T) {
	dir := t.TempDir()
	enc := encryption.NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "missing.pub"),
		PrivateKeyPath: filepath.Join(dir, "missing.key"),
	})
	_, err := codec.New(enc, nil).Encode(sampleSnapshot(), true)
	assert.Error(t, err)

	_, err = codec.New(nil, nil).Encode(sampleSnapshot(), true)
	assert.Error(t, err)
}

func TestGzipCodec_RejectsInvalidDomainValue(t *testing.T) {
	_, err := codec.New(nil, nil).Encode(backup.Snapshot{backup.DomainNotes: json.RawMessage(`[1,`)}, false)
	assert.Error(t, err)
}
