package backup

// Codec turns snapshots into stored payload bytes and back. It knows nothing
// about backup kinds or chains; a ChangeSet is encoded as a partial Snapshot.
type Codec interface {
	// Encode serializes, compresses and, when encrypt is set, encrypts s.
	Encode(s Snapshot, encrypt bool) ([]byte, error)

	// Decode reverses Encode. Any failure wraps ErrCorruptPayload and no
	// partial snapshot is returned.
	Decode(data []byte, encrypted bool) (Snapshot, error)
}
