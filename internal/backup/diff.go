package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Diff returns the domains of current whose canonical serialization differs
// from reference. A domain missing from reference always counts as changed.
// Comparison is per domain; a changed domain carries its whole new value.
func Diff(reference, current Snapshot) (ChangeSet, error) {
	changes := make(ChangeSet)
	for _, d := range current.Domains() {
		cur, err := Canonicalize(current[d])
		if err != nil {
			return nil, fmt.Errorf("canonicalizing current %s: %w", d, err)
		}
		prev, ok := reference[d]
		if ok {
			ref, err := Canonicalize(prev)
			if err != nil {
				return nil, fmt.Errorf("canonicalizing reference %s: %w", d, err)
			}
			if bytes.Equal(ref, cur) {
				continue
			}
		}
		changes[d] = cur
	}
	return changes, nil
}

// Apply returns a copy of base with every domain in changes overwritten.
// Neither argument is modified.
func Apply(base Snapshot, changes ChangeSet) Snapshot {
	out := make(Snapshot, len(base)+len(changes))
	for d, v := range base {
		out[d] = cloneRaw(v)
	}
	for d, v := range changes {
		out[d] = cloneRaw(v)
	}
	return out
}

// Equal reports whether two snapshots hold the same domains with canonically equal values.
func Equal(a, b Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for d, av := range a {
		bv, ok := b[d]
		if !ok {
			return false
		}
		ac, err := Canonicalize(av)
		if err != nil {
			return false
		}
		bc, err := Canonicalize(bv)
		if err != nil {
			return false
		}
		if !bytes.Equal(ac, bc) {
			return false
		}
	}
	return true
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
