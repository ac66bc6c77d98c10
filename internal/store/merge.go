package store

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"chatbak/internal/backup"
)

// Merge combines a domain's current value with a restored one:
//
//   - object + object: shallow merge, restored keys win
//   - array + array: current elements, then restored elements not already present
//   - anything else: the restored value replaces the current one
//
// A null or empty current value yields the restored value.
func Merge(current, restored json.RawMessage) (json.RawMessage, error) {
	restored, err := backup.Canonicalize(restored)
	if err != nil {
		return nil, errors.Wrap(err, "parsing restored value")
	}
	if len(bytes.TrimSpace(current)) == 0 {
		return restored, nil
	}
	current, err = backup.Canonicalize(current)
	if err != nil {
		return nil, errors.Wrap(err, "parsing current value")
	}

	switch {
	case isKind(current, '{') && isKind(restored, '{'):
		return mergeObjects(current, restored)
	case isKind(current, '[') && isKind(restored, '['):
		return unionArrays(current, restored)
	default:
		return restored, nil
	}
}

func isKind(v json.RawMessage, open byte) bool {
	return len(v) > 0 && v[0] == open
}

func mergeObjects(current, restored json.RawMessage) (json.RawMessage, error) {
	var cur, res map[string]json.RawMessage
	if err := json.Unmarshal(current, &cur); err != nil {
		return nil, errors.Wrap(err, "decoding current object")
	}
	if err := json.Unmarshal(restored, &res); err != nil {
		return nil, errors.Wrap(err, "decoding restored object")
	}
	for k, v := range res {
		cur[k] = v
	}
	out, err := json.Marshal(cur)
	if err != nil {
		return nil, errors.Wrap(err, "encoding merged object")
	}
	return out, nil
}

// unionArrays compares elements by their canonical encoding.
func unionArrays(current, restored json.RawMessage) (json.RawMessage, error) {
	var cur, res []json.RawMessage
	if err := json.Unmarshal(current, &cur); err != nil {
		return nil, errors.Wrap(err, "decoding current array")
	}
	if err := json.Unmarshal(restored, &res); err != nil {
		return nil, errors.Wrap(err, "decoding restored array")
	}

	seen := make(map[string]bool, len(cur)+len(res))
	out := make([]json.RawMessage, 0, len(cur)+len(res))
	for _, v := range cur {
		seen[string(v)] = true
		out = append(out, v)
	}
	for _, v := range res {
		if seen[string(v)] {
			continue
		}
		seen[string(v)] = true
		out = append(out, v)
	}
	merged, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "encoding merged array")
	}
	return merged, nil
}
