package backup

import "encoding/json"

// PersistMode selects how a restored value is written back to a domain.
type PersistMode int

const (
	// PersistOverwrite replaces the domain's persisted state entirely.
	PersistOverwrite PersistMode = iota
	// PersistMerge shallow-merges the restored value into the persisted state;
	// restored keys win on conflict.
	PersistMerge
)

func (m PersistMode) String() string {
	if m == PersistMerge {
		return "merge"
	}
	return "overwrite"
}

// Collector reads and writes the persisted state of each domain. It is
// implemented by the feature stores; the engine treats values as opaque JSON.
type Collector interface {
	// Collect returns the current persisted value of domain. A domain with no
	// persisted state yields JSON null.
	Collect(domain Domain) (json.RawMessage, error)

	// Persist writes value to domain using mode.
	Persist(domain Domain, value json.RawMessage, mode PersistMode) error
}
