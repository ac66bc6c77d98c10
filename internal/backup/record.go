package backup

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes how a backup's payload relates to other backups.
type Kind string

const (
	// KindFull payloads hold a complete Snapshot.
	KindFull Kind = "full"
	// KindIncremental payloads hold a ChangeSet relative to BasedOn.
	KindIncremental Kind = "incremental"
	// KindImported payloads hold a complete Snapshot brought in from an external file.
	KindImported Kind = "imported"
)

// ParseKind parses a kind name as accepted on the command line.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindFull:
		return KindFull, nil
	case KindIncremental:
		return KindIncremental, nil
	case KindImported:
		return KindImported, nil
	default:
		return "", fmt.Errorf("unknown backup type: %q (want full, incremental or imported)", s)
	}
}

// BackupRecord is one entry of the backup index. Records are immutable once
// inserted; they are removed by delete or retention cleanup only.
type BackupRecord struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
	StoragePath string    `json:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"`
	Encrypted   bool      `json:"encrypted"`
	BasedOn     *string   `json:"based_on,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Validate checks the kind-specific invariants of a record.
func (r *BackupRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("backup record has no id")
	}
	if r.StoragePath == "" {
		return fmt.Errorf("backup %s has no storage path", r.ID)
	}
	switch r.Kind {
	case KindIncremental:
		if r.BasedOn == nil || *r.BasedOn == "" {
			return fmt.Errorf("incremental backup %s has no base", r.ID)
		}
		if *r.BasedOn == r.ID {
			return fmt.Errorf("backup %s is based on itself", r.ID)
		}
	case KindFull, KindImported:
		if r.BasedOn != nil {
			return fmt.Errorf("%s backup %s must not have a base", r.Kind, r.ID)
		}
	default:
		return fmt.Errorf("backup %s has unknown kind %q", r.ID, r.Kind)
	}
	return nil
}

// Base returns the id this record is based on, or "" for self-contained records.
func (r *BackupRecord) Base() string {
	if r.BasedOn == nil {
		return ""
	}
	return *r.BasedOn
}

// Filter narrows ListBackups. Zero fields match everything. From and To are inclusive.
type Filter struct {
	Kind Kind
	From time.Time
	To   time.Time
}

// Match reports whether r satisfies the filter.
func (f Filter) Match(r *BackupRecord) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.CreatedAt.After(f.To) {
		return false
	}
	return true
}

const idTimeLayout = "20060102T150405.000Z"

// newBackupID builds a time-ordered id with a random suffix taken from gen.
func newBackupID(now time.Time, suffix string) string {
	suffix = strings.ReplaceAll(suffix, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return now.UTC().Format(idTimeLayout) + "-" + suffix
}

// payloadName is the storage path for a backup's payload.
func payloadName(id string) string {
	return id + ".json.gz"
}
