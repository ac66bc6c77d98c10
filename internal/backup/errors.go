package backup

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Sentinel errors for backup operations. Callers check them with errors.Is;
// the concrete error usually carries more context via OpError.
var (
	// ErrCollection indicates a domain collector failed while building a snapshot.
	ErrCollection = errors.New("collecting domain state failed")

	// ErrBaseNotFound indicates the base of an incremental backup does not exist.
	ErrBaseNotFound = errors.New("base backup not found")

	// ErrBackupNotFound indicates the requested backup id is not in the index.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrChainTooDeep indicates chain resolution hit a cycle or exceeded the depth limit.
	ErrChainTooDeep = errors.New("backup chain too deep or cyclic")

	// ErrCorruptPayload indicates a payload could not be decrypted, decompressed or parsed.
	ErrCorruptPayload = errors.New("corrupt backup payload")

	// ErrIndexCorrupt indicates the index file exists but cannot be parsed.
	ErrIndexCorrupt = errors.New("backup index corrupt")

	// ErrPartialRestore indicates some domains were restored and others were not.
	ErrPartialRestore = errors.New("restore partially applied")

	// ErrHasDependents indicates a backup cannot be deleted because other backups are based on it.
	ErrHasDependents = errors.New("backup has dependent incremental backups")
)

// OpError attaches the operation, backup id and domain (where known) to an error.
type OpError struct {
	Op       string
	BackupID string
	Domain   Domain
	Err      error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.BackupID != "" {
		fmt.Fprintf(&b, " %s", e.BackupID)
	}
	if e.Domain != "" {
		fmt.Fprintf(&b, " [%s]", e.Domain)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op, id string, domain Domain, err error) error {
	return &OpError{Op: op, BackupID: id, Domain: domain, Err: err}
}

// DomainResult reports what happened to one domain during restore.
type DomainResult struct {
	Domain Domain
	Err    error // nil when the domain was written
}

// PartialRestoreError lists per-domain outcomes of a restore that stopped at a
// failed write. Domains after the failing one are reported as skipped.
type PartialRestoreError struct {
	BackupID string
	Results  []DomainResult
	Skipped  []Domain
}

func (e *PartialRestoreError) Error() string {
	var ok, failed []string
	for _, r := range e.Results {
		if r.Err == nil {
			ok = append(ok, string(r.Domain))
		} else {
			failed = append(failed, fmt.Sprintf("%s (%v)", r.Domain, r.Err))
		}
	}
	skipped := make([]string, len(e.Skipped))
	for i, d := range e.Skipped {
		skipped[i] = string(d)
	}
	return fmt.Sprintf("restore %s partially applied: restored [%s], failed [%s], skipped [%s]",
		e.BackupID, strings.Join(ok, ", "), strings.Join(failed, "; "), strings.Join(skipped, ", "))
}

// Is makes errors.Is(err, ErrPartialRestore) hold.
func (e *PartialRestoreError) Is(target error) bool {
	return target == ErrPartialRestore
}

// Restored returns the domains that were written successfully.
func (e *PartialRestoreError) Restored() []Domain {
	var out []Domain
	for _, r := range e.Results {
		if r.Err == nil {
			out = append(out, r.Domain)
		}
	}
	return out
}

func notFound(op, id string) error {
	return errors.WithHint(opError(op, id, "", ErrBackupNotFound),
		"run `chatbak backup list` to see available backup ids")
}

func baseNotFound(op, id string) error {
	return errors.WithHint(opError(op, id, "", ErrBaseNotFound),
		"the base must be an existing backup id from `chatbak backup list`")
}

// IndexCorrupt wraps a parse failure of the named index file as ErrIndexCorrupt.
func IndexCorrupt(name string, err error) error {
	return errors.WithHintf(fmt.Errorf("parsing %s: %w: %w", name, ErrIndexCorrupt, err),
		"%s could not be read; repair it by hand or move it aside to start a new index (existing payload files are kept)", name)
}

// CorruptPayload wraps a decode failure at the given step as ErrCorruptPayload.
func CorruptPayload(step string, err error) error {
	return fmt.Errorf("%s: %w: %w", step, ErrCorruptPayload, err)
}
