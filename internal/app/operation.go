package app

import "chatbak/internal/database"

// Operation tracks the CLI command being run. Operations are created in
// memory with ID=0; only mutating commands persist them to the journal.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
	BackupID   string
	Err        string
}

// NewOperation creates a new in-memory operation that will finish as a success
// unless Fail is called.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     database.StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed with err. A nil err is ignored.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	op.Status = database.StatusError
	op.Err = err.Error()
}
