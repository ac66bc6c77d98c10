package app

import (
	"errors"
	"testing"

	"chatbak/internal/database"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{name: "with parameters", operation: "CreateBackup", parameters: "encrypt=true keep=7"},
		{name: "empty parameters", operation: "CleanOldBackups", parameters: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters)

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != database.StatusSuccess {
				t.Errorf("Status = %q, want %q", op.Status, database.StatusSuccess)
			}
			if op.Persisted() {
				t.Error("new operation reports Persisted() = true")
			}
		})
	}
}

func TestOperation_Fail(t *testing.T) {
	op := NewOperation("RestoreBackup", "id=x")
	op.Fail(nil)
	if op.Status != database.StatusSuccess {
		t.Errorf("Fail(nil) changed Status to %q", op.Status)
	}

	op.Fail(errors.New("backup not found"))
	if op.Status != database.StatusError {
		t.Errorf("Status = %q, want %q", op.Status, database.StatusError)
	}
	if op.Err != "backup not found" {
		t.Errorf("Err = %q", op.Err)
	}
}

func TestOperation_Persisted(t *testing.T) {
	tests := []struct {
		id   int64
		want bool
	}{
		{id: 0, want: false},
		{id: 1, want: true},
		{id: 99999, want: true},
	}
	for _, tt := range tests {
		op := &Operation{ID: tt.id}
		if got := op.Persisted(); got != tt.want {
			t.Errorf("Persisted() with ID %d = %v, want %v", tt.id, got, tt.want)
		}
	}
}
