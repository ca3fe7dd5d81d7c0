package storage

import "fmt"

// StorageError wraps a backend-specific write or read failure. A batch-scoped
// StorageError means the batch did not commit; callers must not advance the
// sync cursor past it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err with the failing operation name.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// SchemaError indicates an incompatible or corrupt schema at startup.
// It is fatal: the run must not proceed against an unknown schema.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("storage: schema: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
