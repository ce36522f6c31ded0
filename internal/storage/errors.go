package storage

import (
	"errors"
	"fmt"
)

// Common storage errors
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidRecord = errors.New("invalid spend record")
)

// StorageError is returned when a ledger read or write fails
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError checks if an error came from the ledger store
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
