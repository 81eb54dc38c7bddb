package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrStorage  = errors.New("storage failure")
	ErrCorrupt  = errors.New("corrupt record")
	ErrBadID    = errors.New("invalid record id")
)

// StorageError is returned when the backend could not complete a durable
// read or write.
type StorageError struct {
	Op    string
	ID    string
	Cause error
}

func NewStorageError(op string, id string, cause error) *StorageError {
	return &StorageError{Op: op, ID: id, Cause: cause}
}

func (e *StorageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("storage %s %s failed: %v", e.Op, e.ID, e.Cause)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Cause}
}

type CorruptRecordError struct {
	ID    string
	Cause error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("record %s is corrupt: %v", e.ID, e.Cause)
}

func (e *CorruptRecordError) Unwrap() error {
	return ErrCorrupt
}
