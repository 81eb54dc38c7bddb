package db

import (
	"fmt"

	"github.com/wellywell/orderdesk/internal/store"
)

type RecordNotFoundError struct {
	ID string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("Order record %s not found", e.ID)
}

func (e *RecordNotFoundError) Unwrap() error {
	return store.ErrNotFound
}
