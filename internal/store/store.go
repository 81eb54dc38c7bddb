// Package store defines the record store contract shared by the file,
// memory and postgres backends, plus a typed JSON wrapper on top of it.
//
// Put must replace a record atomically: a concurrent or later Get sees the
// old or the new value in full, never a mix. List returns a snapshot that
// need not be linearizable with concurrent Puts, but every record in it is
// complete. List reads every record and is linear in the number of orders.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

// RecordStore maps an identifier to an opaque JSON document.
type RecordStore interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Put(ctx context.Context, id string, record []byte) error
	List(ctx context.Context) (map[string][]byte, error)
}

// Counter is the durable scalar behind the sequence allocator. Nothing but
// sequence.Allocator should hold one.
type Counter interface {
	LoadCounter(ctx context.Context) (string, error)
	StoreCounter(ctx context.Context, value string) error
}

// Swapper is implemented by backends shared between processes. Swap
// replaces the record only while it still holds old and reports whether it
// did.
type Swapper interface {
	Swap(ctx context.Context, id string, old, record []byte) (bool, error)
}

// Backend is what every storage implementation provides.
type Backend interface {
	RecordStore
	Counter
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id may be used as a record key. Backends treat
// invalid ids as not found so that they never reach the file system.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// Records is a typed view over a RecordStore.
type Records[T any] struct {
	store RecordStore
}

func NewRecords[T any](s RecordStore) *Records[T] {
	return &Records[T]{store: s}
}

func (r *Records[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w", &CorruptRecordError{ID: id, Cause: err})
	}
	return &rec, nil
}

func (r *Records[T]) Put(ctx context.Context, id string, rec *T) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", id, err)
	}
	return r.store.Put(ctx, id, data)
}

// Update reads a record, lets change modify it and writes it back when
// change returns true. Callers serialise updates of one id within the
// process; on a Swapper the write only lands if nobody else rewrote the
// record meanwhile, otherwise the read and change are retried.
func (r *Records[T]) Update(ctx context.Context, id string, change func(*T) bool) (*T, bool, error) {
	swapper, shared := r.store.(Swapper)
	for {
		old, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		var rec T
		if err := json.Unmarshal(old, &rec); err != nil {
			return nil, false, fmt.Errorf("%w", &CorruptRecordError{ID: id, Cause: err})
		}
		if !change(&rec) {
			return &rec, false, nil
		}
		data, err := json.MarshalIndent(&rec, "", "  ")
		if err != nil {
			return nil, false, fmt.Errorf("encoding record %s: %w", id, err)
		}

		if !shared {
			if err := r.store.Put(ctx, id, data); err != nil {
				return nil, false, err
			}
			return &rec, true, nil
		}

		swapped, err := swapper.Swap(ctx, id, old, data)
		if err != nil {
			return nil, false, err
		}
		if swapped {
			return &rec, true, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
	}
}

// List decodes every stored record. Records that fail to decode are skipped
// and reported through onCorrupt, so one damaged file cannot hide the rest.
func (r *Records[T]) List(ctx context.Context, onCorrupt func(id string, err error)) (map[string]*T, error) {
	raw, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*T, len(raw))
	for id, data := range raw {
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			if onCorrupt != nil {
				onCorrupt(id, err)
			}
			continue
		}
		result[id] = &rec
	}
	return result, nil
}
