package repositories

import (
	"fmt"
	"inchat/domain"
	"inchat/errors"

	"github.com/google/uuid"
)

// StoreError describes a backing-store failure: badger I/O, a failed
// commit or a row that cannot be encoded or decoded. It always matches
// errors.ErrBackingStore.
type StoreError struct {
	Entity    string // The entity kind (e.g., "user", "channel")
	Operation string // The operation that failed (e.g., "save", "update")
	Err       error  // Original error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation on %s failed: %v", e.Operation, e.Entity, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == errors.ErrBackingStore
}

func NewStoreError(entity, operation string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Err: err}
}

// ConflictError is returned when the caller's expected version is no
// longer the live one. Current is the record as it is now, so callers can
// recompute and retry.
type ConflictError[T any] struct {
	Entity  string
	Current domain.Stored[T]
}

func (e *ConflictError[T]) Error() string {
	return fmt.Sprintf("%s %s: expected version is stale, current is %s: %v",
		e.Entity, e.Current.ID, e.Current.Version, errors.ErrConflict)
}

func (e *ConflictError[T]) Is(target error) bool {
	return target == errors.ErrConflict
}

// AsConflict extracts the current record carried by a conflict.
func AsConflict[T any](err error) (domain.Stored[T], bool) {
	var conflict *ConflictError[T]
	if errors.As(err, &conflict) {
		return conflict.Current, true
	}
	return domain.Stored[T]{}, false
}

func notFound(entity string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", entity, id, errors.ErrNotFound)
}
