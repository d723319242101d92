// Package domain contains core concepts of the chat system.
// Values here are immutable: every mutator returns a copy.
// No storage, runtime or transport logic should be added here.
package domain

import "github.com/google/uuid"

// Stored binds a value to its permanent identity and the version token of
// the snapshot it was read from. A new version is minted on every
// successful mutation and is never reused.
type Stored[T any] struct {
	ID      uuid.UUID
	Version uuid.UUID
	Value   T
}

func (s Stored[T]) IsZero() bool {
	return s.ID == uuid.Nil
}

// SameSnapshot reports whether both records refer to the same version of
// the same entity.
func (s Stored[T]) SameSnapshot(other Stored[T]) bool {
	return s.ID == other.ID && s.Version == other.Version
}
