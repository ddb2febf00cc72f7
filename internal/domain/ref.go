package domain

import (
	"errors"

	"github.com/google/uuid"
)

// ErrRefUnresolved is returned when code asks for the value of a reference
// that only carries an identifier.
var ErrRefUnresolved = errors.New("reference is not resolved")

// Ref is a reference to another entity that is either a bare identifier or a
// hydrated value, depending on whether the query that produced it joined the
// target. Accessors fail loudly instead of silently handing out zero values.
type Ref[T any] struct {
	id    uuid.UUID
	value *T
}

// NewRef creates an unresolved reference carrying only the identifier.
func NewRef[T any](id uuid.UUID) Ref[T] {
	return Ref[T]{id: id}
}

// ResolvedRef creates a reference that carries the hydrated value.
func ResolvedRef[T any](id uuid.UUID, value *T) Ref[T] {
	return Ref[T]{id: id, value: value}
}

// ID returns the referenced entity's identifier. Always available.
func (r Ref[T]) ID() uuid.UUID { return r.id }

// Resolved reports whether the referenced value was hydrated.
func (r Ref[T]) Resolved() bool { return r.value != nil }

// Value returns the hydrated entity or ErrRefUnresolved.
func (r Ref[T]) Value() (*T, error) {
	if r.value == nil {
		return nil, ErrRefUnresolved
	}
	return r.value, nil
}

// MustValue returns the hydrated entity and panics if the reference was never
// resolved. For call sites where hydration is a query-shape invariant.
func (r Ref[T]) MustValue() *T {
	if r.value == nil {
		panic("domain: unresolved reference dereferenced")
	}
	return r.value
}
