// Package vecnonempty provides validated, non-empty (and optionally
// unique) slice wrappers used at the boundary of the attestation model.
//
// Modeled on wallet_core's VecNonEmpty / VecNonEmptyUnique newtypes:
// the invariant is checked at construction, the backing slice is never
// exposed, and appending returns a new value (PushValidated re-checks
// uniqueness).
package vecnonempty

import "fmt"

// VecNonEmpty wraps a slice that must never be empty.
type VecNonEmpty[T any] struct {
	items []T
}

// TryNew constructs a VecNonEmpty, failing if items is empty.
func TryNew[T any](items []T) (VecNonEmpty[T], error) {
	if len(items) == 0 {
		return VecNonEmpty[T]{}, fmt.Errorf("vecnonempty: cannot construct from empty slice")
	}
	cp := make([]T, len(items))
	copy(cp, items)
	return VecNonEmpty[T]{items: cp}, nil
}

// Must is TryNew but panics on error; for use with compile-time-known literals.
func Must[T any](items []T) VecNonEmpty[T] {
	v, err := TryNew(items)
	if err != nil {
		panic(err)
	}
	return v
}

// Items returns a copy of the underlying slice.
func (v VecNonEmpty[T]) Items() []T {
	cp := make([]T, len(v.items))
	copy(cp, v.items)
	return cp
}

// Len returns the number of items.
func (v VecNonEmpty[T]) Len() int { return len(v.items) }

// First returns the first item.
func (v VecNonEmpty[T]) First() T { return v.items[0] }

// Push returns a new VecNonEmpty with item appended. The invariant
// trivially holds since the receiver was already non-empty.
func (v VecNonEmpty[T]) Push(item T) VecNonEmpty[T] {
	next := make([]T, len(v.items)+1)
	copy(next, v.items)
	next[len(v.items)] = item
	return VecNonEmpty[T]{items: next}
}

// VecNonEmptyUnique wraps a non-empty slice whose items are pairwise
// unique under keyFn. Uniqueness is checked at construction and by
// PushValidated; keyFn is not stored, so PushValidated takes it again.
type VecNonEmptyUnique[T any, K comparable] struct {
	items []T
}

// TryNewUnique constructs a VecNonEmptyUnique, failing if items is empty
// or keyFn produces a duplicate key.
func TryNewUnique[T any, K comparable](items []T, keyFn func(T) K) (VecNonEmptyUnique[T, K], error) {
	if len(items) == 0 {
		return VecNonEmptyUnique[T, K]{}, fmt.Errorf("vecnonempty: cannot construct from empty slice")
	}
	seen := make(map[K]struct{}, len(items))
	for _, item := range items {
		k := keyFn(item)
		if _, dup := seen[k]; dup {
			return VecNonEmptyUnique[T, K]{}, fmt.Errorf("vecnonempty: duplicate key %v", k)
		}
		seen[k] = struct{}{}
	}
	cp := make([]T, len(items))
	copy(cp, items)
	return VecNonEmptyUnique[T, K]{items: cp}, nil
}

// Items returns a copy of the underlying slice.
func (v VecNonEmptyUnique[T, K]) Items() []T {
	cp := make([]T, len(v.items))
	copy(cp, v.items)
	return cp
}

// Len returns the number of items.
func (v VecNonEmptyUnique[T, K]) Len() int { return len(v.items) }

// PushValidated returns a new VecNonEmptyUnique with item appended,
// failing if item's key collides with an existing item.
func (v VecNonEmptyUnique[T, K]) PushValidated(item T, keyFn func(T) K) (VecNonEmptyUnique[T, K], error) {
	newKey := keyFn(item)
	for _, existing := range v.items {
		if keyFn(existing) == newKey {
			return v, fmt.Errorf("vecnonempty: duplicate key %v", newKey)
		}
	}
	next := make([]T, len(v.items)+1)
	copy(next, v.items)
	next[len(v.items)] = item
	return VecNonEmptyUnique[T, K]{items: next}, nil
}
