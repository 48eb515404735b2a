// Package handle provides generational arenas that hand out typed IDs.
//
// An ID pairs a slot index with the generation the slot had when the value
// was inserted. Removing a value bumps the slot generation, so every ID that
// still points at the old generation stops resolving. The type parameter of
// ID makes IDs of different arenas distinct types at compile time.
package handle

import (
	"fmt"
	"sync"
)

// ID identifies a value stored in an Arena[T].
// The zero ID never resolves and is used as the null handle.
type ID[T any] struct {
	index uint32
	gen   uint32
}

// IsZero reports whether id is the null ID.
func (id ID[T]) IsZero() bool { return id.gen == 0 }

// Index returns the slot index of the ID.
func (id ID[T]) Index() uint32 { return id.index }

// Generation returns the generation the ID was issued with.
func (id ID[T]) Generation() uint32 { return id.gen }

// String returns "index@generation", or "null" for the zero ID.
func (id ID[T]) String() string {
	if id.IsZero() {
		return "null"
	}
	return fmt.Sprintf("%d@%d", id.index, id.gen)
}

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Arena stores values addressed by generational IDs.
//
// The zero Arena is ready to use. Arena is safe for concurrent use.
type Arena[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []uint32
	live  int
}

// Insert stores v and returns its ID.
func (a *Arena[T]) Insert(v T) ID[T] {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		//nolint:gosec // G115: slot count is bounded by memory long before 2^32
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{gen: 1})
	}

	s := &a.slots[idx]
	s.value = v
	s.live = true
	a.live++
	return ID[T]{index: idx, gen: s.gen}
}

// Get returns the value for id. The boolean is false when id is null,
// was removed, or was never issued by this arena.
func (a *Arena[T]) Get(id ID[T]) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.lookupLocked(id)
	if !ok {
		var zero T
		return zero, false
	}
	return s.value, true
}

// Contains reports whether id currently resolves.
func (a *Arena[T]) Contains(id ID[T]) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.lookupLocked(id)
	return ok
}

// Remove deletes the value for id and returns it.
// Every copy of id stops resolving once Remove returns.
func (a *Arena[T]) Remove(id ID[T]) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.lookupLocked(id)
	if !ok {
		var zero T
		return zero, false
	}

	v := s.value
	var zero T
	s.value = zero
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, id.index)
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

// Each calls fn for every live value. fn runs on a snapshot taken under the
// read lock, so it may call back into the arena.
func (a *Arena[T]) Each(fn func(ID[T], T)) {
	type entry struct {
		id ID[T]
		v  T
	}

	a.mu.RLock()
	snapshot := make([]entry, 0, a.live)
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			//nolint:gosec // G115: index fits, see Insert
			snapshot = append(snapshot, entry{id: ID[T]{index: uint32(i), gen: s.gen}, v: s.value})
		}
	}
	a.mu.RUnlock()

	for _, e := range snapshot {
		fn(e.id, e.v)
	}
}

func (a *Arena[T]) lookupLocked(id ID[T]) (*slot[T], bool) {
	if id.IsZero() || int(id.index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[id.index]
	if !s.live || s.gen != id.gen {
		return nil, false
	}
	return s, true
}
