// Package uidalloc hands out and recycles 64-bit session identifiers.
package uidalloc

import (
	"errors"
	"sync"
)

// ErrExhausted is returned when both the free list is empty and the
// counter has reached its maximum value. The caller treats this as a
// fatal, request-scoped error — it does not corrupt allocator state.
var ErrExhausted = errors.New("uidalloc: id space exhausted")

// Allocator hands out unique uint64 ids, preferring released ids (LIFO)
// over freshly minted ones. Safe for concurrent use; contention is
// expected to be negligible since allocation only happens on session
// creation and teardown.
type Allocator struct {
	mu      sync.Mutex
	free    []uint64
	nextNew uint64
}

// New creates an allocator that starts minting fresh ids at 1. Zero is
// reserved so a zero-valued SessionId can act as a sentinel for "none" in
// call sites that need one.
func New() *Allocator {
	return &Allocator{nextNew: 1}
}

// Get returns a fresh or recycled id, or ErrExhausted if the space is
// fully allocated.
func (a *Allocator) Get() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id, nil
	}

	if a.nextNew == 0 {
		// wrapped around past math.MaxUint64
		return 0, ErrExhausted
	}
	id := a.nextNew
	a.nextNew++
	return id, nil
}

// Release returns an id to the free list for future reuse.
func (a *Allocator) Release(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, id)
}
