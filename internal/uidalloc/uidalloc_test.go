package uidalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetIsMonotonicWhenFreeListEmpty(t *testing.T) {
	a := New()
	first, err := a.Get()
	require.NoError(t, err)
	second, err := a.Get()
	require.NoError(t, err)
	require.Equal(t, first+1, second)
}

func TestReleasePreferredOverFresh(t *testing.T) {
	a := New()
	first, err := a.Get()
	require.NoError(t, err)
	second, err := a.Get()
	require.NoError(t, err)

	a.Release(first)
	a.Release(second)

	// LIFO: second released should come back first.
	got, err := a.Get()
	require.NoError(t, err)
	require.Equal(t, second, got)

	got, err = a.Get()
	require.NoError(t, err)
	require.Equal(t, first, got)
}

func TestExhaustion(t *testing.T) {
	a := &Allocator{nextNew: 0} // simulate wraparound with empty free list
	_, err := a.Get()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestConcurrentGetNoDuplicates(t *testing.T) {
	a := New()
	const n = 200
	ids := make(chan uint64, n)
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			id, err := a.Get()
			require.NoError(t, err)
			ids <- id
		}()
	}
	go func() {
		seen := make(map[uint64]bool)
		for i := 0; i < n; i++ {
			id := <-ids
			require.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
		close(done)
	}()
	<-done
}
