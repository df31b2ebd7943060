package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryAddAndLookup(t *testing.T) {
	r := NewRegistry()
	s := New(1, ConnectionID(10), "lobby", 4)
	require.NoError(t, r.AddSession(s))

	got, ok := r.GetByID(1)
	require.True(t, ok)
	require.Same(t, s, got)

	got, ok = r.GetByHost(ConnectionID(10))
	require.True(t, ok)
	require.Same(t, s, got)
}

func TestRegistryAddSessionRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddSession(New(1, ConnectionID(10), "a", 4)))
	require.ErrorIs(t, r.AddSession(New(1, ConnectionID(20), "b", 4)), ErrSessionExists)
}

func TestRegistryRemoveSession(t *testing.T) {
	r := NewRegistry()
	s := New(1, ConnectionID(10), "lobby", 4)
	require.NoError(t, r.AddSession(s))

	removed, err := r.RemoveSession(1)
	require.NoError(t, err)
	require.Same(t, s, removed)

	_, ok := r.GetByID(1)
	require.False(t, ok)
	_, ok = r.GetByHost(ConnectionID(10))
	require.False(t, ok)
}

func TestRegistryRemoveSessionMissing(t *testing.T) {
	r := NewRegistry()
	_, err := r.RemoveSession(99)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryClientBinding(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddSession(New(1, ConnectionID(10), "lobby", 4)))
	require.NoError(t, r.BindClient(ConnectionID(20), ConnectionID(10)))

	host, ok := r.GetHostForClient(ConnectionID(20))
	require.True(t, ok)
	require.Equal(t, ConnectionID(10), host)

	r.UnbindClient(ConnectionID(20))
	_, ok = r.GetHostForClient(ConnectionID(20))
	require.False(t, ok)

	// Idempotent.
	r.UnbindClient(ConnectionID(20))
}

func TestRegistryInvariantsHoldAfterLifecycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddSession(New(1, ConnectionID(10), "lobby", 4)))
	require.NoError(t, r.BindClient(ConnectionID(20), ConnectionID(10)))
	require.NoError(t, r.BindClient(ConnectionID(21), ConnectionID(10)))

	require.NoError(t, r.CheckInvariants())

	r.UnbindClient(ConnectionID(20))
	_, err := r.RemoveSession(1)
	require.NoError(t, err)
	r.UnbindClient(ConnectionID(21))

	require.NoError(t, r.CheckInvariants())
}

func TestListPreviews(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddSession(New(1, ConnectionID(10), "lobby", 4)))
	require.NoError(t, r.AddSession(New(2, ConnectionID(11), "arena", 8)))

	previews := r.ListPreviews()
	require.Len(t, previews, 2)
}
