package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSessionBindsHostAtLocalOne(t *testing.T) {
	s := New(1, ConnectionID(10), "lobby", 4)
	id, ok := s.LocalIDFor(ConnectionID(10))
	require.True(t, ok)
	require.Equal(t, HostLocalID, id)

	conn, ok := s.ConnectionFor(HostLocalID)
	require.True(t, ok)
	require.Equal(t, ConnectionID(10), conn)
}

func TestAddMemberAssignsMonotonicLocalIDs(t *testing.T) {
	s := New(1, ConnectionID(10), "lobby", 4)

	l1, err := s.AddMember(ConnectionID(20))
	require.NoError(t, err)
	require.Equal(t, uint32(2), l1)

	l2, err := s.AddMember(ConnectionID(30))
	require.NoError(t, err)
	require.Equal(t, uint32(3), l2)
}

func TestAddMemberRespectsCapacity(t *testing.T) {
	s := New(1, ConnectionID(10), "lobby", 2)
	_, err := s.AddMember(ConnectionID(20))
	require.NoError(t, err)

	current, full := s.IsFull()
	require.Equal(t, 2, current)
	require.True(t, full)

	_, err = s.AddMember(ConnectionID(30))
	require.ErrorIs(t, err, ErrSessionFull)
}

func TestRemoveMemberIsIdempotent(t *testing.T) {
	s := New(1, ConnectionID(10), "lobby", 4)
	_, err := s.AddMember(ConnectionID(20))
	require.NoError(t, err)

	local, ok := s.RemoveMember(ConnectionID(20))
	require.True(t, ok)
	require.Equal(t, uint32(2), local)

	// Idempotent second delivery of the same disconnect event.
	_, ok = s.RemoveMember(ConnectionID(20))
	require.False(t, ok)
}

func TestGapsFromDeparturesAreNotReused(t *testing.T) {
	s := New(1, ConnectionID(10), "lobby", 4)
	_, err := s.AddMember(ConnectionID(20))
	require.NoError(t, err)
	_, ok := s.RemoveMember(ConnectionID(20))
	require.True(t, ok)

	// Next join gets 3, not the freed 2 — local ids are never reused
	// within a session's life.
	l, err := s.AddMember(ConnectionID(30))
	require.NoError(t, err)
	require.Equal(t, uint32(3), l)
}

func TestModifyInfoAllowsShrinkingBelowCurrentCountWithoutEviction(t *testing.T) {
	s := New(1, ConnectionID(10), "lobby", 4)
	_, err := s.AddMember(ConnectionID(20))
	require.NoError(t, err)
	_, err = s.AddMember(ConnectionID(30))
	require.NoError(t, err)

	s.ModifyInfo("lobby", 1)

	current, full := s.IsFull()
	require.Equal(t, 3, current)
	require.True(t, full)

	// No new joins admitted until membership drops below the new cap.
	_, err = s.AddMember(ConnectionID(40))
	require.ErrorIs(t, err, ErrSessionFull)
}

func TestTombstonedSessionRejectsNewMembers(t *testing.T) {
	s := New(1, ConnectionID(10), "lobby", 4)
	s.Tombstone()
	require.True(t, s.IsTombstoned())

	_, err := s.AddMember(ConnectionID(20))
	require.ErrorIs(t, err, ErrTombstoned)
}

func TestToPreview(t *testing.T) {
	s := New(1, ConnectionID(10), "lobby", 4)
	_, err := s.AddMember(ConnectionID(20))
	require.NoError(t, err)

	p := s.ToPreview()
	require.Equal(t, Preview{SessionID: 1, Name: "lobby", MaxMembers: 4, CurrentMembers: 2}, p)
}

func TestBiMapInjectivity(t *testing.T) {
	s := New(1, ConnectionID(10), "lobby", 10)
	seenLocal := map[uint32]ConnectionID{HostLocalID: ConnectionID(10)}
	for i := 0; i < 5; i++ {
		conn := ConnectionID(100 + i)
		local, err := s.AddMember(conn)
		require.NoError(t, err)
		require.NotContains(t, seenLocal, local, "local id reused within a session")
		seenLocal[local] = conn
	}
}
