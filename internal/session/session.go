// Package session implements the relay's room bookkeeping: one Session
// per host, holding the bidirectional connectionId ↔ localId mapping, and
// a Registry indexing all live sessions for the relay core and the HTTP
// control plane.
package session

import (
	"errors"
	"sync"
)

// ConnectionID is the transport-assigned identifier for one live KCP
// connection. It is opaque to session participants.
type ConnectionID uint64

// HostLocalID is the local id always assigned to a session's host.
const HostLocalID uint32 = 1

// Errors returned by Session operations.
var (
	ErrSessionFull      = errors.New("session: full")
	ErrMemberNotFound   = errors.New("session: member not found")
	ErrInvalidName      = errors.New("session: name must be non-empty")
	ErrInvalidCapacity  = errors.New("session: maxMembers must be positive")
	ErrTombstoned       = errors.New("session: torn down")
)

// Preview is the read-only snapshot returned for listing.
type Preview struct {
	SessionID      uint64
	Name           string
	MaxMembers     uint32
	CurrentMembers uint32
}

// Session is one room: a host plus its clients, keyed on both sides by a
// bidirectional connectionId ↔ localId map. The host occupies localId 1
// for the session's entire life.
type Session struct {
	id               uint64
	hostConnectionID ConnectionID // immutable for the session's life

	mu         sync.RWMutex
	name       string
	maxMembers uint32

	connToLocal map[ConnectionID]uint32
	localToConn map[uint32]ConnectionID
	nextLocal   uint32

	tombstoned bool
}

// New creates a Session with the host already bound to LocalId=1.
func New(id uint64, hostConn ConnectionID, name string, maxMembers uint32) *Session {
	s := &Session{
		id:               id,
		hostConnectionID: hostConn,
		name:             name,
		maxMembers:       maxMembers,
		connToLocal:      make(map[ConnectionID]uint32),
		localToConn:      make(map[uint32]ConnectionID),
		nextLocal:        HostLocalID + 1,
	}
	s.connToLocal[hostConn] = HostLocalID
	s.localToConn[HostLocalID] = hostConn
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() uint64 { return s.id }

// HostConnectionID returns the host's connection id. It never changes.
func (s *Session) HostConnectionID() ConnectionID { return s.hostConnectionID }

// IsFull reports the current membership count and whether it has reached
// maxMembers.
func (s *Session) IsFull() (current int, full bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	current = len(s.connToLocal)
	return current, current >= int(s.maxMembers)
}

// AddMember admits connID as a new client, assigning it the next local id
// from a per-session counter (2, 3, ...), so ids freed by departures are
// never reused. Fails if the session is full or torn down. A connection
// that is already a member gets its existing local id back.
func (s *Session) AddMember(connID ConnectionID) (localID uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tombstoned {
		return 0, ErrTombstoned
	}
	if _, exists := s.connToLocal[connID]; exists {
		return s.connToLocal[connID], nil
	}
	if len(s.connToLocal) >= int(s.maxMembers) {
		return 0, ErrSessionFull
	}

	localID = s.nextLocal
	s.nextLocal++
	s.connToLocal[connID] = localID
	s.localToConn[localID] = connID
	return localID, nil
}

// RemoveMember removes connID from the BiMap, returning its former local
// id. A missing connection is reported via ok=false, not an error — the
// caller (disconnect handling) treats a second removal as a no-op.
func (s *Session) RemoveMember(connID ConnectionID) (localID uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	localID, ok = s.connToLocal[connID]
	if !ok {
		return 0, false
	}
	delete(s.connToLocal, connID)
	delete(s.localToConn, localID)
	return localID, true
}

// LocalIDFor returns the local id visible to participants for connID.
func (s *Session) LocalIDFor(connID ConnectionID) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.connToLocal[connID]
	return id, ok
}

// ConnectionFor returns the connection id backing a given local id.
func (s *Session) ConnectionFor(localID uint32) (ConnectionID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.localToConn[localID]
	return id, ok
}

// ModifyInfo atomically replaces name and maxMembers. Lowering maxMembers
// below the current member count is legal: no one is evicted, but no new
// joins are admitted until membership drops below the new cap.
func (s *Session) ModifyInfo(name string, maxMembers uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.maxMembers = maxMembers
}

// Members returns a snapshot of every live connection id in the session,
// including the host. Used by teardown to close each member out-of-lock.
func (s *Session) Members() []ConnectionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConnectionID, 0, len(s.connToLocal))
	for c := range s.connToLocal {
		out = append(out, c)
	}
	return out
}

// Tombstone marks the session as torn down. Late payload arrivals that
// still reference this session are dropped by the relay core once it
// observes this flag.
func (s *Session) Tombstone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstoned = true
}

// IsTombstoned reports whether teardown has started.
func (s *Session) IsTombstoned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tombstoned
}

// ToPreview snapshots the session for the HTTP session-list endpoint.
func (s *Session) ToPreview() Preview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Preview{
		SessionID:      s.id,
		Name:           s.name,
		MaxMembers:     s.maxMembers,
		CurrentMembers: uint32(len(s.connToLocal)),
	}
}
