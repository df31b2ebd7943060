package session

import (
	"errors"
	"fmt"
	"sync"
)

// Errors returned by Registry operations.
var (
	ErrSessionExists   = errors.New("session: registry: id already present")
	ErrSessionNotFound = errors.New("session: registry: id not found")
	ErrHostExists      = errors.New("session: registry: host connection already bound")
	ErrHostNotFound    = errors.New("session: registry: host connection not found")
)

// Registry holds every active session and the three indexes described in
// spec §3: sessionsById, hostToSession, and clientToHost. All three are
// kept mutually consistent by construction — every mutating method updates
// exactly the indexes a given lifecycle transition touches.
type Registry struct {
	mu            sync.RWMutex
	byID          map[uint64]*Session
	hostToSession map[ConnectionID]*Session
	clientToHost  map[ConnectionID]ConnectionID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:          make(map[uint64]*Session),
		hostToSession: make(map[ConnectionID]*Session),
		clientToHost:  make(map[ConnectionID]ConnectionID),
	}
}

// AddSession registers a freshly created session under both sessionsById
// and hostToSession. Fails if either key is already occupied.
func (r *Registry) AddSession(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[s.ID()]; exists {
		return ErrSessionExists
	}
	if _, exists := r.hostToSession[s.HostConnectionID()]; exists {
		return ErrHostExists
	}
	r.byID[s.ID()] = s
	r.hostToSession[s.HostConnectionID()] = s
	return nil
}

// RemoveSession removes a session from sessionsById and hostToSession.
// It leaves clientToHost untouched: entries pointing at its host are
// removed separately by the caller via UnbindClient during member
// teardown.
func (r *Registry) RemoveSession(id uint64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(r.byID, id)
	delete(r.hostToSession, s.HostConnectionID())
	return s, nil
}

// GetByID looks up a session by its SessionId.
func (r *Registry) GetByID(id uint64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// GetByHost looks up the session a host connection owns.
func (r *Registry) GetByHost(hostConn ConnectionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.hostToSession[hostConn]
	return s, ok
}

// GetHostForClient returns the host connection id for a client connection.
func (r *Registry) GetHostForClient(clientConn ConnectionID) (ConnectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.clientToHost[clientConn]
	return h, ok
}

// BindClient records that clientConn belongs to hostConn's session.
func (r *Registry) BindClient(clientConn, hostConn ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clientToHost[clientConn]; exists {
		return errors.New("session: registry: client already bound")
	}
	r.clientToHost[clientConn] = hostConn
	return nil
}

// UnbindClient removes a client's clientToHost entry. A missing entry is
// not an error — disconnect handling may race with an already-cleaned-up
// client.
func (r *Registry) UnbindClient(clientConn ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clientToHost, clientConn)
}

// ListPreviews snapshots every session for the /session/list endpoint.
func (r *Registry) ListPreviews() []Preview {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Preview, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ToPreview())
	}
	return out
}

// CheckInvariants validates the three cross-index invariants from spec §8
// (1-3, restricted to what a Registry can check on its own — BiMap
// injectivity is Session's responsibility). Returns the first violation
// found, or nil. Intended for tests, not the hot path.
func (r *Registry) CheckInvariants() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for client, host := range r.clientToHost {
		if _, ok := r.hostToSession[host]; !ok {
			return fmt.Errorf("client %v maps to host %v which is not in hostToSession", client, host)
		}
	}
	for host, s := range r.hostToSession {
		if s.HostConnectionID() != host {
			return fmt.Errorf("hostToSession[%v] has mismatched HostConnectionID %v", host, s.HostConnectionID())
		}
	}
	for id, s := range r.byID {
		if r.hostToSession[s.HostConnectionID()] != s {
			return fmt.Errorf("session %d is not indexed under host %v in hostToSession", id, s.HostConnectionID())
		}
	}
	return nil
}
