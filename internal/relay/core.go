// Package relay implements C5, the relay core: the per-connection
// authorization state machine, payload routing, and the disconnect
// discipline that keeps session.Registry consistent. It is the sole
// consumer of the KCP transport's events and the sole producer of
// outbound frames.
package relay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vibing/relayd/internal/metrics"
	"github.com/vibing/relayd/internal/pending"
	"github.com/vibing/relayd/internal/session"
	"github.com/vibing/relayd/internal/uidalloc"
	"github.com/vibing/relayd/internal/wire"
)

// Transport is what the relay core needs from the KCP data plane (C7).
// The core never blocks on it: Send enqueues and returns immediately,
// Disconnect is fire-and-forget — the corresponding OnDisconnected event
// arrives later on the transport's own worker.
type Transport interface {
	Send(id session.ConnectionID, channel wire.Channel, frame []byte) error
	Disconnect(id session.ConnectionID)
}

// CreateCache is the value stored under a /session/allocate token.
type CreateCache struct {
	Info wire.SessionInfo
}

// JoinCache is the value stored under a /session/join token.
type JoinCache struct {
	SessionID uint64
}

// ModifyCache is the value stored under a /session/modify token.
type ModifyCache struct {
	Info wire.SessionInfo
}

// connState is the per-connection tagged state: Pending, Host{sessionId},
// or Client{hostConnectionId, localId}. Transitions are guarded by Core's
// single mutex rather than modeled as a lock-free CAS, since every
// transition already needs to touch the shared registry under some lock.
type connKind int

const (
	kindPending connKind = iota
	kindHost
	kindClient
)

type connState struct {
	kind      connKind
	sessionID uint64               // valid when kind == kindHost
	localID   uint32               // valid when kind == kindClient
	hostConn  session.ConnectionID // valid when kind == kindClient
}

// Core is C5: the relay's authorization state machine and payload router.
type Core struct {
	transport Transport
	registry  *session.Registry
	uidAlloc  *uidalloc.Allocator
	metrics   metrics.Metrics
	log       *zap.Logger

	createCache *pending.TokenStore[CreateCache]
	joinCache   *pending.TokenStore[JoinCache]
	modifyCache *pending.TokenStore[ModifyCache]

	pendingConns *pending.Store[session.ConnectionID, struct{}]

	mu           sync.Mutex
	conns        map[session.ConnectionID]*connState
	closeReasons map[session.ConnectionID]wire.Reason
}

// New creates a Core wired to transport and a fresh registry/allocator.
// The HTTP control plane deposits entries into the three token caches via
// IssueCreateToken/IssueJoinToken/IssueModifyToken.
func New(transport Transport, log *zap.Logger, m metrics.Metrics) *Core {
	c := &Core{
		transport:    transport,
		registry:     session.NewRegistry(),
		uidAlloc:     uidalloc.New(),
		metrics:      m,
		log:          log,
		conns:        make(map[session.ConnectionID]*connState),
		closeReasons: make(map[session.ConnectionID]wire.Reason),
	}
	c.createCache = pending.NewTokenStore[CreateCache](func(wire.Token, CreateCache) { m.TokenExpired("create") })
	c.joinCache = pending.NewTokenStore[JoinCache](func(wire.Token, JoinCache) { m.TokenExpired("join") })
	c.modifyCache = pending.NewTokenStore[ModifyCache](func(wire.Token, ModifyCache) { m.TokenExpired("modify") })
	c.pendingConns = pending.New[session.ConnectionID, struct{}](c.onPendingConnExpired)
	return c
}

// Registry exposes the session registry for the HTTP control plane's
// list and join validation.
func (c *Core) Registry() *session.Registry { return c.registry }

// CreateCacheStore/JoinCacheStore/ModifyCacheStore expose the token stores
// for GC-tick wiring (see cmd/relayd) and test inspection. HTTP handlers
// issue tokens through IssueCreateToken/IssueJoinToken/IssueModifyToken
// instead, so every issuance is counted.
func (c *Core) CreateCacheStore() *pending.TokenStore[CreateCache] { return c.createCache }
func (c *Core) JoinCacheStore() *pending.TokenStore[JoinCache]     { return c.joinCache }
func (c *Core) ModifyCacheStore() *pending.TokenStore[ModifyCache] { return c.modifyCache }

// PendingConnStore exposes the 30-second admission-window store so its GC
// ticker can be driven alongside the three token caches (see cmd/relayd).
func (c *Core) PendingConnStore() *pending.Store[session.ConnectionID, struct{}] {
	return c.pendingConns
}

// IssueCreateToken deposits a pending session-create cache entry and
// returns its redeemable token, for the /session/allocate handler.
func (c *Core) IssueCreateToken(info wire.SessionInfo) (wire.Token, error) {
	tok, err := c.createCache.Add(CreateCache{Info: info})
	if err == nil {
		c.metrics.TokenIssued("create")
	}
	return tok, err
}

// IssueJoinToken deposits a pending session-join cache entry and returns
// its redeemable token, for the /session/join handler.
func (c *Core) IssueJoinToken(sessionID uint64) (wire.Token, error) {
	tok, err := c.joinCache.Add(JoinCache{SessionID: sessionID})
	if err == nil {
		c.metrics.TokenIssued("join")
	}
	return tok, err
}

// IssueModifyToken deposits a pending session-modify cache entry and
// returns its redeemable token, for the /session/modify handler.
func (c *Core) IssueModifyToken(info wire.SessionInfo) (wire.Token, error) {
	tok, err := c.modifyCache.Add(ModifyCache{Info: info})
	if err == nil {
		c.metrics.TokenIssued("modify")
	}
	return tok, err
}

func (c *Core) onPendingConnExpired(id session.ConnectionID, _ struct{}) {
	c.mu.Lock()
	st, ok := c.conns[id]
	c.mu.Unlock()
	if !ok || st.kind != kindPending {
		return
	}
	c.closeConnection(id, wire.ReasonTimeOut)
}

// closeConnection sends ServerSideDisconnection(reason) on the reliable
// channel then asks the transport to drop the connection. It never
// mutates registry/session state directly — the transport's subsequent
// OnDisconnected callback drives all cleanup, so a connection is only
// ever torn down from one place.
func (c *Core) closeConnection(id session.ConnectionID, reason wire.Reason) {
	c.mu.Lock()
	c.closeReasons[id] = reason
	c.mu.Unlock()

	_ = c.transport.Send(id, wire.ChannelReliable, wire.EncodeServerSideDisconnection(reason))
	c.transport.Disconnect(id)
}

// OnConnected registers a new connection in the Pending state and starts
// its 30-second admission window.
func (c *Core) OnConnected(id session.ConnectionID) {
	c.mu.Lock()
	c.conns[id] = &connState{kind: kindPending}
	c.mu.Unlock()

	if err := c.pendingConns.AddWithKey(id, struct{}{}); err != nil {
		// A transport that reuses a ConnectionID before the previous
		// occupant's teardown finished would land here; treat it as an
		// internal invariant violation rather than silently proceeding.
		c.log.Error("relay: duplicate connection id on OnConnected", zap.Uint64("connection", uint64(id)))
		c.closeConnection(id, wire.ReasonServerSideError)
		return
	}
	c.metrics.ConnectionOpened()
}

// OnDisconnected runs the full teardown for id exactly once. A second
// delivery of the same event (transport bug) is a documented no-op per
// spec §8's idempotent-disconnect law.
func (c *Core) OnDisconnected(id session.ConnectionID) {
	c.mu.Lock()
	st, ok := c.conns[id]
	if ok {
		delete(c.conns, id)
	}
	reason, closedByCore := c.closeReasons[id]
	delete(c.closeReasons, id)
	c.mu.Unlock()
	if !ok {
		return
	}

	c.pendingConns.TryExtract(id)

	switch st.kind {
	case kindPending:
		// Nothing further to unwind.
	case kindClient:
		c.teardownClient(id, st)
	case kindHost:
		c.teardownHost(id, st)
	}

	label := "PeerClosed"
	if closedByCore {
		label = reason.String()
	}
	c.metrics.ConnectionClosed(label)
}

func (c *Core) teardownClient(id session.ConnectionID, st *connState) {
	c.registry.UnbindClient(id)
	sess, ok := c.registry.GetByHost(st.hostConn)
	if !ok {
		return
	}
	if _, removed := sess.RemoveMember(id); !removed {
		return
	}
	_ = c.transport.Send(sess.HostConnectionID(), wire.ChannelReliable, wire.EncodeClientDisconnected(uint32(id)))
}

func (c *Core) teardownHost(id session.ConnectionID, st *connState) {
	sess, ok := c.registry.GetByID(st.sessionID)
	if !ok {
		c.log.Error("relay: host disconnect with no matching session", zap.Uint64("connection", uint64(id)), zap.Uint64("session", st.sessionID))
		return
	}

	// Tombstone before removing the session from the registry so any
	// in-flight payload lookups against this session observe teardown
	// rather than a live-looking session with a soon-to-be-freed id.
	sess.Tombstone()
	members := sess.Members()

	if _, err := c.registry.RemoveSession(st.sessionID); err != nil {
		c.log.Error("relay: session missing from registry during host teardown", zap.Uint64("session", st.sessionID))
	}
	c.uidAlloc.Release(st.sessionID)
	c.metrics.SessionDestroyed()

	for _, member := range members {
		if member == id {
			continue
		}
		c.registry.UnbindClient(member)
		c.closeConnection(member, wire.ReasonHostShutdown)
	}
}

// OnError logs the transport failure and closes the connection with
// ServerSideError. The subsequent OnDisconnected callback performs the
// state-appropriate teardown (session teardown for a host, host
// notification for a client) — the same machinery a clean disconnect
// uses, so there is exactly one teardown path.
func (c *Core) OnError(id session.ConnectionID, err error) {
	c.log.Error("relay: transport error", zap.Uint64("connection", uint64(id)), zap.Error(err))
	c.closeConnection(id, wire.ReasonServerSideError)
}

// Shutdown closes every live connection with ServerShutdown. Cleanup for
// each runs asynchronously via the transport's OnDisconnected callbacks;
// callers should stop accepting new connections before calling this and
// stop the transport only after it reports those callbacks drained.
func (c *Core) Shutdown() {
	c.mu.Lock()
	ids := make([]session.ConnectionID, 0, len(c.conns))
	for id := range c.conns {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.closeConnection(id, wire.ReasonServerShutdown)
	}
}
