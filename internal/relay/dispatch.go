package relay

import (
	"errors"

	"go.uber.org/zap"

	"github.com/vibing/relayd/internal/session"
	"github.com/vibing/relayd/internal/wire"
)

// OnData classifies and dispatches one inbound frame. Validation runs in a
// fixed order regardless of connection state: channel, then frame length,
// then message kind, then state-appropriate authorization, then the
// per-kind body layout checked inside each handler.
func (c *Core) OnData(id session.ConnectionID, channel wire.Channel, frame []byte) {
	if channel != wire.ChannelReliable {
		c.closeConnection(id, wire.ReasonUnreliableCommunicationNotAllowed)
		return
	}
	if len(frame) == 0 {
		c.closeConnection(id, wire.ReasonInvalidPayloadLength)
		return
	}
	kind, body := wire.SplitKind(frame)

	c.mu.Lock()
	st, ok := c.conns[id]
	var snapshot connState
	if ok {
		snapshot = *st
	}
	c.mu.Unlock()
	if !ok {
		// Late frame from a connection the core already tore down.
		return
	}

	switch kind {
	case wire.KindAuthSession:
		if snapshot.kind != kindPending {
			c.closeConnection(id, wire.ReasonUnAuthorizedAction)
			return
		}
		c.handleAuthSession(id, body)
	case wire.KindJoinSession:
		if snapshot.kind != kindPending {
			c.closeConnection(id, wire.ReasonUnAuthorizedAction)
			return
		}
		c.handleJoinSession(id, body)
	case wire.KindModifySession:
		if snapshot.kind != kindHost {
			c.closeConnection(id, wire.ReasonUnAuthorizedAction)
			return
		}
		c.handleModifySession(id, snapshot, body)
	case wire.KindPayload:
		if snapshot.kind != kindHost && snapshot.kind != kindClient {
			c.closeConnection(id, wire.ReasonUnAuthorizedAction)
			return
		}
		c.handlePayload(id, snapshot, body)
	case wire.KindDisconnectClient:
		if snapshot.kind != kindHost {
			c.closeConnection(id, wire.ReasonUnAuthorizedAction)
			return
		}
		c.handleDisconnectClient(id, snapshot, body)
	default:
		c.closeConnection(id, wire.ReasonUnrecognizableMessageHeader)
	}
}

func (c *Core) promote(id session.ConnectionID, mutate func(*connState)) {
	c.mu.Lock()
	if st, ok := c.conns[id]; ok {
		mutate(st)
	}
	c.mu.Unlock()
}

// handleAuthSession admits a Pending connection as a session's host.
func (c *Core) handleAuthSession(id session.ConnectionID, body []byte) {
	tok, err := wire.DecodeToken(body)
	if err != nil {
		c.closeConnection(id, wire.ReasonInvalidTokenPayloadLength)
		return
	}
	cache, ok := c.createCache.TryExtract(tok)
	if !ok {
		c.closeConnection(id, wire.ReasonInvalidAuthToken)
		return
	}
	c.pendingConns.TryExtract(id)

	sessID, err := c.uidAlloc.Get()
	if err != nil {
		c.log.Error("relay: session id space exhausted", zap.Error(err))
		c.closeConnection(id, wire.ReasonServerSideError)
		return
	}

	sess := session.New(sessID, id, cache.Info.Name, cache.Info.MaxMembers)
	if err := c.registry.AddSession(sess); err != nil {
		c.log.Error("relay: could not register new session", zap.Uint64("session", sessID), zap.Error(err))
		c.uidAlloc.Release(sessID)
		c.closeConnection(id, wire.ReasonServerSideError)
		return
	}

	c.promote(id, func(st *connState) {
		st.kind = kindHost
		st.sessionID = sessID
	})
	c.metrics.SessionCreated()
	_ = c.transport.Send(id, wire.ChannelReliable, wire.EncodeSuccessLocalID(session.HostLocalID))
}

// handleJoinSession admits a Pending connection as a session's client.
func (c *Core) handleJoinSession(id session.ConnectionID, body []byte) {
	tok, err := wire.DecodeToken(body)
	if err != nil {
		c.closeConnection(id, wire.ReasonInvalidTokenPayloadLength)
		return
	}
	cache, ok := c.joinCache.TryExtract(tok)
	if !ok {
		c.closeConnection(id, wire.ReasonInvalidAuthToken)
		return
	}
	sess, ok := c.registry.GetByID(cache.SessionID)
	if !ok {
		c.closeConnection(id, wire.ReasonInvalidSessionId)
		return
	}
	c.pendingConns.TryExtract(id)

	localID, err := sess.AddMember(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionFull) {
			c.closeConnection(id, wire.ReasonSessionFull)
			return
		}
		// ErrTombstoned: the host tore the session down between the
		// registry lookup above and this call.
		c.closeConnection(id, wire.ReasonInvalidSessionId)
		return
	}
	if err := c.registry.BindClient(id, sess.HostConnectionID()); err != nil {
		c.log.Error("relay: could not bind client", zap.Uint64("connection", uint64(id)), zap.Error(err))
		c.closeConnection(id, wire.ReasonServerSideError)
		return
	}

	hostConn := sess.HostConnectionID()
	c.promote(id, func(st *connState) {
		st.kind = kindClient
		st.localID = localID
		st.hostConn = hostConn
	})

	_ = c.transport.Send(id, wire.ChannelReliable, wire.EncodeSuccessLocalID(localID))
	_ = c.transport.Send(hostConn, wire.ChannelReliable, wire.EncodeClientConnected(uint32(id), localID))
}

// handleModifySession applies a pending name/capacity change to the
// caller's own session. Only reachable while the caller is that
// session's host.
func (c *Core) handleModifySession(id session.ConnectionID, st connState, body []byte) {
	tok, err := wire.DecodeToken(body)
	if err != nil {
		c.closeConnection(id, wire.ReasonInvalidTokenPayloadLength)
		return
	}
	cache, ok := c.modifyCache.TryExtract(tok)
	if !ok {
		c.closeConnection(id, wire.ReasonInvalidAuthToken)
		return
	}
	sess, ok := c.registry.GetByID(st.sessionID)
	if !ok {
		c.log.Error("relay: modify targets a host with no session", zap.Uint64("connection", uint64(id)), zap.Uint64("session", st.sessionID))
		c.closeConnection(id, wire.ReasonServerSideError)
		return
	}
	sess.ModifyInfo(cache.Info.Name, cache.Info.MaxMembers)
	_ = c.transport.Send(id, wire.ChannelReliable, wire.EncodeSuccessEmpty())
}

// handlePayload routes an application payload per spec §4.4: recipient 1
// means client→host (rewritten to carry the sender's localId), any other
// recipient means host→client (rewritten to carry localId 1).
func (c *Core) handlePayload(id session.ConnectionID, st connState, body []byte) {
	pl, err := wire.DecodePayload(body)
	if err != nil {
		c.closeConnection(id, wire.ReasonInvalidPayloadLength)
		return
	}

	var sess *session.Session
	var ok bool
	if st.kind == kindClient {
		sess, ok = c.registry.GetByHost(st.hostConn)
	} else {
		sess, ok = c.registry.GetByID(st.sessionID)
	}
	if !ok || sess.IsTombstoned() {
		return
	}

	if pl.RecipientLocalID == session.HostLocalID {
		if st.kind != kindClient {
			c.closeConnection(id, wire.ReasonUnAuthorizedAction)
			return
		}
		senderLocal, ok := sess.LocalIDFor(id)
		if !ok {
			c.closeConnection(id, wire.ReasonUnAuthorizedAction)
			return
		}
		frame := wire.EncodePayloadRelay(wire.EncodePayload(senderLocal, pl.TransferChannel, pl.TransferMode, pl.Data))
		_ = c.transport.Send(sess.HostConnectionID(), wire.ChannelReliable, frame)
		return
	}

	if st.kind != kindHost {
		c.closeConnection(id, wire.ReasonUnAuthorizedAction)
		return
	}
	destConn, ok := sess.ConnectionFor(pl.RecipientLocalID)
	if !ok {
		// The client already left; the host just hasn't heard yet.
		return
	}
	frame := wire.EncodePayloadRelay(wire.EncodePayload(session.HostLocalID, pl.TransferChannel, pl.TransferMode, pl.Data))
	_ = c.transport.Send(destConn, wire.ChannelReliable, frame)
}

// handleDisconnectClient lets a host evict one of its own members.
func (c *Core) handleDisconnectClient(id session.ConnectionID, st connState, body []byte) {
	targetHandle, err := wire.DecodeDisconnectClient(body)
	if err != nil {
		c.closeConnection(id, wire.ReasonInvalidDisconnectClientPayloadLength)
		return
	}
	target := session.ConnectionID(targetHandle)

	sess, ok := c.registry.GetByID(st.sessionID)
	if !ok {
		return
	}
	if _, isMember := sess.LocalIDFor(target); !isMember {
		return
	}
	c.closeConnection(target, wire.ReasonHostTriggeredDisconnection)
}
