// Package kcptransport implements C7: a thin adapter between the relay
// core's event-driven interface and github.com/xtaci/kcp-go/v5's
// connection-oriented KCP sessions.
//
// The wire protocol's unreliable sub-channel (spec §4.4) has exactly one
// legal use: being rejected. No application message is ever validly sent
// or received on it, so this adapter never opens one at the transport
// level — every frame it delivers to the core carries wire.ChannelReliable,
// and Send always writes to the session's single reliable stream.
package kcptransport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"
	"go.uber.org/zap"

	"github.com/vibing/relayd/internal/session"
	"github.com/vibing/relayd/internal/uidalloc"
	"github.com/vibing/relayd/internal/wire"
)

// Config mirrors the Kcp_* keys of the external configuration surface.
type Config struct {
	ListenAddr        string
	DualMode          bool
	NoDelay           bool
	Interval          int
	Timeout           time.Duration
	RecvBufferSize    int
	SendBufferSize    int
	FastResend        int
	ReceiveWindowSize int
	SendWindowSize    int
	MaxRetransmit     int
}

// EventHandler is the callback surface a Listener drives — implemented by
// internal/relay.Core in production and by a fake in tests.
type EventHandler interface {
	OnConnected(id session.ConnectionID)
	OnData(id session.ConnectionID, channel wire.Channel, frame []byte)
	OnDisconnected(id session.ConnectionID)
	OnError(id session.ConnectionID, err error)
}

// Listener accepts KCP sessions and forwards their lifecycle to an
// EventHandler. Each accepted session gets its own ConnectionID, opaque to
// the rest of the relay and never reused while the session is live.
type Listener struct {
	kcpListener *kcp.Listener
	handler     EventHandler
	cfg         Config
	log         *zap.Logger
	idAlloc     *uidalloc.Allocator

	mu       sync.Mutex
	sessions map[session.ConnectionID]*kcp.UDPSession

	wg sync.WaitGroup
}

// Listen binds a KCP listener on cfg.ListenAddr. No FEC and no encryption
// are configured — the transport is plaintext UDP per spec §1's non-goals.
func Listen(cfg Config, handler EventHandler, log *zap.Logger) (*Listener, error) {
	network := "udp4"
	if cfg.DualMode {
		network = "udp"
	}
	addr, err := net.ResolveUDPAddr(network, cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, err
	}

	kln, err := kcp.ServeConn(nil, 0, 0, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	l := &Listener{
		kcpListener: kln,
		handler:     handler,
		cfg:         cfg,
		log:         log,
		idAlloc:     uidalloc.New(),
		sessions:    make(map[session.ConnectionID]*kcp.UDPSession),
	}
	return l, nil
}

// Serve accepts connections until the listener is closed. Intended to run
// on its own goroutine, joined at shutdown via the caller's errgroup.
func (l *Listener) Serve() error {
	for {
		sess, err := l.kcpListener.AcceptKCP()
		if err != nil {
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		l.accept(sess)
	}
}

func (l *Listener) accept(sess *kcp.UDPSession) {
	l.configure(sess)

	id, err := l.idAlloc.Get()
	if err != nil {
		l.log.Error("kcptransport: connection id space exhausted", zap.Error(err))
		sess.Close()
		return
	}
	connID := session.ConnectionID(id)

	l.mu.Lock()
	l.sessions[connID] = sess
	l.mu.Unlock()

	l.handler.OnConnected(connID)

	l.wg.Add(1)
	go l.readLoop(connID, sess)
}

func (l *Listener) configure(sess *kcp.UDPSession) {
	nodelay := 0
	if l.cfg.NoDelay {
		nodelay = 1
	}
	sess.SetNoDelay(nodelay, l.cfg.Interval, l.cfg.FastResend, 1)
	sess.SetWindowSize(l.cfg.SendWindowSize, l.cfg.ReceiveWindowSize)
	sess.SetACKNoDelay(true)
	// Message-oriented, not stream-oriented: one Write on the peer becomes
	// exactly one Read here, matching "one KCP message = one application
	// message" (spec §4.6) without needing an app-level length prefix.
	sess.SetStreamMode(false)
	if l.cfg.RecvBufferSize > 0 {
		sess.SetReadBuffer(l.cfg.RecvBufferSize)
	}
	if l.cfg.SendBufferSize > 0 {
		sess.SetWriteBuffer(l.cfg.SendBufferSize)
	}
}

// readLoop delivers frames until the peer disconnects or MaxRetransmit
// consecutive idle-read timeouts elapse, standing in for kcp-go's
// compiled-in dead-link counter with a read-deadline-based analog sized
// off Kcp_Timeout/Kcp_MaxRetransmit.
func (l *Listener) readLoop(id session.ConnectionID, sess *kcp.UDPSession) {
	defer l.wg.Done()
	buf := make([]byte, 65536)
	consecutiveTimeouts := 0

	for {
		if l.cfg.Timeout > 0 {
			_ = sess.SetReadDeadline(time.Now().Add(l.cfg.Timeout))
		}
		n, err := sess.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				consecutiveTimeouts++
				if consecutiveTimeouts < l.cfg.MaxRetransmit || l.cfg.MaxRetransmit <= 0 {
					continue
				}
			}
			l.teardown(id, sess)
			if !errors.Is(err, io.EOF) {
				l.handler.OnError(id, err)
			}
			l.handler.OnDisconnected(id)
			return
		}
		consecutiveTimeouts = 0
		frame := append([]byte(nil), buf[:n]...)
		l.handler.OnData(id, wire.ChannelReliable, frame)
	}
}

func (l *Listener) teardown(id session.ConnectionID, sess *kcp.UDPSession) {
	l.mu.Lock()
	delete(l.sessions, id)
	l.mu.Unlock()
	sess.Close()
	l.idAlloc.Release(uint64(id))
}

// Send implements relay.Transport.
func (l *Listener) Send(id session.ConnectionID, _ wire.Channel, frame []byte) error {
	l.mu.Lock()
	sess, ok := l.sessions[id]
	l.mu.Unlock()
	if !ok {
		return errNotConnected
	}
	_, err := sess.Write(frame)
	return err
}

// Disconnect implements relay.Transport. The corresponding OnDisconnected
// fires from readLoop once the resulting read error surfaces.
func (l *Listener) Disconnect(id session.ConnectionID) {
	l.mu.Lock()
	sess, ok := l.sessions[id]
	l.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Close stops accepting new connections and closes every live session.
func (l *Listener) Close() error {
	err := l.kcpListener.Close()
	l.mu.Lock()
	sessions := make([]*kcp.UDPSession, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	l.wg.Wait()
	return err
}

var errNotConnected = errors.New("kcptransport: connection not found")
