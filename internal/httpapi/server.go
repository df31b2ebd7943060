// Package httpapi implements C6, the relay's HTTP control plane: session
// listing and the three token-issuing endpoints that hand a caller a
// short-lived capability to consume over the KCP data plane.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vibing/relayd/internal/relay"
	"github.com/vibing/relayd/internal/wire"
)

// maxRequestBodyBytes bounds how much of a request body a handler will
// read before giving up, since none of these bodies are legitimately
// larger than a session name plus a few fixed-width fields.
const maxRequestBodyBytes = 4096

// Server is the relay's control plane. It never mutates session
// membership directly — every write is a token deposited into one of
// Core's three pending caches, later redeemed over KCP.
type Server struct {
	core   *relay.Core
	log    *zap.Logger
	server *http.Server
}

// Config holds parameters for creating a Server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "0.0.0.0:8080").
	ListenAddr string

	// Core is the relay core whose registry and pending caches this
	// server reads from and writes into.
	Core *relay.Core

	// Log receives request-level diagnostics.
	Log *zap.Logger
}

// NewServer creates an HTTP control plane with all routes registered.
func NewServer(cfg Config) *Server {
	s := &Server{core: cfg.Core, log: cfg.Log}

	mux := http.NewServeMux()
	mux.HandleFunc("/session/list", s.handleSessionList)
	mux.HandleFunc("/session/allocate", s.handleSessionAllocate)
	mux.HandleFunc("/session/join", s.handleSessionJoin)
	mux.HandleFunc("/session/modify", s.handleSessionModify)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe starts the HTTP server. Blocks until Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeBinary(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
}

// GET /session/list
func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	previews := s.core.Registry().ListPreviews()
	out := make([]wire.SessionPreview, 0, len(previews))
	for _, p := range previews {
		out = append(out, wire.SessionPreview{
			SessionID:      p.SessionID,
			Name:           p.Name,
			MaxMembers:     p.MaxMembers,
			CurrentMembers: p.CurrentMembers,
		})
	}
	writeBinary(w, http.StatusOK, wire.EncodeSessionPreviewList(out))
}

// POST /session/allocate
func (s *Server) handleSessionAllocate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	info, err := wire.DecodeSessionInfo(body)
	if err != nil {
		http.Error(w, "malformed session info", http.StatusBadRequest)
		return
	}
	if !info.IsValid() {
		writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromError("invalid session info")))
		return
	}

	tok, err := s.core.IssueCreateToken(info)
	if err != nil {
		s.log.Error("httpapi: allocate token generation failed", zap.Error(err))
		writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromError("internal error")))
		return
	}
	writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromValue(tok)))
}

// POST /session/join
func (s *Server) handleSessionJoin(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	sessionID, err := wire.DecodeJoinRequest(body)
	if err != nil {
		http.Error(w, "malformed join request", http.StatusBadRequest)
		return
	}

	sess, ok := s.core.Registry().GetByID(sessionID)
	if !ok {
		writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromError("session not found")))
		return
	}
	if _, full := sess.IsFull(); full {
		writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromError("session full")))
		return
	}

	tok, err := s.core.IssueJoinToken(sessionID)
	if err != nil {
		s.log.Error("httpapi: join token generation failed", zap.Error(err))
		writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromError("internal error")))
		return
	}
	writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromValue(tok)))
}

// POST /session/modify
func (s *Server) handleSessionModify(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	info, err := wire.DecodeSessionInfo(body)
	if err != nil {
		http.Error(w, "malformed session info", http.StatusBadRequest)
		return
	}
	if !info.IsValid() {
		writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromError("invalid session info")))
		return
	}

	tok, err := s.core.IssueModifyToken(info)
	if err != nil {
		s.log.Error("httpapi: modify token generation failed", zap.Error(err))
		writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromError("internal error")))
		return
	}
	writeBinary(w, http.StatusOK, wire.EncodeTokenResponse(wire.TokenFromValue(tok)))
}
