package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vibing/relayd/internal/metrics"
	"github.com/vibing/relayd/internal/relay"
	"github.com/vibing/relayd/internal/session"
	"github.com/vibing/relayd/internal/wire"
)

type noopTransport struct{}

func (noopTransport) Send(session.ConnectionID, wire.Channel, []byte) error { return nil }
func (noopTransport) Disconnect(session.ConnectionID)                      {}

func newTestServer(t *testing.T) (*Server, *relay.Core) {
	t.Helper()
	core := relay.New(noopTransport{}, zap.NewNop(), metrics.Noop{})
	s := NewServer(Config{Core: core, Log: zap.NewNop()})
	return s, core
}

func TestAllocateReturnsRedeemableToken(t *testing.T) {
	s, core := newTestServer(t)
	body := wire.EncodeSessionInfo(wire.SessionInfo{Name: "lobby", MaxMembers: 4})

	req := httptest.NewRequest(http.MethodPost, "/session/allocate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleSessionAllocate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp, err := wire.DecodeTokenResponse(rec.Body.Bytes())
	require.NoError(t, err)
	require.True(t, resp.HasValue)

	cache, ok := core.CreateCacheStore().TryExtract(resp.Value)
	require.True(t, ok)
	require.Equal(t, "lobby", cache.Info.Name)
}

func TestAllocateRejectsInvalidInfo(t *testing.T) {
	s, _ := newTestServer(t)
	body := wire.EncodeSessionInfo(wire.SessionInfo{Name: "  ", MaxMembers: 4})

	req := httptest.NewRequest(http.MethodPost, "/session/allocate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleSessionAllocate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp, err := wire.DecodeTokenResponse(rec.Body.Bytes())
	require.NoError(t, err)
	require.False(t, resp.HasValue)
}

func TestJoinRejectsUnknownSession(t *testing.T) {
	s, _ := newTestServer(t)
	body := wire.EncodeJoinRequest(999)

	req := httptest.NewRequest(http.MethodPost, "/session/join", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleSessionJoin(rec, req)

	resp, err := wire.DecodeTokenResponse(rec.Body.Bytes())
	require.NoError(t, err)
	require.False(t, resp.HasValue)
}

func TestJoinSucceedsForKnownSession(t *testing.T) {
	s, core := newTestServer(t)
	sess := session.New(1, session.ConnectionID(10), "lobby", 4)
	require.NoError(t, core.Registry().AddSession(sess))

	body := wire.EncodeJoinRequest(1)
	req := httptest.NewRequest(http.MethodPost, "/session/join", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleSessionJoin(rec, req)

	resp, err := wire.DecodeTokenResponse(rec.Body.Bytes())
	require.NoError(t, err)
	require.True(t, resp.HasValue)

	cache, ok := core.JoinCacheStore().TryExtract(resp.Value)
	require.True(t, ok)
	require.Equal(t, uint64(1), cache.SessionID)
}

func TestSessionListReturnsPreviews(t *testing.T) {
	s, core := newTestServer(t)
	require.NoError(t, core.Registry().AddSession(session.New(1, session.ConnectionID(10), "lobby", 4)))

	req := httptest.NewRequest(http.MethodGet, "/session/list", nil)
	rec := httptest.NewRecorder()
	s.handleSessionList(rec, req)

	previews, err := wire.DecodeSessionPreviewList(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, previews, 1)
	require.Equal(t, "lobby", previews[0].Name)
}

func TestModifyReturnsRedeemableToken(t *testing.T) {
	s, core := newTestServer(t)
	body := wire.EncodeSessionInfo(wire.SessionInfo{Name: "renamed", MaxMembers: 2})

	req := httptest.NewRequest(http.MethodPost, "/session/modify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleSessionModify(rec, req)

	resp, err := wire.DecodeTokenResponse(rec.Body.Bytes())
	require.NoError(t, err)
	require.True(t, resp.HasValue)

	cache, ok := core.ModifyCacheStore().TryExtract(resp.Value)
	require.True(t, ok)
	require.Equal(t, "renamed", cache.Info.Name)
}
