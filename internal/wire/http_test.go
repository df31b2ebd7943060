package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionInfoRoundTrip(t *testing.T) {
	info := SessionInfo{Name: "lobby", MaxMembers: 4}
	body := EncodeSessionInfo(info)
	decoded, err := DecodeSessionInfo(body)
	require.NoError(t, err)
	require.Equal(t, info, decoded)
	require.True(t, decoded.IsValid())
}

func TestSessionInfoInvalid(t *testing.T) {
	require.False(t, SessionInfo{Name: "  ", MaxMembers: 4}.IsValid())
	require.False(t, SessionInfo{Name: "lobby", MaxMembers: 0}.IsValid())
	require.True(t, SessionInfo{Name: "lobby", MaxMembers: 1}.IsValid())
}

func TestTokenResponseRoundTripSuccess(t *testing.T) {
	var tok Token
	tok[0] = 0xAB
	resp := TokenFromValue(tok)
	body := EncodeTokenResponse(resp)
	decoded, err := DecodeTokenResponse(body)
	require.NoError(t, err)
	require.True(t, decoded.HasValue)
	require.Equal(t, tok, decoded.Value)
}

func TestTokenResponseRoundTripError(t *testing.T) {
	resp := TokenFromError("name must not be empty")
	body := EncodeTokenResponse(resp)
	decoded, err := DecodeTokenResponse(body)
	require.NoError(t, err)
	require.False(t, decoded.HasValue)
	require.Equal(t, "name must not be empty", decoded.ErrorMsg)
}

func TestSessionPreviewListRoundTrip(t *testing.T) {
	previews := []SessionPreview{
		{SessionID: 1, Name: "lobby", MaxMembers: 4, CurrentMembers: 2},
		{SessionID: 2, Name: "arena", MaxMembers: 8, CurrentMembers: 0},
	}
	body := EncodeSessionPreviewList(previews)
	decoded, err := DecodeSessionPreviewList(body)
	require.NoError(t, err)
	require.Equal(t, previews, decoded)
}

func TestSessionPreviewListEmpty(t *testing.T) {
	body := EncodeSessionPreviewList(nil)
	decoded, err := DecodeSessionPreviewList(body)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestJoinRequestRoundTrip(t *testing.T) {
	body := EncodeJoinRequest(12345)
	id, err := DecodeJoinRequest(body)
	require.NoError(t, err)
	require.Equal(t, uint64(12345), id)
}
