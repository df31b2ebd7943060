package wire

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned when an HTTP body ends before a length-prefixed
// field is fully readable.
var ErrTruncated = errors.New("wire: truncated http body")

// SessionInfo is the request body of /session/allocate and /session/modify.
type SessionInfo struct {
	Name       string
	MaxMembers uint32
}

// IsValid reports whether the info can back a session: non-empty trimmed
// name and a positive capacity.
func (s SessionInfo) IsValid() bool {
	return trimmedNonEmpty(s.Name) && s.MaxMembers > 0
}

func trimmedNonEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}

// EncodeSessionInfo serializes {uint16 nameLen, name bytes, uint32 maxMembers}.
func EncodeSessionInfo(s SessionInfo) []byte {
	nameBytes := []byte(s.Name)
	buf := make([]byte, 2+len(nameBytes)+4)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(nameBytes)))
	copy(buf[2:2+len(nameBytes)], nameBytes)
	binary.LittleEndian.PutUint32(buf[2+len(nameBytes):], s.MaxMembers)
	return buf
}

// DecodeSessionInfo parses the body written by EncodeSessionInfo.
func DecodeSessionInfo(body []byte) (SessionInfo, error) {
	if len(body) < 2 {
		return SessionInfo{}, ErrTruncated
	}
	nameLen := int(binary.LittleEndian.Uint16(body[0:2]))
	if len(body) < 2+nameLen+4 {
		return SessionInfo{}, ErrTruncated
	}
	name := string(body[2 : 2+nameLen])
	maxMembers := binary.LittleEndian.Uint32(body[2+nameLen : 2+nameLen+4])
	return SessionInfo{Name: name, MaxMembers: maxMembers}, nil
}

// TokenResponse is the /session/allocate, /session/join and /session/modify
// response body: a single-use capability, or a carried error message.
type TokenResponse struct {
	Value    Token
	HasValue bool
	ErrorMsg string
}

// TokenFromValue builds a successful TokenResponse.
func TokenFromValue(v Token) TokenResponse {
	return TokenResponse{Value: v, HasValue: true}
}

// TokenFromError builds a failed TokenResponse carrying a message. Callers
// still receive HTTP 200; HasValue=false is the logical failure signal.
func TokenFromError(msg string) TokenResponse {
	return TokenResponse{HasValue: false, ErrorMsg: msg}
}

// EncodeTokenResponse serializes {hasValue(1), then either 16 raw token
// bytes or uint16 msgLen + msg bytes}.
func EncodeTokenResponse(t TokenResponse) []byte {
	if t.HasValue {
		buf := make([]byte, 1+TokenSize)
		buf[0] = 1
		copy(buf[1:], t.Value[:])
		return buf
	}
	msgBytes := []byte(t.ErrorMsg)
	buf := make([]byte, 1+2+len(msgBytes))
	buf[0] = 0
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(msgBytes)))
	copy(buf[3:], msgBytes)
	return buf
}

// DecodeTokenResponse parses the body written by EncodeTokenResponse.
func DecodeTokenResponse(body []byte) (TokenResponse, error) {
	if len(body) < 1 {
		return TokenResponse{}, ErrTruncated
	}
	if body[0] == 1 {
		if len(body) != 1+TokenSize {
			return TokenResponse{}, ErrTruncated
		}
		var v Token
		copy(v[:], body[1:])
		return TokenFromValue(v), nil
	}
	if len(body) < 3 {
		return TokenResponse{}, ErrTruncated
	}
	msgLen := int(binary.LittleEndian.Uint16(body[1:3]))
	if len(body) < 3+msgLen {
		return TokenResponse{}, ErrTruncated
	}
	return TokenFromError(string(body[3 : 3+msgLen])), nil
}

// SessionPreview is one row of the /session/list response.
type SessionPreview struct {
	SessionID       uint64
	Name            string
	MaxMembers      uint32
	CurrentMembers  uint32
}

// EncodeSessionPreviewList serializes {uint32 count, repeated previews}.
// Each preview is {uint64 id, uint16 nameLen, name, uint32 max, uint32 current}.
func EncodeSessionPreviewList(previews []SessionPreview) []byte {
	size := 4
	for _, p := range previews {
		size += 8 + 2 + len(p.Name) + 4 + 4
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(previews)))
	off := 4
	for _, p := range previews {
		binary.LittleEndian.PutUint64(buf[off:off+8], p.SessionID)
		off += 8
		nameBytes := []byte(p.Name)
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(nameBytes)))
		off += 2
		copy(buf[off:off+len(nameBytes)], nameBytes)
		off += len(nameBytes)
		binary.LittleEndian.PutUint32(buf[off:off+4], p.MaxMembers)
		off += 4
		binary.LittleEndian.PutUint32(buf[off:off+4], p.CurrentMembers)
		off += 4
	}
	return buf
}

// DecodeSessionPreviewList parses the body written by EncodeSessionPreviewList.
func DecodeSessionPreviewList(body []byte) ([]SessionPreview, error) {
	if len(body) < 4 {
		return nil, ErrTruncated
	}
	count := int(binary.LittleEndian.Uint32(body[0:4]))
	off := 4
	out := make([]SessionPreview, 0, count)
	for i := 0; i < count; i++ {
		if len(body) < off+8+2 {
			return nil, ErrTruncated
		}
		id := binary.LittleEndian.Uint64(body[off : off+8])
		off += 8
		nameLen := int(binary.LittleEndian.Uint16(body[off : off+2]))
		off += 2
		if len(body) < off+nameLen+8 {
			return nil, ErrTruncated
		}
		name := string(body[off : off+nameLen])
		off += nameLen
		maxMembers := binary.LittleEndian.Uint32(body[off : off+4])
		off += 4
		current := binary.LittleEndian.Uint32(body[off : off+4])
		off += 4
		out = append(out, SessionPreview{SessionID: id, Name: name, MaxMembers: maxMembers, CurrentMembers: current})
	}
	return out, nil
}

// EncodeJoinRequest serializes the /session/join body: uint64 sessionId.
func EncodeJoinRequest(sessionID uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, sessionID)
	return buf
}

// DecodeJoinRequest parses the body written by EncodeJoinRequest.
func DecodeJoinRequest(body []byte) (uint64, error) {
	if len(body) != 8 {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint64(body), nil
}
