// Package wire implements the fixed-layout binary encoding shared by the
// HTTP control plane and the KCP data plane. Every multi-byte integer is
// little-endian; a message is one kind-tag byte followed by kind-specific
// fields. There is no length prefix inside a frame — the transport is
// expected to preserve message boundaries.
package wire

import (
	"encoding/binary"
	"errors"
)

// Errors returned while decoding a frame. These never reach the wire
// themselves; the relay core maps them to a Reason before closing a
// connection.
var (
	ErrTooShort       = errors.New("wire: frame too short")
	ErrUnknownKind    = errors.New("wire: unrecognized message kind")
	ErrBadTokenLength = errors.New("wire: token payload is not 16 bytes")
	ErrBadBodyLength  = errors.New("wire: body has invalid length for its kind")
)

// ClientKind identifies a client → server message.
type ClientKind byte

const (
	KindAuthSession      ClientKind = 0
	KindJoinSession      ClientKind = 1
	KindModifySession    ClientKind = 2
	KindPayload          ClientKind = 3
	KindDisconnectClient ClientKind = 4
)

// ServerKind identifies a server → client message.
type ServerKind byte

const (
	KindServerSideDisconnection ServerKind = 0
	KindClientDisconnected      ServerKind = 1
	KindClientConnected         ServerKind = 2
	KindPayloadRelay            ServerKind = 3
	KindSuccess                 ServerKind = 4
)

// TransferMode is the wire representation of Payload's mode byte. The data
// plane always forwards a message on the reliable channel regardless of
// the sender's requested mode; the byte is pass-through metadata for the
// application above the relay.
type TransferMode byte

const (
	TransferReliable   TransferMode = 0
	TransferUnreliable TransferMode = 1
)

// Reason is the user-visible cause carried on ServerSideDisconnection.
type Reason byte

const (
	// Protocol violations.
	ReasonUnreliableCommunicationNotAllowed Reason = iota
	ReasonInvalidPayloadLength
	ReasonUnrecognizableMessageHeader
	ReasonInvalidTokenPayloadLength
	ReasonInvalidGodotPayloadLength
	ReasonInvalidDisconnectClientPayloadLength

	// Authorization.
	ReasonInvalidAuthToken
	ReasonUnAuthorizedAction
	ReasonTimeOut

	// Capacity / lookup.
	ReasonInvalidSessionId
	ReasonSessionFull

	// Administrative.
	ReasonHostShutdown
	ReasonHostTriggeredDisconnection
	ReasonServerShutdown

	// Internal.
	ReasonServerSideError
)

func (r Reason) String() string {
	switch r {
	case ReasonUnreliableCommunicationNotAllowed:
		return "UnreliableCommunicationNotAllowed"
	case ReasonInvalidPayloadLength:
		return "InvalidPayloadLength"
	case ReasonUnrecognizableMessageHeader:
		return "UnrecognizableMessageHeader"
	case ReasonInvalidTokenPayloadLength:
		return "InvalidTokenPayloadLength"
	case ReasonInvalidGodotPayloadLength:
		return "InvalidGodotPayloadLength"
	case ReasonInvalidDisconnectClientPayloadLength:
		return "InvalidDisconnectClientPayloadLength"
	case ReasonInvalidAuthToken:
		return "InvalidAuthToken"
	case ReasonUnAuthorizedAction:
		return "UnAuthorizedAction"
	case ReasonTimeOut:
		return "TimeOut"
	case ReasonInvalidSessionId:
		return "InvalidSessionId"
	case ReasonSessionFull:
		return "SessionFull"
	case ReasonHostShutdown:
		return "HostShutdown"
	case ReasonHostTriggeredDisconnection:
		return "HostTriggeredDisconnection"
	case ReasonServerShutdown:
		return "ServerShutdown"
	case ReasonServerSideError:
		return "ServerSideError"
	default:
		return "Unknown"
	}
}

// TokenSize is the fixed wire length of a 128-bit token.
const TokenSize = 16

// Token is a 128-bit single-use capability.
type Token [TokenSize]byte

// PayloadHeaderSize is the fixed portion preceding the opaque application
// bytes: recipientLocalId(4) + transferChannel(4) + transferMode(1).
const PayloadHeaderSize = 9

// MinPayloadBodyLength is PayloadHeaderSize plus the required single byte
// of opaque application payload.
const MinPayloadBodyLength = PayloadHeaderSize + 1

// Payload is the decoded body of a Payload/PayloadRelay message.
type Payload struct {
	RecipientLocalID uint32
	TransferChannel  uint32
	TransferMode     TransferMode
	Data             []byte
}

// DecodePayload parses a Payload body (bytes after the kind tag).
func DecodePayload(body []byte) (Payload, error) {
	if len(body) < MinPayloadBodyLength {
		return Payload{}, ErrBadBodyLength
	}
	return Payload{
		RecipientLocalID: binary.LittleEndian.Uint32(body[0:4]),
		TransferChannel:  binary.LittleEndian.Uint32(body[4:8]),
		TransferMode:     TransferMode(body[8]),
		Data:             body[9:],
	}, nil
}

// EncodePayload serializes a Payload body, writing recipient into the
// first 4 bytes. Used both to build the original client Payload frame in
// tests and to build the rewritten PayloadRelay frame in the relay core.
func EncodePayload(recipient uint32, channel uint32, mode TransferMode, data []byte) []byte {
	buf := make([]byte, PayloadHeaderSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], recipient)
	binary.LittleEndian.PutUint32(buf[4:8], channel)
	buf[8] = byte(mode)
	copy(buf[9:], data)
	return buf
}

// RewriteRecipient overwrites bytes [0..3] of an already-encoded payload
// body in place and returns it, avoiding a second allocation on the relay
// hot path.
func RewriteRecipient(body []byte, recipient uint32) []byte {
	binary.LittleEndian.PutUint32(body[0:4], recipient)
	return body
}

// DecodeToken parses a fixed 16-byte token body.
func DecodeToken(body []byte) (Token, error) {
	var t Token
	if len(body) != TokenSize {
		return t, ErrBadTokenLength
	}
	copy(t[:], body)
	return t, nil
}

// EncodeToken serializes a token to its 16-byte wire form.
func EncodeToken(t Token) []byte {
	out := make([]byte, TokenSize)
	copy(out, t[:])
	return out
}

// DecodeDisconnectClient parses a DisconnectClient body: connectionId(4).
func DecodeDisconnectClient(body []byte) (uint32, error) {
	if len(body) != 4 {
		return 0, ErrBadBodyLength
	}
	return binary.LittleEndian.Uint32(body), nil
}

// EncodeDisconnectClient serializes a DisconnectClient body.
func EncodeDisconnectClient(connID uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, connID)
	return buf
}

// EncodeServerSideDisconnection serializes the close notice sent on the
// reliable channel immediately before the connection is dropped.
func EncodeServerSideDisconnection(reason Reason) []byte {
	return []byte{byte(KindServerSideDisconnection), byte(reason)}
}

// EncodeClientDisconnected serializes a host notification that a member
// with the given opaque connection handle left.
func EncodeClientDisconnected(connID uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(KindClientDisconnected)
	binary.LittleEndian.PutUint32(buf[1:], connID)
	return buf
}

// EncodeClientConnected serializes a host notification that a new member
// joined, carrying its opaque handle and its session-visible local id.
func EncodeClientConnected(connID, localID uint32) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(KindClientConnected)
	binary.LittleEndian.PutUint32(buf[1:5], connID)
	binary.LittleEndian.PutUint32(buf[5:9], localID)
	return buf
}

// EncodePayloadRelay serializes a forwarded, rewritten Payload body.
func EncodePayloadRelay(body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(KindPayloadRelay)
	copy(out[1:], body)
	return out
}

// EncodeSuccessLocalID serializes the Success reply to AuthSession/
// JoinSession, carrying the caller's newly assigned local id.
func EncodeSuccessLocalID(localID uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(KindSuccess)
	binary.LittleEndian.PutUint32(buf[1:], localID)
	return buf
}

// EncodeSuccessEmpty serializes the Success reply to ModifySession, which
// carries no body.
func EncodeSuccessEmpty() []byte {
	return []byte{byte(KindSuccess)}
}

// SuccessLocalID decodes the localId out of a Success frame's body (the
// bytes after the kind tag). The wire contract (per the source client)
// treats any length other than 4 or 0 as malformed; an empty body (the
// ModifySession reply) is well-formed but carries no local id, so it also
// reports ok=false here.
func SuccessLocalID(body []byte) (uint32, bool) {
	if len(body) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(body), true
}

// SplitKind returns the leading kind byte and remaining body of a client
// frame. The caller is responsible for checking len(frame) >= 1.
func SplitKind(frame []byte) (ClientKind, []byte) {
	return ClientKind(frame[0]), frame[1:]
}
