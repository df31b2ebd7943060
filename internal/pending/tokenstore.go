package pending

import (
	"github.com/google/uuid"

	"github.com/vibing/relayd/internal/wire"
)

// maxTokenCollisionRetries bounds the retry loop for the astronomically
// unlikely event of a UUIDv4 collision against a live token.
const maxTokenCollisionRetries = 8

// TokenStore is a Store keyed by a 128-bit wire.Token, adding token
// generation with collision retry on top of the generic Store. It backs
// each of C2's three disjoint caches (CreateCache, JoinCache, ModifyCache).
type TokenStore[V any] struct {
	*Store[wire.Token, V]
}

// NewTokenStore creates a TokenStore. onExpire may be nil; the relay core's
// three session-lifecycle caches use it only to count expiries. The
// pending-KCP-connection store is a plain Store keyed by ConnectionID (see
// internal/relay), and it is the one whose hook closes the connection.
func NewTokenStore[V any](onExpire func(wire.Token, V)) *TokenStore[V] {
	return &TokenStore[V]{Store: New(onExpire)}
}

// Add generates a fresh token, retries on the vanishingly rare collision,
// stores value under it, and returns the token.
func (s *TokenStore[V]) Add(value V) (wire.Token, error) {
	for i := 0; i < maxTokenCollisionRetries; i++ {
		tok := newToken()
		if err := s.AddWithKey(tok, value); err == nil {
			return tok, nil
		}
	}
	return wire.Token{}, ErrKeyExists
}

func newToken() wire.Token {
	var t wire.Token
	id := uuid.New()
	copy(t[:], id[:])
	return t
}
