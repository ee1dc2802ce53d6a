// Package keystore is a minimal in-memory reference implementation of
// root-key storage. The core macaroon package has no opinion about how
// root keys are stored or looked up -- that's left to the embedding
// application -- and this package is one reasonable answer, never
// required by anything in the core.
package keystore

import (
	"crypto/sha256"
	"sync"

	"github.com/macaroonkit/macaroon"
)

const keyIDSize = sha256.Size

// KeyID identifies a SigningKey by the SHA-256 digest of its bytes, so
// keys can be indexed without requiring the caller to invent names for
// them.
type KeyID [keyIDSize]byte

// KeyIDFor computes the KeyID of key.
func KeyIDFor(key macaroon.SigningKey) KeyID {
	return sha256.Sum256(key)
}

// Store is an in-memory, concurrency-safe map from KeyID to the signing
// key it identifies.
type Store struct {
	mu   sync.RWMutex
	keys map[KeyID]macaroon.SigningKey
}

// New returns an empty Store.
func New() *Store {
	return &Store{keys: map[KeyID]macaroon.SigningKey{}}
}

// Add indexes keys by KeyIDFor(key), overwriting any existing entry under
// the same KeyID.
func (s *Store) Add(keys ...macaroon.SigningKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.keys[KeyIDFor(key)] = key
	}
}

// Get looks up a key by its raw KeyID bytes. A kid of the wrong length is
// treated as a lookup miss rather than an error.
func (s *Store) Get(kid []byte) (macaroon.SigningKey, bool) {
	if len(kid) != keyIDSize {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[KeyID(kid)]
	return key, ok
}

// Remove deletes the key identified by KeyIDFor(key), if present.
func (s *Store) Remove(key macaroon.SigningKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, KeyIDFor(key))
}

// Len reports how many keys are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
