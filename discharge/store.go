// Package discharge is an optional convenience layer for fetching
// third-party discharge tokens over HTTP. The core macaroon package has no
// networking and no opinion about transport -- that's left to the
// embedding application -- and this package is one reasonable way to
// satisfy it: a third-party caveat's caveat_id is itself what gets POSTed
// to the third party, with no separate encrypted ticket in front of it.
package discharge

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

// newPollSecret mints an unguessable poll secret.
func newPollSecret() string {
	return uuid.NewString()
}

// Result is what a pending discharge poll eventually resolves to: either a
// minted discharge bundle (EncodeBundle'd discharge token) or an error
// message explaining why discharge was refused.
type Result struct {
	Discharge []byte
	Err       string
}

// Ready reports whether r holds a terminal outcome (success or refusal)
// rather than being a zero-value placeholder for a still-pending poll.
func (r *Result) Ready() bool {
	return r != nil && (len(r.Discharge) > 0 || r.Err != "")
}

// Store holds pending/completed discharge poll results, keyed by an
// opaque poll secret the server hands back to a polling client.
type Store interface {
	Insert(ctx context.Context, result *Result) (pollSecret string, err error)
	GetByPollSecret(ctx context.Context, pollSecret string) (*Result, error)
	UpdateByPollSecret(ctx context.Context, pollSecret string, result *Result) error
	DeleteByPollSecret(ctx context.Context, pollSecret string) error
}

var errNotFound = errors.New("discharge: not found")

// MemoryStore is an LRU-bounded in-memory Store: blake2b-digested cache
// keys, sync.RWMutex-guarded entries, a single poll-secret axis (there's
// no separate user-interactive secret here, since this flow has no notion
// of a user-facing browser redirect).
type MemoryStore struct {
	cache *lru.Cache[string, *lockedResult]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a MemoryStore holding at most size pending/recent
// discharge polls.
func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New[string, *lockedResult](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Insert(_ context.Context, result *Result) (string, error) {
	pollSecret := newPollSecret()
	s.cache.Add(pollSecretKey(pollSecret), &lockedResult{Result: *result})
	return pollSecret, nil
}

func (s *MemoryStore) GetByPollSecret(_ context.Context, pollSecret string) (*Result, error) {
	lr, ok := s.cache.Get(pollSecretKey(pollSecret))
	if !ok {
		return nil, errNotFound
	}
	return lr.get(), nil
}

func (s *MemoryStore) UpdateByPollSecret(_ context.Context, pollSecret string, result *Result) error {
	lr, ok := s.cache.Get(pollSecretKey(pollSecret))
	if !ok {
		return errNotFound
	}
	lr.set(result)
	return nil
}

func (s *MemoryStore) DeleteByPollSecret(_ context.Context, pollSecret string) error {
	key := pollSecretKey(pollSecret)
	if _, ok := s.cache.Get(key); !ok {
		return errNotFound
	}
	s.cache.Remove(key)
	return nil
}

func pollSecretKey(pollSecret string) string {
	d := blake2b.Sum256([]byte(pollSecret))
	return hex.EncodeToString(d[:])
}

type lockedResult struct {
	Result
	sync.RWMutex
}

func (lr *lockedResult) get() *Result {
	lr.RLock()
	defer lr.RUnlock()
	r := lr.Result
	return &r
}

func (lr *lockedResult) set(result *Result) {
	lr.Lock()
	defer lr.Unlock()
	lr.Result = *result
}
