package carrier

import (
	"context"
	"sync"
	"time"
)

const (
	// tokenTTL is how long a login token is cached. The provider's tokens
	// live much longer; this is the refresh interval.
	tokenTTL = 24 * time.Hour
	// refreshMargin is the minimum remaining lifetime for a cached token to
	// be reused.
	refreshMargin = 5 * time.Minute
)

// Token is a cached login token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// usable reports whether t can be used at now.
func (t Token) usable(now time.Time) bool {
	return t.Value != "" && t.ExpiresAt.Sub(now) > refreshMargin
}

// TokenStore caches the carrier login token. Implementations must be safe
// for concurrent use; a lost race between two writers is harmless.
type TokenStore interface {
	// Get returns the cached token and whether one was present.
	Get(ctx context.Context) (Token, bool, error)
	Set(ctx context.Context, t Token) error
	Delete(ctx context.Context) error
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// MemoryTokenStore is a process-local TokenStore.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token Token
	set   bool
}

// NewMemoryTokenStore creates an empty MemoryTokenStore.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get(context.Context) (Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.set = t, true
	return nil
}

func (s *MemoryTokenStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.set = Token{}, false
	return nil
}
