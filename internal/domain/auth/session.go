// Package auth resolves storefront sessions to customer identities.
// Sessions are issued elsewhere; this service only looks them up.
package auth

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

// ScopeAdmin grants access to merchant operations.
const ScopeAdmin = "admin"

// ErrNotFound is returned when no session matches the token hash.
var ErrNotFound = errors.New("session not found")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
	Scopes []string
}

// HasScope reports whether the identity was granted scope.
func (i Identity) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// Session binds a hashed bearer token to an identity.
type Session struct {
	ID        string
	TokenHash string
	Identity  Identity
	ExpiresAt *time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Repository provides lookup of sessions by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Session, error)
	Create(ctx context.Context, s *Session) error
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
