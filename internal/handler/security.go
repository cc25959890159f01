package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/auth"
)

// Security authenticates bearer session tokens. Tokens are stored as
// HMAC-SHA256(pepper, token) so a leaked sessions table cannot be replayed.
type Security struct {
	sessions auth.Repository
	pepper   []byte
	now      func() time.Time
}

// NewSecurity creates a Security backed by the session repository.
func NewSecurity(sessions auth.Repository, pepper []byte) *Security {
	return &Security{sessions: sessions, pepper: pepper, now: time.Now}
}

// HashToken returns the stored form of a session token.
func HashToken(pepper []byte, token string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves the bearer token to an identity or answers 401.
func (s *Security) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		id, err := s.identify(r, strings.TrimSpace(token))
		if err != nil {
			if !errors.Is(err, auth.ErrNotFound) {
				zctx.From(r.Context()).Error("Session lookup failed", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session")
			return
		}

		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.With(ctx, zap.String("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Security) identify(r *http.Request, token string) (auth.Identity, error) {
	hash := HashToken(s.pepper, token)
	sess, err := s.sessions.FindByHash(r.Context(), hash)
	if err != nil {
		return auth.Identity{}, err
	}

	want, err := hex.DecodeString(hash)
	if err != nil {
		return auth.Identity{}, errors.Wrap(err, "decode hash")
	}
	stored, err := hex.DecodeString(sess.TokenHash)
	if err != nil || subtle.ConstantTimeCompare(want, stored) != 1 {
		return auth.Identity{}, auth.ErrNotFound
	}
	if sess.Expired(s.now()) {
		return auth.Identity{}, auth.ErrNotFound
	}
	return sess.Identity, nil
}

// RequireScope answers 403 unless the caller holds scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !identity(r).HasScope(scope) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "requires "+scope+" scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
