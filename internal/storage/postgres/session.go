package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teakspice/storefront/internal/domain/auth"
)

var _ auth.Repository = (*SessionRepository)(nil)

// SessionRepository provides session lookups backed by PostgreSQL.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository returns a SessionRepository that uses the given pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// FindByHash looks up a session by the HMAC of its bearer token.
func (r *SessionRepository) FindByHash(ctx context.Context, hash string) (*auth.Session, error) {
	var s auth.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, token_hash, user_id, email, scopes, expires_at
		FROM sessions WHERE token_hash = $1`, hash,
	).Scan(&s.ID, &s.TokenHash, &s.Identity.UserID, &s.Identity.Email, &s.Identity.Scopes, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find session")
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	scopes := s.Identity.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, token_hash, user_id, email, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_hash) DO UPDATE SET
			user_id = EXCLUDED.user_id, email = EXCLUDED.email,
			scopes = EXCLUDED.scopes, expires_at = EXCLUDED.expires_at`,
		s.ID, s.TokenHash, s.Identity.UserID, s.Identity.Email, scopes, s.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "create session")
	}
	return nil
}
