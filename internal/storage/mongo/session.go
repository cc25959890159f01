package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teakspice/storefront/internal/domain/auth"
)

var _ auth.Repository = (*SessionRepository)(nil)

type sessionDoc struct {
	ID        string     `bson:"_id"`
	TokenHash string     `bson:"tokenHash"`
	UserID    string     `bson:"userId"`
	Email     string     `bson:"email"`
	Scopes    []string   `bson:"scopes"`
	ExpiresAt *time.Time `bson:"expiresAt"`
}

// SessionRepository provides session lookups backed by MongoDB.
type SessionRepository struct {
	col *mongo.Collection
}

// NewSessionRepository returns a SessionRepository on db.
func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{col: db.Collection(colSessions)}
}

func (r *SessionRepository) FindByHash(ctx context.Context, hash string) (*auth.Session, error) {
	var d sessionDoc
	if err := r.col.FindOne(ctx, bson.M{"tokenHash": hash}).Decode(&d); err != nil {
		if isNotFound(err) {
			return nil, auth.ErrNotFound
		}
		return nil, errors.Wrap(err, "find session")
	}
	return &auth.Session{
		ID:        d.ID,
		TokenHash: d.TokenHash,
		Identity:  auth.Identity{UserID: d.UserID, Email: d.Email, Scopes: d.Scopes},
		ExpiresAt: d.ExpiresAt,
	}, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"tokenHash": s.TokenHash},
		sessionDoc{
			ID:        s.ID,
			TokenHash: s.TokenHash,
			UserID:    s.Identity.UserID,
			Email:     s.Identity.Email,
			Scopes:    nonNil(s.Identity.Scopes),
			ExpiresAt: s.ExpiresAt,
		},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrap(err, "create session")
	}
	return nil
}
