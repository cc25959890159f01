package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teakspice/storefront/internal/domain/settings"
)

var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository stores the settings document in a single-row table.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get decodes the stored document over the defaults, so fields missing from
// an older document keep their default values.
func (r *SettingsRepository) Get(ctx context.Context) (*settings.Settings, error) {
	s := settings.Default()
	err := r.pool.QueryRow(ctx, `SELECT doc FROM settings WHERE id = 1`).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		d := settings.Default()
		return &d, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get settings")
	}
	return &s, nil
}

func (r *SettingsRepository) Save(ctx context.Context, s *settings.Settings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (id, doc, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`, s)
	if err != nil {
		return errors.Wrap(err, "save settings")
	}
	return nil
}
