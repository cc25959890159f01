package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teakspice/storefront/internal/domain/address"
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

const selectAddresses = `SELECT id, user_id, label, full_name, phone, email, line1, line2, city, state,
	pincode, country, is_default, created_at FROM addresses`

func scanAddress(row pgx.CollectableRow) (address.Address, error) {
	var a address.Address
	err := row.Scan(&a.ID, &a.UserID, &a.Label, &a.FullName, &a.Phone, &a.Email, &a.Line1, &a.Line2,
		&a.City, &a.State, &a.Pincode, &a.Country, &a.IsDefault, &a.CreatedAt)
	return a, err
}

func (r *AddressRepository) Get(ctx context.Context, userID, id string) (*address.Address, error) {
	rows, err := r.pool.Query(ctx, selectAddresses+` WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get address")
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, address.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan address")
	}
	return &a, nil
}

// List returns the user's addresses, default first.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]address.Address, error) {
	rows, err := r.pool.Query(ctx, selectAddresses+` WHERE user_id = $1 ORDER BY is_default DESC, created_at`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	out, err := pgx.CollectRows(rows, scanAddress)
	if err != nil {
		return nil, errors.Wrap(err, "scan addresses")
	}
	return out, nil
}

func (r *AddressRepository) Save(ctx context.Context, a *address.Address) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if a.IsDefault {
			if _, err := tx.Exec(ctx,
				`UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND id <> $2 AND is_default`,
				a.UserID, a.ID); err != nil {
				return errors.Wrap(err, "clear default address")
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO addresses (id, user_id, label, full_name, phone, email, line1, line2, city, state,
				pincode, country, is_default, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				label = EXCLUDED.label,
				full_name = EXCLUDED.full_name,
				phone = EXCLUDED.phone,
				email = EXCLUDED.email,
				line1 = EXCLUDED.line1,
				line2 = EXCLUDED.line2,
				city = EXCLUDED.city,
				state = EXCLUDED.state,
				pincode = EXCLUDED.pincode,
				country = EXCLUDED.country,
				is_default = EXCLUDED.is_default
			WHERE addresses.user_id = EXCLUDED.user_id`,
			a.ID, a.UserID, a.Label, a.FullName, a.Phone, a.Email, a.Line1, a.Line2, a.City, a.State,
			a.Pincode, a.Country, a.IsDefault, a.CreatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "save address %s", a.ID)
		}
		return nil
	})
}
