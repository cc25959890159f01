package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teakspice/storefront/internal/domain/settings"
)

var _ settings.Repository = (*SettingsRepository)(nil)

const settingsID = "store"

type settingsDoc struct {
	ID        string            `bson:"_id"`
	Settings  settings.Settings `bson:"settings"`
	UpdatedAt time.Time         `bson:"updatedAt"`
}

// SettingsRepository stores the settings document under a fixed id.
type SettingsRepository struct {
	col *mongo.Collection
}

// NewSettingsRepository returns a SettingsRepository on db.
func NewSettingsRepository(db *mongo.Database) *SettingsRepository {
	return &SettingsRepository{col: db.Collection(colSettings)}
}

// Get decodes the stored document over the defaults.
func (r *SettingsRepository) Get(ctx context.Context) (*settings.Settings, error) {
	d := settingsDoc{Settings: settings.Default()}
	err := r.col.FindOne(ctx, bson.M{"_id": settingsID}).Decode(&d)
	if isNotFound(err) {
		s := settings.Default()
		return &s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get settings")
	}
	return &d.Settings, nil
}

func (r *SettingsRepository) Save(ctx context.Context, s *settings.Settings) error {
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": settingsID},
		settingsDoc{ID: settingsID, Settings: *s, UpdatedAt: time.Now()},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrap(err, "save settings")
	}
	return nil
}
