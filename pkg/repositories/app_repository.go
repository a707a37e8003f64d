package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/helixdata/onboard-engine/pkg/apperrors"
	"github.com/helixdata/onboard-engine/pkg/database"
	"github.com/helixdata/onboard-engine/pkg/models"
)

// AppRepository defines the interface for application document access.
// Application documents are keyed by app name.
type AppRepository interface {
	Exists(ctx context.Context, appName string) (bool, error)
	Get(ctx context.Context, appName string) (*models.App, error)
	Upsert(ctx context.Context, app *models.App) error
}

// appRepository implements AppRepository on a MongoDB collection.
type appRepository struct {
	collection *mongo.Collection
}

// NewAppRepository creates a new application repository.
func NewAppRepository(db *database.DB, collection string) AppRepository {
	return &appRepository{collection: db.Collection(collection)}
}

// Exists reports whether an application document with the given name is
// already stored.
func (r *appRepository) Exists(ctx context.Context, appName string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"app_name": appName}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check application %q: %w", appName, err)
	}
	return count > 0, nil
}

// Get retrieves an application document by name.
func (r *appRepository) Get(ctx context.Context, appName string) (*models.App, error) {
	var app models.App
	err := r.collection.FindOne(ctx, bson.M{"app_name": appName}).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch application %q: %w", appName, err)
	}
	return &app, nil
}

// Upsert stores the application document, replacing any existing one
// with the same name.
func (r *appRepository) Upsert(ctx context.Context, app *models.App) error {
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"app_name": app.AppName},
		app,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to store application %q: %w", app.AppName, err)
	}
	return nil
}
