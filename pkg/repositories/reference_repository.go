package repositories

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/helixdata/onboard-engine/pkg/database"
	"github.com/helixdata/onboard-engine/pkg/models"
)

// ReferenceRepository persists reference records, one per accepted
// onboarding or update request.
type ReferenceRepository interface {
	Create(ctx context.Context, record *models.ReferenceRecord) error
}

type referenceRepository struct {
	collection *mongo.Collection
}

// NewReferenceRepository creates a new reference record repository.
func NewReferenceRepository(db *database.DB, collection string) ReferenceRepository {
	return &referenceRepository{collection: db.Collection(collection)}
}

func (r *referenceRepository) Create(ctx context.Context, record *models.ReferenceRecord) error {
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to store reference record for %q: %w", record.AppName, err)
	}
	return nil
}
