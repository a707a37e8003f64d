package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/helixdata/onboard-engine/pkg/database"
)

// AttemptRepository records every onboarding or update attempt, whether
// it is accepted or rejected. One document per (app, call type) pair
// carries a running attempt counter.
type AttemptRepository interface {
	Record(ctx context.Context, appName, callType string) error
}

type attemptRepository struct {
	collection *mongo.Collection
}

// NewAttemptRepository creates a new attempt audit repository.
func NewAttemptRepository(db *database.DB, collection string) AttemptRepository {
	return &attemptRepository{collection: db.Collection(collection)}
}

func (r *attemptRepository) Record(ctx context.Context, appName, callType string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"app_name": appName, "call_type": callType},
		bson.M{
			"$inc": bson.M{"count": 1},
			"$set": bson.M{"timestamp": time.Now().UTC().Format(time.RFC3339)},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s attempt for %q: %w", callType, appName, err)
	}
	return nil
}
