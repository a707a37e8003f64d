package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/helixdata/onboard-engine/pkg/database"
	"github.com/helixdata/onboard-engine/pkg/models"
)

// CompletionTaskRepository persists the outbox records that drive the
// background completion phase. A task is created in the same request
// that returns 201 to the client, so pending tasks found at startup are
// exactly the ones interrupted by a crash.
type CompletionTaskRepository interface {
	Create(ctx context.Context, task *models.CompletionTask) error
	MarkCompleted(ctx context.Context, taskID string) error
	MarkFailed(ctx context.Context, taskID string, attempts int, reason string) error
	ListPending(ctx context.Context) ([]models.CompletionTask, error)
}

type completionTaskRepository struct {
	collection *mongo.Collection
}

// NewCompletionTaskRepository creates a new completion task repository.
func NewCompletionTaskRepository(db *database.DB, collection string) CompletionTaskRepository {
	return &completionTaskRepository{collection: db.Collection(collection)}
}

func (r *completionTaskRepository) Create(ctx context.Context, task *models.CompletionTask) error {
	now := time.Now().UTC()
	task.Status = models.TaskPending
	task.CreatedAt = now
	task.UpdatedAt = now
	if _, err := r.collection.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to create completion task %q: %w", task.TaskID, err)
	}
	return nil
}

func (r *completionTaskRepository) MarkCompleted(ctx context.Context, taskID string) error {
	return r.setStatus(ctx, taskID, bson.M{
		"status":     models.TaskCompleted,
		"updated_at": time.Now().UTC(),
	})
}

func (r *completionTaskRepository) MarkFailed(ctx context.Context, taskID string, attempts int, reason string) error {
	return r.setStatus(ctx, taskID, bson.M{
		"status":     models.TaskFailed,
		"attempts":   attempts,
		"last_error": reason,
		"updated_at": time.Now().UTC(),
	})
}

func (r *completionTaskRepository) setStatus(ctx context.Context, taskID string, fields bson.M) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"task_id": taskID},
		bson.M{"$set": fields},
	)
	if err != nil {
		return fmt.Errorf("failed to update completion task %q: %w", taskID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("completion task %q not found", taskID)
	}
	return nil
}

func (r *completionTaskRepository) ListPending(ctx context.Context) ([]models.CompletionTask, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"status": models.TaskPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending completion tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.CompletionTask
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode pending completion tasks: %w", err)
	}
	return tasks, nil
}
