package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

const commandsCollection = "commands"

// CommandRepository implements repositories.CommandHistory using MongoDB
type CommandRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewCommandRepository creates the repository and ensures its indexes in the background.
func NewCommandRepository(db *mongo.Database, logger *zap.Logger) repositories.CommandHistory {
	collection := db.Collection(commandsCollection)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		deviceIndex := mongo.IndexModel{
			Keys: bson.D{
				{Key: "device_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		}
		createdIndex := mongo.IndexModel{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		}

		if _, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{deviceIndex, createdIndex}); err != nil {
			logger.Error("Failed to create command indexes", zap.Error(err))
		} else {
			logger.Info("Command indexes created")
		}
	}()

	return &CommandRepository{
		collection: collection,
		logger:     logger,
	}
}

// Record implements repositories.CommandHistory
func (r *CommandRepository) Record(ctx context.Context, record *entities.CommandRecord) error {
	if record == nil {
		return errors.New("command record cannot be nil")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// ListByDevice implements repositories.CommandHistory, newest first.
func (r *CommandRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*entities.CommandRecord, error) {
	if deviceID == "" {
		return nil, errors.New("device ID cannot be empty")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"device_id": deviceID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands for device %s: %w", deviceID, err)
	}
	defer cursor.Close(ctx)

	records := make([]*entities.CommandRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode commands: %w", err)
	}
	return records, nil
}

// PruneOlderThan implements repositories.CommandHistory
func (r *CommandRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to prune commands: %w", err)
	}
	return result.DeletedCount, nil
}
