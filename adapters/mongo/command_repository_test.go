package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// Requires a running MongoDB instance (skipped if MONGODB_URI is not set)
func TestCommandRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	testDB := client.Database("c4_voice_relay_test")
	defer testDB.Drop(ctx)

	repo := NewCommandRepository(testDB, zap.NewNop())

	t.Run("RecordAndList", func(t *testing.T) {
		deviceID := "test-device-001"
		for i, transcript := range []string{"turn on the kitchen lights", "turn off the tv"} {
			record := &entities.CommandRecord{
				DeviceID:   deviceID,
				Source:     entities.SourceText,
				Transcript: transcript,
				Outcome:    entities.OutcomeComplete,
				CreatedAt:  time.Now().UTC().Add(time.Duration(i) * time.Second),
			}
			if err := repo.Record(ctx, record); err != nil {
				t.Fatalf("Failed to record command: %v", err)
			}
			if record.ID == "" {
				t.Fatal("Expected record ID to be assigned")
			}
		}

		records, err := repo.ListByDevice(ctx, deviceID, 10)
		if err != nil {
			t.Fatalf("Failed to list commands: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(records))
		}
		if records[0].Transcript != "turn off the tv" {
			t.Errorf("Expected newest record first, got %q", records[0].Transcript)
		}
	})

	t.Run("PruneOlderThan", func(t *testing.T) {
		deviceID := "test-device-002"
		old := &entities.CommandRecord{DeviceID: deviceID, CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
		recent := &entities.CommandRecord{DeviceID: deviceID, CreatedAt: time.Now().UTC()}
		for _, r := range []*entities.CommandRecord{old, recent} {
			if err := repo.Record(ctx, r); err != nil {
				t.Fatalf("Failed to record command: %v", err)
			}
		}

		deleted, err := repo.PruneOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("Failed to prune: %v", err)
		}
		if deleted != 1 {
			t.Errorf("Expected 1 deleted record, got %d", deleted)
		}

		records, _ := repo.ListByDevice(ctx, deviceID, 0)
		if len(records) != 1 {
			t.Errorf("Expected 1 remaining record, got %d", len(records))
		}
	})
}
