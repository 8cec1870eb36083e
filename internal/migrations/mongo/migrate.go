package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"courtq/internal/migrations/mongo/validators"
	"courtq/internal/reservations/repository"
	"courtq/pkg/logger"
)

var (
	ReservationsIndexes = []mongo.IndexModel{
		// At most one PENDING holder or CONFIRMED row per slot key.
		{
			Keys: bson.D{
				{Key: "resource_id", Value: 1},
				{Key: "date", Value: 1},
				{Key: "start_time", Value: 1},
			},
			Options: options.Index().
				SetName("one_holder_per_slot").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"holds_slot": true}),
		},
		{
			Keys: bson.D{
				{Key: "resource_id", Value: 1},
				{Key: "date", Value: 1},
				{Key: "start_time", Value: 1},
				{Key: "is_in_queue", Value: 1},
				{Key: "status", Value: 1},
				{Key: "queue_position", Value: 1},
			},
			Options: options.Index().SetName("slot_queue"),
		},
		{
			Keys: bson.D{{Key: "payment_expires_at", Value: 1}},
			Options: options.Index().
				SetName("pending_hold_expiry").
				SetPartialFilterExpression(repository.PendingHoldFilter()),
		},
		{
			Keys: bson.D{
				{Key: "requester_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("requester_history"),
		},
	}
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// RunMigration creates the reservation collections with their validators
// and indexes. Running it again updates validators and is otherwise a
// no-op.
func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	collections := map[string]collectionDef{
		repository.CollectionName: {
			Indexes:   ReservationsIndexes,
			Validator: validators.ReservationValidator,
		},
		repository.LockCollectionName: {
			Validator: validators.SlotLockValidator,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All Mongo migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if len(models) == 0 {
		return nil
	}
	names, err := db.Collection(name).Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "indexes", names)
	return nil
}
