package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	chatrepository "rideshare/internal/chat/repository"
	confirmationsrepository "rideshare/internal/confirmations/repository"
	listingsrepository "rideshare/internal/listings/repository"
	"rideshare/internal/migrations/mongo/validators"
	notificationsrepository "rideshare/internal/notifications/repository"
	"rideshare/pkg/logger"
)

func listingIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "is_closed", Value: 1}, {Key: "scheduled_at", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "scheduled_at", Value: -1}}},
		{Keys: bson.D{{Key: "origin", Value: 1}, {Key: "destination", Value: 1}}},
	}
}

// uniquePerPassenger keeps one confirmation per passenger and listing. The
// partial filter lets rides and trips share the collection.
func uniquePerPassenger(field string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}, {Key: "passenger_id", Value: 1}},
		Options: options.Index().
			SetName(field + "_passenger_unique").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{field: bson.M{"$exists": true}}),
	}
}

var (
	TripsIndexes = append(listingIndexes(),
		mongo.IndexModel{Keys: bson.D{{Key: "trip.airport", Value: 1}, {Key: "scheduled_at", Value: 1}}},
	)

	ConfirmationsIndexes = []mongo.IndexModel{
		uniquePerPassenger("ride_id"),
		uniquePerPassenger("trip_id"),
		{Keys: bson.D{{Key: "ride_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "trip_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "passenger_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	MessagesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}}},
	}

	NotificationsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "created_at", Value: -1}}},
	}
)

type CollectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func Collections() map[string]CollectionDef {
	return map[string]CollectionDef{
		listingsrepository.RidesCollection: {
			Indexes:   listingIndexes(),
			Validator: validators.RideValidator,
		},
		listingsrepository.TripsCollection: {
			Indexes:   TripsIndexes,
			Validator: validators.TripValidator,
		},
		confirmationsrepository.CollectionName: {
			Indexes:   ConfirmationsIndexes,
			Validator: validators.ConfirmationValidator,
		},
		chatrepository.CollectionName: {
			Indexes:   MessagesIndexes,
			Validator: validators.MessageValidator,
		},
		notificationsrepository.CollectionName: {
			Indexes:   NotificationsIndexes,
			Validator: validators.NotificationValidator,
		},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for name, def := range Collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
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
	names, err := db.Collection(name).Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "indexes", names)
	return nil
}
