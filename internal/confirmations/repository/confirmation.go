package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	confirmationserrors "rideshare/internal/confirmations/errors"
	"rideshare/pkg/config"
	mongotx "rideshare/pkg/db/mongo"
	"rideshare/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Confirmations"

type ConfirmationRepository interface {
	Create(ctx context.Context, c *model.Confirmation) error
	FindByID(ctx context.Context, id string) (*model.Confirmation, error)
	FindByListingAndPassenger(ctx context.Context, ref model.ListingRef, passengerID string) (*model.Confirmation, error)
	FindByListing(ctx context.Context, ref model.ListingRef, status model.ConfirmationStatus) ([]*model.Confirmation, error)
	FindByUser(ctx context.Context, role model.ConfirmationRole, userID string, status model.ConfirmationStatus, limit int, offset int64) ([]*model.Confirmation, error)
	CountByUser(ctx context.Context, role model.ConfirmationRole, userID string, status model.ConfirmationStatus) (int64, error)

	// UpdateStatus moves the row from one status to another only if it is
	// still in the from status. It reports whether the row matched.
	UpdateStatus(ctx context.Context, id string, from, to model.ConfirmationStatus, confirmedAt *time.Time, now time.Time) (bool, error)

	// Resubmit moves a rejected row back to pending with the passenger's
	// latest seats and message. It reports whether the row was still rejected.
	Resubmit(ctx context.Context, id string, seats int, message string, now time.Time) (bool, error)

	// RejectPendingByListing rejects the pending rows of a listing and returns
	// those it actually moved, as they were before the update.
	RejectPendingByListing(ctx context.Context, ref model.ListingRef, now time.Time) ([]*model.Confirmation, error)

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoConfirmationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoConfirmationRepository(cfg *config.Config) ConfirmationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoConfirmationRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func listingField(kind model.ListingKind) string {
	if kind == model.KindTrip {
		return "trip_id"
	}
	return "ride_id"
}

func listingFilter(ref model.ListingRef) bson.M {
	return bson.M{listingField(ref.Kind): ref.ID}
}

func userFilter(role model.ConfirmationRole, userID string, status model.ConfirmationStatus) bson.M {
	field := "passenger_id"
	if role == model.RoleOwner {
		field = "owner_id"
	}
	filter := bson.M{field: userID}
	if status != "" {
		filter["status"] = status
	}
	return filter
}

func (r *mongoConfirmationRepository) Create(ctx context.Context, c *model.Confirmation) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := c.Ref(); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	c.CreatedAt, c.UpdatedAt = now, now

	result, err := r.collection.InsertOne(ctx, c)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return confirmationserrors.ErrDuplicate
		}
		return fmt.Errorf("failed to create confirmation: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		c.ID = oid.Hex()
	}
	return nil
}

func (r *mongoConfirmationRepository) FindByID(ctx context.Context, id string) (*model.Confirmation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", confirmationserrors.ErrInvalidID, id)
	}

	var c model.Confirmation
	if err := r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", confirmationserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find confirmation: %w", err)
	}
	return &c, nil
}

func (r *mongoConfirmationRepository) FindByListingAndPassenger(ctx context.Context, ref model.ListingRef, passengerID string) (*model.Confirmation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := listingFilter(ref)
	filter["passenger_id"] = passengerID

	var c model.Confirmation
	if err := r.collection.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, confirmationserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find confirmation for passenger: %w", err)
	}
	return &c, nil
}

func (r *mongoConfirmationRepository) FindByListing(ctx context.Context, ref model.ListingRef, status model.ConfirmationStatus) ([]*model.Confirmation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := listingFilter(ref)
	if status != "" {
		filter["status"] = status
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmations for %s %s: %w", ref.Kind, ref.ID, err)
	}
	defer cursor.Close(ctx)

	var results []*model.Confirmation
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode confirmations: %w", err)
	}
	return results, nil
}

func (r *mongoConfirmationRepository) FindByUser(ctx context.Context, role model.ConfirmationRole, userID string, status model.ConfirmationStatus, limit int, offset int64) ([]*model.Confirmation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "updated_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, userFilter(role, userID, status), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmations for %s: %w", role, err)
	}
	defer cursor.Close(ctx)

	var results []*model.Confirmation
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode confirmations: %w", err)
	}
	return results, nil
}

func (r *mongoConfirmationRepository) CountByUser(ctx context.Context, role model.ConfirmationRole, userID string, status model.ConfirmationStatus) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, userFilter(role, userID, status))
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmations: %w", err)
	}
	return count, nil
}

func (r *mongoConfirmationRepository) UpdateStatus(ctx context.Context, id string, from, to model.ConfirmationStatus, confirmedAt *time.Time, now time.Time) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: %s", confirmationserrors.ErrInvalidID, id)
	}

	update := bson.M{"$set": bson.M{"status": to, "updated_at": now}}
	if confirmedAt != nil {
		update["$set"].(bson.M)["confirmed_at"] = *confirmedAt
	} else {
		update["$unset"] = bson.M{"confirmed_at": ""}
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID, "status": from}, update)
	if err != nil {
		return false, fmt.Errorf("failed to update confirmation status: %w", err)
	}
	return result.MatchedCount == 1, nil
}

func (r *mongoConfirmationRepository) Resubmit(ctx context.Context, id string, seats int, message string, now time.Time) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: %s", confirmationserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID, "status": model.StatusRejected}
	update := bson.M{
		"$set": bson.M{
			"status":          model.StatusPending,
			"seats_requested": seats,
			"message":         message,
			"updated_at":      now,
		},
		"$unset": bson.M{"confirmed_at": ""},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to resubmit confirmation: %w", err)
	}
	return result.MatchedCount == 1, nil
}

// RejectPendingByListing updates row by row so a row accepted between the
// read and the write is left alone and not reported.
func (r *mongoConfirmationRepository) RejectPendingByListing(ctx context.Context, ref model.ListingRef, now time.Time) ([]*model.Confirmation, error) {
	pending, err := r.FindByListing(ctx, ref, model.StatusPending)
	if err != nil {
		return nil, err
	}

	var rejected []*model.Confirmation
	for _, c := range pending {
		matched, err := r.UpdateStatus(ctx, c.ID, model.StatusPending, model.StatusRejected, &now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to reject pending confirmations for %s %s: %w", ref.Kind, ref.ID, err)
		}
		if matched {
			rejected = append(rejected, c)
		}
	}
	return rejected, nil
}

func (r *mongoConfirmationRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
