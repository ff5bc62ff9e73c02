package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	listingserrors "rideshare/internal/listings/errors"
	"rideshare/pkg/config"
	mongotx "rideshare/pkg/db/mongo"
	"rideshare/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	RidesCollection = "Rides"
	TripsCollection = "Trips"
)

// CollectionFor maps a listing kind to its collection name.
func CollectionFor(kind model.ListingKind) (string, error) {
	switch kind {
	case model.KindRide:
		return RidesCollection, nil
	case model.KindTrip:
		return TripsCollection, nil
	}
	return "", fmt.Errorf("%w: %q", listingserrors.ErrUnknownKind, kind)
}

type ListingRepository interface {
	Create(ctx context.Context, l *model.Listing) error
	FindByID(ctx context.Context, kind model.ListingKind, id string) (*model.Listing, error)
	Search(ctx context.Context, filter model.ListingFilter, limit int, offset int64) ([]*model.Listing, error)
	Count(ctx context.Context, filter model.ListingFilter) (int64, error)
	FindByOwner(ctx context.Context, kind model.ListingKind, ownerID string, limit int, offset int64) ([]*model.Listing, error)
	CountByOwner(ctx context.Context, kind model.ListingKind, ownerID string) (int64, error)

	// MarkClosed closes an open listing and reports whether it was open.
	MarkClosed(ctx context.Context, kind model.ListingKind, id, reason string, at time.Time) (bool, error)
	// ClearClosed reopens a closed listing and reports whether it was closed.
	ClearClosed(ctx context.Context, kind model.ListingKind, id string, at time.Time) (bool, error)

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoListingRepository struct {
	cfg       *config.Config
	rides     *mongo.Collection
	trips     *mongo.Collection
	txManager mongotx.TransactionManager
}

func NewMongoListingRepository(cfg *config.Config) ListingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoListingRepository{
		cfg:       cfg,
		rides:     db.Collection(RidesCollection),
		trips:     db.Collection(TripsCollection),
		txManager: mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoListingRepository) collection(kind model.ListingKind) (*mongo.Collection, error) {
	switch kind {
	case model.KindRide:
		return r.rides, nil
	case model.KindTrip:
		return r.trips, nil
	}
	return nil, fmt.Errorf("%w: %q", listingserrors.ErrUnknownKind, kind)
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", listingserrors.ErrInvalidID, id)
	}
	return oid, nil
}

func (r *mongoListingRepository) Create(ctx context.Context, l *model.Listing) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	coll, err := r.collection(l.Kind)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	l.CreatedAt, l.UpdatedAt = now, now

	result, err := coll.InsertOne(ctx, l)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", l.Kind, err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		l.ID = oid.Hex()
	}
	return nil
}

func (r *mongoListingRepository) FindByID(ctx context.Context, kind model.ListingKind, id string) (*model.Listing, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	coll, err := r.collection(kind)
	if err != nil {
		return nil, err
	}
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var l model.Listing
	if err := coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s %s", listingserrors.ErrNotFound, kind, id)
		}
		return nil, fmt.Errorf("failed to find %s: %w", kind, err)
	}
	l.Kind = kind
	return &l, nil
}

func containsInsensitive(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func searchFilter(f model.ListingFilter) bson.M {
	filter := bson.M{}
	if f.Origin != "" {
		filter["origin"] = containsInsensitive(f.Origin)
	}
	if f.Destination != "" {
		filter["destination"] = containsInsensitive(f.Destination)
	}
	if f.Airport != "" && f.Kind == model.KindTrip {
		filter["trip.airport"] = f.Airport
	}
	if f.From != nil || f.To != nil {
		window := bson.M{}
		if f.From != nil {
			window["$gte"] = *f.From
		}
		if f.To != nil {
			window["$lte"] = *f.To
		}
		filter["scheduled_at"] = window
	}
	if !f.IncludeClosed {
		filter["is_closed"] = false
	}
	return filter
}

func (r *mongoListingRepository) Search(ctx context.Context, f model.ListingFilter, limit int, offset int64) ([]*model.Listing, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	coll, err := r.collection(f.Kind)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "scheduled_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := coll.Find(ctx, searchFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", f.Kind.Plural(), err)
	}
	defer cursor.Close(ctx)

	return decodeListings(ctx, cursor, f.Kind)
}

func (r *mongoListingRepository) Count(ctx context.Context, f model.ListingFilter) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	coll, err := r.collection(f.Kind)
	if err != nil {
		return 0, err
	}
	count, err := coll.CountDocuments(ctx, searchFilter(f))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", f.Kind.Plural(), err)
	}
	return count, nil
}

func (r *mongoListingRepository) FindByOwner(ctx context.Context, kind model.ListingKind, ownerID string, limit int, offset int64) ([]*model.Listing, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	coll, err := r.collection(kind)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "scheduled_at", Value: -1}})

	cursor, err := coll.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s for owner: %w", kind.Plural(), err)
	}
	defer cursor.Close(ctx)

	return decodeListings(ctx, cursor, kind)
}

func (r *mongoListingRepository) CountByOwner(ctx context.Context, kind model.ListingKind, ownerID string) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	coll, err := r.collection(kind)
	if err != nil {
		return 0, err
	}
	count, err := coll.CountDocuments(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s for owner: %w", kind.Plural(), err)
	}
	return count, nil
}

func (r *mongoListingRepository) MarkClosed(ctx context.Context, kind model.ListingKind, id, reason string, at time.Time) (bool, error) {
	set := bson.M{"is_closed": true, "closed_at": at, "updated_at": at}
	if reason != "" {
		set["closed_reason"] = reason
	}
	return r.setClosed(ctx, kind, id, false, bson.M{"$set": set})
}

func (r *mongoListingRepository) ClearClosed(ctx context.Context, kind model.ListingKind, id string, at time.Time) (bool, error) {
	return r.setClosed(ctx, kind, id, true, bson.M{
		"$set":   bson.M{"is_closed": false, "updated_at": at},
		"$unset": bson.M{"closed_at": "", "closed_reason": ""},
	})
}

func (r *mongoListingRepository) setClosed(ctx context.Context, kind model.ListingKind, id string, currently bool, update bson.M) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	coll, err := r.collection(kind)
	if err != nil {
		return false, err
	}
	oid, err := objectID(id)
	if err != nil {
		return false, err
	}

	result, err := coll.UpdateOne(ctx, bson.M{"_id": oid, "is_closed": currently}, update)
	if err != nil {
		return false, fmt.Errorf("failed to update closure of %s %s: %w", kind, id, err)
	}
	return result.MatchedCount == 1, nil
}

func (r *mongoListingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func decodeListings(ctx context.Context, cursor *mongo.Cursor, kind model.ListingKind) ([]*model.Listing, error) {
	var results []*model.Listing
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind.Plural(), err)
	}
	for _, l := range results {
		l.Kind = kind
	}
	return results, nil
}
