package repository

import (
	"context"
	"fmt"
	"time"

	"rideshare/pkg/config"
	mongotx "rideshare/pkg/db/mongo"
	"rideshare/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Messages"

type MessageRepository interface {
	Create(ctx context.Context, msg *model.ChatMessage) error

	// FindConversation returns the messages exchanged between a and b,
	// newest first.
	FindConversation(ctx context.Context, a, b string, limit int, offset int64) ([]*model.ChatMessage, error)
	MarkConversationRead(ctx context.Context, receiverID, senderID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, receiverID string) (int64, error)
}

type mongoMessageRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoMessageRepository(cfg *config.Config) MessageRepository {
	return &mongoMessageRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

func (r *mongoMessageRepository) Create(ctx context.Context, msg *model.ChatMessage) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.CreatedAt = msg.CreatedAt.Truncate(time.Millisecond)

	result, err := r.collection.InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid.Hex()
	}
	return nil
}

func (r *mongoMessageRepository) FindConversation(ctx context.Context, a, b string, limit int, offset int64) ([]*model.ChatMessage, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*model.ChatMessage
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return results, nil
}

func (r *mongoMessageRepository) MarkConversationRead(ctx context.Context, receiverID, senderID string, at time.Time) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateMany(ctx,
		bson.M{"receiver_id": receiverID, "sender_id": senderID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoMessageRepository) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"receiver_id": receiverID, "is_read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
