package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pairchat/internal/domain/entity"
	"pairchat/internal/domain/repository"
	"pairchat/pkg/errors"
)

type mongoMessageRepository struct {
	collection *mongo.Collection
}

func NewMongoMessageRepository(db *mongo.Database) repository.MessageRepository {
	return &mongoMessageRepository{
		collection: db.Collection(messagesCollection),
	}
}

// EnsureMessageIndexes creates the indexes the conversation and participant
// queries rely on. It is safe to call on every start.
func EnsureMessageIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(messagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "isRead", Value: 1}}},
		{Keys: bson.D{{Key: "receiverId", Value: 1}}},
	})
	if err != nil {
		return errors.Internal("Failed to create message indexes", err)
	}
	return nil
}

func (r *mongoMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	message.Normalize()

	if _, err := r.collection.InsertOne(ctx, message); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.Conflict("Message already exists")
		}
		return errors.Internal("Failed to create message", err)
	}
	return nil
}

func (r *mongoMessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	var message entity.Message
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&message)
	if err != nil {
		return nil, mapMongoError(err, "Failed to get message")
	}
	message.Normalize()
	return &message, nil
}

func (r *mongoMessageRepository) ListConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"conversationId": conversationID}, opts)
	if err != nil {
		return nil, errors.Internal("Failed to list conversation", err)
	}
	defer cursor.Close(ctx)

	var messages []*entity.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, errors.Internal("Failed to decode messages", err)
	}
	for _, m := range messages {
		m.Normalize()
	}
	return messages, nil
}

func (r *mongoMessageRepository) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"senderId": senderID, "receiverId": receiverID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return 0, errors.Internal("Failed to mark messages as read", err)
	}
	return res.ModifiedCount, nil
}

// ToggleStar flips membership in a single pipeline update so concurrent
// toggles by the two participants never overwrite each other.
func (r *mongoMessageRepository) ToggleStar(ctx context.Context, id, userID string) (*entity.Message, error) {
	starred := bson.M{"$ifNull": bson.A{"$starredBy", bson.A{}}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"starredBy": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{userID, starred}},
				bson.M{"$filter": bson.M{
					"input": starred,
					"cond":  bson.M{"$ne": bson.A{"$$this", userID}},
				}},
				bson.M{"$concatArrays": bson.A{starred, bson.A{userID}}},
			}},
		}}},
	}

	message, err := r.findOneAndUpdate(ctx, live(id), update, "Failed to toggle star")
	if errors.Is(err, errors.CodeNotFound) {
		return nil, r.missingOrDeleted(ctx, id)
	}
	return message, err
}

func (r *mongoMessageRepository) MarkDeleted(ctx context.Context, id string) (*entity.Message, error) {
	update := bson.M{"$set": bson.M{
		"text":      entity.TombstoneText,
		"image":     "",
		"isDeleted": true,
		"starredBy": bson.A{},
	}}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update, "Failed to delete message")
}

func (r *mongoMessageRepository) Hide(ctx context.Context, id, userID string) error {
	res, err := r.collection.UpdateOne(ctx,
		live(id),
		bson.M{
			"$addToSet": bson.M{"clearedBy": userID},
			"$pull":     bson.M{"starredBy": userID},
		},
	)
	if err != nil {
		return errors.Internal("Failed to hide message", err)
	}
	if res.MatchedCount == 0 {
		return r.missingOrDeleted(ctx, id)
	}
	return nil
}

func (r *mongoMessageRepository) ClearForUser(ctx context.Context, userID, peerID string) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{
			"conversationId": entity.ConversationKey(userID, peerID),
			"isDeleted":      false,
			"starredBy":      bson.M{"$ne": userID},
			"clearedBy":      bson.M{"$ne": userID},
		},
		bson.M{"$addToSet": bson.M{"clearedBy": userID}},
	)
	if err != nil {
		return 0, errors.Internal("Failed to clear conversation", err)
	}
	return res.ModifiedCount, nil
}

// PurgeCleared evaluates the eligibility filter per document at delete time,
// so a star added after the clear pass keeps the message.
func (r *mongoMessageRepository) PurgeCleared(ctx context.Context, userID, peerID string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{
		"conversationId": entity.ConversationKey(userID, peerID),
		"clearedBy":      bson.M{"$all": bson.A{userID, peerID}},
		"starredBy":      bson.M{"$size": 0},
	})
	if err != nil {
		return 0, errors.Internal("Failed to purge cleared messages", err)
	}
	return res.DeletedCount, nil
}

func (r *mongoMessageRepository) DeleteByParticipant(ctx context.Context, userID string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{
		"$or": bson.A{
			bson.M{"senderId": userID},
			bson.M{"receiverId": userID},
		},
	})
	if err != nil {
		return 0, errors.Internal("Failed to delete account messages", err)
	}
	return res.DeletedCount, nil
}

// live matches the message only while it is not deleted.
func live(id string) bson.M {
	return bson.M{"_id": id, "isDeleted": false}
}

// missingOrDeleted explains why a live(id) filter matched nothing.
func (r *mongoMessageRepository) missingOrDeleted(ctx context.Context, id string) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return errors.Internal("Failed to look up message", err)
	}
	if n == 0 {
		return errors.NotFound("Message", nil)
	}
	return errDeleted()
}

func (r *mongoMessageRepository) findOneAndUpdate(ctx context.Context, filter bson.M, update interface{}, failure string) (*entity.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var message entity.Message
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&message)
	if err != nil {
		return nil, mapMongoError(err, failure)
	}
	message.Normalize()
	return &message, nil
}

func mapMongoError(err error, message string) error {
	if err == mongo.ErrNoDocuments {
		return errors.NotFound("Message", err)
	}
	return errors.Internal(message, err)
}
