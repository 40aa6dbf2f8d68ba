package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pairchat/internal/domain/entity"
	"pairchat/internal/domain/repository"
	"pairchat/pkg/errors"
	"pairchat/pkg/logger"
)

const messagesCollection = "messages"

func errDeleted() error {
	return errors.Conflict("Message has been deleted")
}

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) doc(id string) *firestore.DocumentRef {
	return r.client.Collection(messagesCollection).Doc(id)
}

func (r *firestoreMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	message.Normalize()

	_, err := r.doc(message.ID).Create(ctx, message)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Message already exists")
		}
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	doc, err := r.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	return decodeMessage(doc)
}

func (r *firestoreMessageRepository) ListConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	// Sorted client side so the equality filter needs no composite index.
	query := r.client.Collection(messagesCollection).Where("conversationId", "==", conversationID)

	messages, err := r.collect(ctx, query)
	if err != nil {
		logger.Error("Firestore error while listing conversation %s: %v", conversationID, err)
		return nil, err
	}

	entity.SortByTimestamp(messages)
	return messages, nil
}

func (r *firestoreMessageRepository) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	query := r.client.Collection(messagesCollection).
		Where("senderId", "==", senderID).
		Where("receiverId", "==", receiverID).
		Where("isRead", "==", false)

	refs, err := r.refs(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Update(ref, []firestore.Update{{Path: "isRead", Value: true}})
		if err != nil {
			bw.End()
			return 0, errors.Internal("Failed to queue read update", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	return countWritten(jobs, "mark read")
}

func (r *firestoreMessageRepository) ToggleStar(ctx context.Context, id, userID string) (*entity.Message, error) {
	var result *entity.Message
	ref := r.doc(id)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		message, err := decodeMessage(snap)
		if err != nil {
			return err
		}
		if message.IsDeleted {
			return errDeleted()
		}

		var update firestore.Update
		if message.IsStarredBy(userID) {
			update = firestore.Update{Path: "starredBy", Value: firestore.ArrayRemove(userID)}
			message.StarredBy = entity.RemoveFromSet(message.StarredBy, userID)
		} else {
			update = firestore.Update{Path: "starredBy", Value: firestore.ArrayUnion(userID)}
			message.StarredBy = entity.AddToSet(message.StarredBy, userID)
		}
		result = message
		return tx.Update(ref, []firestore.Update{update})
	})
	if err != nil {
		return nil, mapFirestoreError(err, "Failed to toggle star")
	}

	return result, nil
}

func (r *firestoreMessageRepository) MarkDeleted(ctx context.Context, id string) (*entity.Message, error) {
	var result *entity.Message
	ref := r.doc(id)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		message, err := decodeMessage(snap)
		if err != nil {
			return err
		}

		message.Tombstone()
		result = message
		return tx.Update(ref, []firestore.Update{
			{Path: "text", Value: message.Text},
			{Path: "image", Value: ""},
			{Path: "isDeleted", Value: true},
			{Path: "starredBy", Value: []string{}},
		})
	})
	if err != nil {
		return nil, mapFirestoreError(err, "Failed to delete message")
	}

	return result, nil
}

func (r *firestoreMessageRepository) Hide(ctx context.Context, id, userID string) error {
	ref := r.doc(id)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		message, err := decodeMessage(snap)
		if err != nil {
			return err
		}
		if message.IsDeleted {
			return errDeleted()
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "clearedBy", Value: firestore.ArrayUnion(userID)},
			{Path: "starredBy", Value: firestore.ArrayRemove(userID)},
		})
	})
	if err != nil {
		return mapFirestoreError(err, "Failed to hide message")
	}
	return nil
}

func (r *firestoreMessageRepository) ClearForUser(ctx context.Context, userID, peerID string) (int64, error) {
	query := r.client.Collection(messagesCollection).
		Where("conversationId", "==", entity.ConversationKey(userID, peerID))

	refs, err := r.refs(ctx, query)
	if err != nil {
		return 0, err
	}

	var n int64
	for _, ref := range refs {
		changed := false
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			changed = false
			snap, err := tx.Get(ref)
			if err != nil {
				return err
			}
			message, err := decodeMessage(snap)
			if err != nil {
				return err
			}
			if message.IsDeleted || message.IsStarredBy(userID) || message.IsClearedBy(userID) {
				return nil
			}
			changed = true
			return tx.Update(ref, []firestore.Update{
				{Path: "clearedBy", Value: firestore.ArrayUnion(userID)},
			})
		})
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return n, errors.Internal("Failed to clear conversation", err)
		}
		if changed {
			n++
		}
	}

	return n, nil
}

func (r *firestoreMessageRepository) PurgeCleared(ctx context.Context, userID, peerID string) (int64, error) {
	query := r.client.Collection(messagesCollection).
		Where("conversationId", "==", entity.ConversationKey(userID, peerID)).
		Where("clearedBy", "array-contains", userID)

	refs, err := r.refs(ctx, query)
	if err != nil {
		return 0, err
	}

	var n int64
	for _, ref := range refs {
		deleted := false
		// Eligibility is re-read inside the transaction that deletes.
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			deleted = false
			snap, err := tx.Get(ref)
			if err != nil {
				return err
			}
			message, err := decodeMessage(snap)
			if err != nil {
				return err
			}
			if !message.PurgeEligible() {
				return nil
			}
			deleted = true
			return tx.Delete(ref)
		})
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return n, errors.Internal("Failed to purge cleared messages", err)
		}
		if deleted {
			n++
		}
	}

	return n, nil
}

func (r *firestoreMessageRepository) DeleteByParticipant(ctx context.Context, userID string) (int64, error) {
	var refs []*firestore.DocumentRef
	for _, field := range []string{"senderId", "receiverId"} {
		found, err := r.refs(ctx, r.client.Collection(messagesCollection).Where(field, "==", userID))
		if err != nil {
			return 0, err
		}
		refs = append(refs, found...)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return 0, errors.Internal("Failed to queue message delete", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	return countWritten(jobs, "delete account messages")
}

func (r *firestoreMessageRepository) collect(ctx context.Context, query firestore.Query) ([]*entity.Message, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		message, err := decodeMessage(doc)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, nil
}

func (r *firestoreMessageRepository) refs(ctx context.Context, query firestore.Query) ([]*firestore.DocumentRef, error) {
	iter := query.Select().Documents(ctx)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to query messages", err)
		}
		refs = append(refs, doc.Ref)
	}

	return refs, nil
}

func decodeMessage(doc *firestore.DocumentSnapshot) (*entity.Message, error) {
	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	message.ID = doc.Ref.ID
	message.Normalize()
	return &message, nil
}

func countWritten(jobs []*firestore.BulkWriterJob, op string) (int64, error) {
	var n int64
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			logger.Error("Firestore bulk %s failed: %v", op, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n++
	}
	if firstErr != nil {
		return n, errors.Internal("Failed to "+op, firstErr)
	}
	return n, nil
}

func mapFirestoreError(err error, message string) error {
	if status.Code(err) == codes.NotFound {
		return errors.NotFound("Message", err)
	}
	if _, ok := err.(*errors.AppError); ok {
		return err
	}
	return errors.Internal(message, err)
}
