package repository

import (
	"context"

	"pairchat/internal/domain/entity"
)

// MessageRepository persists messages. Every method that mutates a single
// message is atomic with respect to concurrent mutations of the same record.
type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	GetByID(ctx context.Context, id string) (*entity.Message, error)
	ListConversation(ctx context.Context, conversationID string) ([]*entity.Message, error)

	// MarkRead flags every unread message from sender to receiver and
	// returns how many changed.
	MarkRead(ctx context.Context, receiverID, senderID string) (int64, error)

	// ToggleStar and Hide return a CONFLICT error when the message is
	// already deleted; the check happens in the same atomic step as the write.
	ToggleStar(ctx context.Context, id, userID string) (*entity.Message, error)
	MarkDeleted(ctx context.Context, id string) (*entity.Message, error)
	Hide(ctx context.Context, id, userID string) error

	// ClearForUser adds userID to cleared_by on every non-deleted message of
	// the pair that is not yet cleared by them.
	ClearForUser(ctx context.Context, userID, peerID string) (int64, error)

	// PurgeCleared removes messages of the pair that both participants
	// cleared and nobody starred, re-checking eligibility at delete time.
	PurgeCleared(ctx context.Context, userID, peerID string) (int64, error)

	DeleteByParticipant(ctx context.Context, userID string) (int64, error)
}
