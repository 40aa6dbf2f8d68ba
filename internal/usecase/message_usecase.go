package usecase

import (
	"context"
	"strings"

	"pairchat/internal/domain/entity"
	"pairchat/internal/domain/repository"
	"pairchat/internal/infrastructure/metrics"
	"pairchat/internal/infrastructure/ratelimit"
	"pairchat/pkg/errors"
	"pairchat/pkg/logger"
)

type MessageUseCase struct {
	messageRepo repository.MessageRepository
	notifier    Notifier
	rateLimiter RateLimiter
}

func NewMessageUseCase(
	messageRepo repository.MessageRepository,
	notifier Notifier,
	rateLimiter RateLimiter,
) *MessageUseCase {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &MessageUseCase{
		messageRepo: messageRepo,
		notifier:    notifier,
		rateLimiter: rateLimiter,
	}
}

type SendMessageInput struct {
	ReceiverID string
	Text       string
	Image      string
}

type ClearResult struct {
	Cleared int64 `json:"cleared"`
	Purged  int64 `json:"purged"`
}

// GetConversation returns the messages of the pair that viewerID may see,
// oldest first.
func (uc *MessageUseCase) GetConversation(ctx context.Context, viewerID, peerID string) ([]*entity.Message, error) {
	if viewerID == "" {
		return nil, errors.Unauthorized("Viewer identity is required", nil)
	}
	if peerID == "" {
		return nil, errors.BadRequest("Contact id is required", nil)
	}

	messages, err := uc.messageRepo.ListConversation(ctx, entity.ConversationKey(viewerID, peerID))
	if err != nil {
		logger.Error("GetConversation failed for %s/%s: %v", viewerID, peerID, err)
		return nil, err
	}

	visible := make([]*entity.Message, 0, len(messages))
	for _, m := range messages {
		if m.VisibleTo(viewerID) {
			visible = append(visible, m)
		}
	}
	entity.SortByTimestamp(visible)

	return visible, nil
}

func (uc *MessageUseCase) Send(ctx context.Context, senderID string, input SendMessageInput) (*entity.Message, error) {
	if senderID == "" {
		return nil, errors.Unauthorized("Sender identity is required", nil)
	}

	if input.ReceiverID == "" {
		return nil, errors.BadRequest("Receiver id is required", nil)
	}
	if input.ReceiverID == senderID {
		return nil, errors.InvalidContent("You cannot send a message to yourself")
	}
	if strings.TrimSpace(input.Text) == "" && strings.TrimSpace(input.Image) == "" {
		return nil, errors.InvalidContent("Message must have text or an image")
	}

	if uc.rateLimiter != nil {
		if allowed, wait := uc.rateLimiter.Allow(senderID, ratelimit.ActionSendMessage); !allowed {
			logger.Warn("Send rate limited: user %s must wait %v", senderID, wait)
			return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message")
		}
	}

	message := &entity.Message{
		SenderID:   senderID,
		ReceiverID: input.ReceiverID,
		Text:       input.Text,
		Image:      strings.TrimSpace(input.Image),
	}

	err := uc.messageRepo.Create(ctx, message)
	metrics.ObserveOp("send", err)
	if err != nil {
		logger.Error("Send failed from %s to %s: %v", senderID, input.ReceiverID, err)
		return nil, err
	}

	uc.notifier.MessageDelivered(message.Clone())
	return message, nil
}

// MarkRead flags every unread message peerID sent to receiverID. A read
// receipt goes to peerID only when something changed.
func (uc *MessageUseCase) MarkRead(ctx context.Context, receiverID, peerID string) (int64, error) {
	if receiverID == "" {
		return 0, errors.Unauthorized("Reader identity is required", nil)
	}
	if peerID == "" {
		return 0, errors.BadRequest("Contact id is required", nil)
	}

	n, err := uc.messageRepo.MarkRead(ctx, receiverID, peerID)
	metrics.ObserveOp("mark_read", err)
	if err != nil {
		logger.Error("MarkRead failed for %s/%s: %v", receiverID, peerID, err)
		return 0, err
	}

	if n > 0 {
		uc.notifier.ReadReceipt(receiverID, peerID)
	}
	return n, nil
}

func (uc *MessageUseCase) ToggleStar(ctx context.Context, userID, messageID string) (*entity.Message, error) {
	if _, err := uc.loadMutable(ctx, userID, messageID); err != nil {
		metrics.ObserveOp("star", err)
		return nil, err
	}

	message, err := uc.messageRepo.ToggleStar(ctx, messageID, userID)
	metrics.ObserveOp("star", err)
	if err != nil {
		logger.Error("ToggleStar failed for message %s by %s: %v", messageID, userID, err)
		return nil, err
	}
	return message, nil
}

// DeleteOwn tombstones a message. Only the sender may do it; repeating it is
// harmless.
func (uc *MessageUseCase) DeleteOwn(ctx context.Context, userID, messageID string) (*entity.Message, error) {
	if userID == "" {
		return nil, errors.Unauthorized("User identity is required", nil)
	}

	existing, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		metrics.ObserveOp("delete", err)
		return nil, err
	}
	if existing.SenderID != userID {
		err := errors.Forbidden("Only the sender can delete this message", nil)
		metrics.ObserveOp("delete", err)
		return nil, err
	}
	if existing.IsDeleted {
		metrics.ObserveOp("delete", nil)
		return existing, nil
	}

	message, err := uc.messageRepo.MarkDeleted(ctx, messageID)
	metrics.ObserveOp("delete", err)
	if err != nil {
		logger.Error("DeleteOwn failed for message %s: %v", messageID, err)
		return nil, err
	}

	uc.notifier.MessageRetracted(message.ID, message.ReceiverID)
	return message, nil
}

// HideForMe clears the message for userID and drops their own star.
func (uc *MessageUseCase) HideForMe(ctx context.Context, userID, messageID string) error {
	if _, err := uc.loadMutable(ctx, userID, messageID); err != nil {
		metrics.ObserveOp("hide", err)
		return err
	}

	err := uc.messageRepo.Hide(ctx, messageID, userID)
	metrics.ObserveOp("hide", err)
	if err != nil {
		logger.Error("HideForMe failed for message %s by %s: %v", messageID, userID, err)
	}
	return err
}

// ClearConversation hides every unstarred message of the pair for userID,
// then purges what both sides have cleared. The purge starts only after the
// clear pass has returned.
func (uc *MessageUseCase) ClearConversation(ctx context.Context, userID, peerID string) (*ClearResult, error) {
	if userID == "" {
		return nil, errors.Unauthorized("User identity is required", nil)
	}
	if peerID == "" {
		return nil, errors.BadRequest("Contact id is required", nil)
	}

	cleared, err := uc.messageRepo.ClearForUser(ctx, userID, peerID)
	if err != nil {
		metrics.ObserveOp("clear", err)
		logger.Error("ClearConversation phase 1 failed for %s/%s: %v", userID, peerID, err)
		return nil, err
	}

	purged, err := uc.messageRepo.PurgeCleared(ctx, userID, peerID)
	metrics.ObserveOp("clear", err)
	if err != nil {
		logger.Error("ClearConversation phase 2 failed for %s/%s: %v", userID, peerID, err)
		return nil, err
	}

	logger.Debug("Conversation %s cleared by %s: %d hidden, %d purged",
		entity.ConversationKey(userID, peerID), userID, cleared, purged)
	return &ClearResult{Cleared: cleared, Purged: purged}, nil
}

// PurgeAccount removes every message the user sent or received and tells
// all connected clients the account is gone.
func (uc *MessageUseCase) PurgeAccount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.Unauthorized("User identity is required", nil)
	}

	n, err := uc.messageRepo.DeleteByParticipant(ctx, userID)
	metrics.ObserveOp("purge_account", err)
	if err != nil {
		logger.Error("PurgeAccount failed for %s: %v", userID, err)
		return 0, err
	}

	logger.Info("Account %s purged, %d messages removed", userID, n)
	uc.notifier.AccountDeleted(userID)
	return n, nil
}

// GetMessage returns a message its participant is allowed to reference.
func (uc *MessageUseCase) GetMessage(ctx context.Context, userID, messageID string) (*entity.Message, error) {
	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !message.IsParticipant(userID) {
		return nil, errors.Forbidden("You are not a participant of this message", nil)
	}
	return message, nil
}

func (uc *MessageUseCase) loadMutable(ctx context.Context, userID, messageID string) (*entity.Message, error) {
	if userID == "" {
		return nil, errors.Unauthorized("User identity is required", nil)
	}

	message, err := uc.GetMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if message.IsDeleted {
		return nil, errors.Conflict("Message has been deleted")
	}
	return message, nil
}
