package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pairchat/internal/domain/entity"
	"pairchat/internal/domain/repository"
	"pairchat/pkg/errors"
)

type memoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string]*entity.Message
}

// NewMemoryMessageRepository keeps messages in process memory. Callers always
// receive copies, so mutations only happen under the repository lock.
func NewMemoryMessageRepository() repository.MessageRepository {
	return &memoryMessageRepository{
		messages: make(map[string]*entity.Message),
	}
}

func (r *memoryMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	message.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.messages[message.ID]; exists {
		return errors.Conflict("Message already exists")
	}
	r.messages[message.ID] = message.Clone()
	return nil
}

func (r *memoryMessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.messages[id]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return message.Clone(), nil
}

func (r *memoryMessageRepository) ListConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var messages []*entity.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			messages = append(messages, m.Clone())
		}
	}
	entity.SortByTimestamp(messages)
	return messages, nil
}

func (r *memoryMessageRepository) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, m := range r.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *memoryMessageRepository) ToggleStar(ctx context.Context, id, userID string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	if m.IsDeleted {
		return nil, errDeleted()
	}
	if m.IsStarredBy(userID) {
		m.StarredBy = entity.RemoveFromSet(m.StarredBy, userID)
	} else {
		m.StarredBy = entity.AddToSet(m.StarredBy, userID)
	}
	return m.Clone(), nil
}

func (r *memoryMessageRepository) MarkDeleted(ctx context.Context, id string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	m.Tombstone()
	return m.Clone(), nil
}

func (r *memoryMessageRepository) Hide(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return errors.NotFound("Message", nil)
	}
	if m.IsDeleted {
		return errDeleted()
	}
	m.ClearedBy = entity.AddToSet(m.ClearedBy, userID)
	m.StarredBy = entity.RemoveFromSet(m.StarredBy, userID)
	return nil
}

func (r *memoryMessageRepository) ClearForUser(ctx context.Context, userID, peerID string) (int64, error) {
	key := entity.ConversationKey(userID, peerID)

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, m := range r.messages {
		if m.ConversationID != key || m.IsDeleted {
			continue
		}
		if m.IsStarredBy(userID) || m.IsClearedBy(userID) {
			continue
		}
		m.ClearedBy = append(m.ClearedBy, userID)
		n++
	}
	return n, nil
}

func (r *memoryMessageRepository) PurgeCleared(ctx context.Context, userID, peerID string) (int64, error) {
	key := entity.ConversationKey(userID, peerID)

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, m := range r.messages {
		if m.ConversationID == key && m.PurgeEligible() {
			delete(r.messages, id)
			n++
		}
	}
	return n, nil
}

func (r *memoryMessageRepository) DeleteByParticipant(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, m := range r.messages {
		if m.SenderID == userID || m.ReceiverID == userID {
			delete(r.messages, id)
			n++
		}
	}
	return n, nil
}
