package usecase

import (
	"context"
	"time"

	"pairchat/internal/domain/entity"
)

// Notifier receives committed lifecycle changes for real-time fan-out.
// Implementations must not block and never report delivery failures.
type Notifier interface {
	MessageDelivered(message *entity.Message)
	ReadReceipt(readerID, peerID string)
	MessageRetracted(messageID, recipientID string)
	AccountDeleted(userID string)
}

type RateLimiter interface {
	Allow(userID, action string) (bool, time.Duration)
}

// TokenVerifier resolves a bearer token to the caller's user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type noopNotifier struct{}

func (noopNotifier) MessageDelivered(*entity.Message) {}
func (noopNotifier) ReadReceipt(string, string)       {}
func (noopNotifier) MessageRetracted(string, string)  {}
func (noopNotifier) AccountDeleted(string)            {}
