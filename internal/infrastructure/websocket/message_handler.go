package websocket

import (
	"context"
	"time"

	"pairchat/internal/infrastructure/metrics"
	"pairchat/internal/infrastructure/ratelimit"
	"pairchat/pkg/logger"
)

const handlerTimeout = 5 * time.Second

// HandleClientMessage decodes one frame from c and dispatches it.
func (m *Manager) HandleClientMessage(c *Client, raw []byte) {
	ev, err := DecodeClient(raw)
	if err != nil {
		logger.Debug("WebSocket: bad frame from %s: %v", c.ID, err)
		m.sendErrorToClient(c, "Invalid message format")
		return
	}

	switch e := ev.(type) {
	case JoinEvent:
		m.handleJoin(c, e)
	case SendMessageEvent:
		m.handleSendMessage(c, e)
	case TypingEvent:
		m.handleTyping(c, e)
	case MarkAsReadEvent:
		m.handleMarkAsRead(c, e)
	case DeleteMessageEvent:
		m.handleDeleteMessage(c, e)
	case PingEvent:
		m.sendToClient(c, PongEvent{})
	default:
		logger.Error("WebSocket: unhandled client event %T", ev)
	}
}

func (m *Manager) handleJoin(c *Client, e JoinEvent) {
	if e.UserID != c.UserID {
		m.sendErrorToClient(c, "Cannot join as another user")
		return
	}
	m.Join(c)
}

// handleSendMessage relays a message the sender already stored over HTTP.
// The stored record, not the frame, is what gets relayed.
func (m *Manager) handleSendMessage(c *Client, e SendMessageEvent) {
	if m.lifecycle == nil || e.Message.ID == "" {
		m.sendErrorToClient(c, "Missing message id")
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, handlerTimeout)
	defer cancel()

	message, err := m.lifecycle.GetMessage(ctx, c.UserID, e.Message.ID)
	if err != nil || message.SenderID != c.UserID {
		m.sendErrorToClient(c, "Unknown message")
		return
	}
	m.SendToUser(message.ReceiverID, ReceiveMessageEvent{Message: message})
}

func (m *Manager) handleTyping(c *Client, e TypingEvent) {
	if e.ReceiverID == "" || (e.SenderID != "" && e.SenderID != c.UserID) {
		return
	}
	if m.limiter != nil {
		if ok, _ := m.limiter.Allow(c.UserID, ratelimit.ActionTyping); !ok {
			metrics.Drops.WithLabelValues(TypeTyping, metrics.DropRateLimited).Inc()
			return
		}
	}
	m.SendToUser(e.ReceiverID, TypingPulseEvent{SenderID: c.UserID, ReceiverID: e.ReceiverID})
}

func (m *Manager) handleMarkAsRead(c *Client, e MarkAsReadEvent) {
	if e.CurrentUserID != "" && e.CurrentUserID != c.UserID {
		m.sendErrorToClient(c, "Cannot mark messages read for another user")
		return
	}
	if m.lifecycle == nil || e.ContactID == "" {
		m.sendErrorToClient(c, "Missing contact id")
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, handlerTimeout)
	defer cancel()

	if _, err := m.lifecycle.MarkRead(ctx, c.UserID, e.ContactID); err != nil {
		logger.Error("WebSocket: mark-as-read failed for %s/%s: %v", c.UserID, e.ContactID, err)
		m.sendErrorToClient(c, "Failed to mark messages as read")
	}
}

// handleDeleteMessage relays a retraction only for a message the caller sent
// and has already deleted.
func (m *Manager) handleDeleteMessage(c *Client, e DeleteMessageEvent) {
	if m.lifecycle == nil || e.MessageID == "" {
		m.sendErrorToClient(c, "Missing message id")
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, handlerTimeout)
	defer cancel()

	message, err := m.lifecycle.GetMessage(ctx, c.UserID, e.MessageID)
	if err != nil || message.SenderID != c.UserID || !message.IsDeleted {
		m.sendErrorToClient(c, "Unknown message")
		return
	}
	m.SendToUser(message.ReceiverID, MessageDeletedEvent{MessageID: message.ID})
}
