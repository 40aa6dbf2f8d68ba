package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"pairchat/internal/domain/entity"
)

// Client to server event types.
const (
	TypeJoin          = "join"
	TypeSendMessage   = "sendMessage"
	TypeTyping        = "typing"
	TypeMarkAsRead    = "mark-as-read"
	TypeDeleteMessage = "deleteMessage"
	TypePing          = "ping"
)

// Server to client event types.
const (
	TypeOnlineUsers       = "onlineUsers"
	TypeReceiveMessage    = "receiveMessage"
	TypeMessagesRead      = "messages-read"
	TypeMessageDeleted    = "messageDeleted"
	TypeNewFriendRequest  = "newFriendRequest"
	TypeRequestAccepted   = "requestAccepted"
	TypeFriendListUpdated = "friendListUpdated"
	TypeAccountDeleted    = "accountDeleted"
	TypeEvicted           = "evicted"
	TypePong              = "pong"
	TypeError             = "error"
)

// WSMessage is the frame envelope in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// ClientEvent is the closed set of events a connection may send.
type ClientEvent interface {
	clientEvent()
}

type JoinEvent struct {
	UserID string `json:"userId"`
}

// SendMessageEvent announces a message already persisted over HTTP.
type SendMessageEvent struct {
	Message entity.Message
}

type TypingEvent struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type MarkAsReadEvent struct {
	CurrentUserID string `json:"currentUserId"`
	ContactID     string `json:"contactId"`
}

type DeleteMessageEvent struct {
	MessageID  string `json:"messageId"`
	ReceiverID string `json:"receiverId"`
}

type PingEvent struct{}

func (JoinEvent) clientEvent()          {}
func (SendMessageEvent) clientEvent()   {}
func (TypingEvent) clientEvent()        {}
func (MarkAsReadEvent) clientEvent()    {}
func (DeleteMessageEvent) clientEvent() {}
func (PingEvent) clientEvent()          {}

// ServerEvent is the closed set of events the server pushes.
type ServerEvent interface {
	EventType() string
	payload() interface{}
}

type OnlineUsersEvent struct {
	Users []string
}

type ReceiveMessageEvent struct {
	Message *entity.Message
}

type TypingPulseEvent struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type MessagesReadEvent struct {
	ReaderID string `json:"readerId"`
}

type MessageDeletedEvent struct {
	MessageID string `json:"messageId"`
}

// FriendSummary is what the friend workflow shares about the other user.
type FriendSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// FriendshipEvent carries one of the friend workflow signals.
type FriendshipEvent struct {
	Kind   string
	Friend FriendSummary
}

type AccountDeletedEvent struct {
	DeletedUserID string `json:"deletedUserId"`
}

type EvictedEvent struct {
	Reason string `json:"reason"`
}

type PongEvent struct{}

type ErrorEvent struct {
	Message string `json:"error"`
}

func (OnlineUsersEvent) EventType() string    { return TypeOnlineUsers }
func (ReceiveMessageEvent) EventType() string { return TypeReceiveMessage }
func (TypingPulseEvent) EventType() string    { return TypeTyping }
func (MessagesReadEvent) EventType() string   { return TypeMessagesRead }
func (MessageDeletedEvent) EventType() string { return TypeMessageDeleted }
func (e FriendshipEvent) EventType() string   { return e.Kind }
func (AccountDeletedEvent) EventType() string { return TypeAccountDeleted }
func (EvictedEvent) EventType() string        { return TypeEvicted }
func (PongEvent) EventType() string           { return TypePong }
func (ErrorEvent) EventType() string          { return TypeError }

func (e OnlineUsersEvent) payload() interface{} {
	if e.Users == nil {
		return []string{}
	}
	return e.Users
}
func (e ReceiveMessageEvent) payload() interface{} { return e.Message }
func (e TypingPulseEvent) payload() interface{}    { return e }
func (e MessagesReadEvent) payload() interface{}   { return e }
func (e MessageDeletedEvent) payload() interface{} { return e }
func (e FriendshipEvent) payload() interface{}     { return e.Friend }
func (e AccountDeletedEvent) payload() interface{} { return e }
func (e EvictedEvent) payload() interface{}        { return e }
func (PongEvent) payload() interface{}             { return map[string]string{"status": "alive"} }
func (e ErrorEvent) payload() interface{}          { return e }

// IsFriendshipKind reports whether kind names a friend workflow signal.
func IsFriendshipKind(kind string) bool {
	switch kind {
	case TypeNewFriendRequest, TypeRequestAccepted, TypeFriendListUpdated:
		return true
	}
	return false
}

// Encode frames a server event.
func Encode(ev ServerEvent) ([]byte, error) {
	data, err := json.Marshal(ev.payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{
		Type:      ev.EventType(),
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// EncodeClient frames a client event.
func EncodeClient(ev ClientEvent) ([]byte, error) {
	var (
		eventType string
		body      interface{}
	)
	switch e := ev.(type) {
	case JoinEvent:
		eventType, body = TypeJoin, e
	case SendMessageEvent:
		eventType, body = TypeSendMessage, e.Message
	case TypingEvent:
		eventType, body = TypeTyping, e
	case MarkAsReadEvent:
		eventType, body = TypeMarkAsRead, e
	case DeleteMessageEvent:
		eventType, body = TypeDeleteMessage, e
	case PingEvent:
		eventType, body = TypePing, struct{}{}
	default:
		return nil, fmt.Errorf("unknown client event %T", ev)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// DecodeClient parses a frame sent by a connection.
func DecodeClient(raw []byte) (ClientEvent, error) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	var (
		ev  ClientEvent
		err error
	)
	switch msg.Type {
	case TypeJoin:
		var e JoinEvent
		err = decodeData(msg, &e)
		ev = e
	case TypeSendMessage:
		var e SendMessageEvent
		err = decodeData(msg, &e.Message)
		ev = e
	case TypeTyping:
		var e TypingEvent
		err = decodeData(msg, &e)
		ev = e
	case TypeMarkAsRead:
		var e MarkAsReadEvent
		err = decodeData(msg, &e)
		ev = e
	case TypeDeleteMessage:
		var e DeleteMessageEvent
		err = decodeData(msg, &e)
		ev = e
	case TypePing:
		ev = PingEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeServer parses a frame pushed by the server.
func DecodeServer(raw []byte) (ServerEvent, error) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	var (
		ev  ServerEvent
		err error
	)
	switch msg.Type {
	case TypeOnlineUsers:
		var e OnlineUsersEvent
		err = decodeData(msg, &e.Users)
		ev = e
	case TypeReceiveMessage:
		e := ReceiveMessageEvent{Message: &entity.Message{}}
		err = decodeData(msg, e.Message)
		ev = e
	case TypeTyping:
		var e TypingPulseEvent
		err = decodeData(msg, &e)
		ev = e
	case TypeMessagesRead:
		var e MessagesReadEvent
		err = decodeData(msg, &e)
		ev = e
	case TypeMessageDeleted:
		var e MessageDeletedEvent
		err = decodeData(msg, &e)
		ev = e
	case TypeNewFriendRequest, TypeRequestAccepted, TypeFriendListUpdated:
		e := FriendshipEvent{Kind: msg.Type}
		err = decodeData(msg, &e.Friend)
		ev = e
	case TypeAccountDeleted:
		var e AccountDeletedEvent
		err = decodeData(msg, &e)
		ev = e
	case TypeEvicted:
		var e EvictedEvent
		err = decodeData(msg, &e)
		ev = e
	case TypePong:
		ev = PongEvent{}
	case TypeError:
		var e ErrorEvent
		err = decodeData(msg, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeData(msg WSMessage, v interface{}) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("event %q has no data", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("invalid %q payload: %w", msg.Type, err)
	}
	return nil
}
