package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pairchat/internal/domain/entity"
	"pairchat/internal/infrastructure/metrics"
	"pairchat/pkg/logger"
)

// Policy decides what happens to a user's earlier connections on join.
type Policy string

const (
	// PolicyReplace evicts the earlier connection with an evicted event.
	PolicyReplace Policy = "replace"
	// PolicyMulti keeps every connection in the user's room.
	PolicyMulti Policy = "multi"
)

const sendBufferSize = 256

// Client is one websocket connection.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
	}
}

// Lifecycle is the part of the message engine the socket handlers call.
type Lifecycle interface {
	MarkRead(ctx context.Context, receiverID, peerID string) (int64, error)
	GetMessage(ctx context.Context, userID, messageID string) (*entity.Message, error)
}

type Limiter interface {
	Allow(userID, action string) (bool, time.Duration)
}

type request struct {
	kind   requestKind
	client *Client
	done   chan struct{}
}

type requestKind int

const (
	requestConnect requestKind = iota
	requestJoin
	requestDisconnect
)

// Manager tracks presence and routes events to per-user rooms. Only the
// loop started by Start mutates the maps; everything else reads them under
// the read lock.
type Manager struct {
	policy    Policy
	limiter   Limiter
	lifecycle Lifecycle

	clients map[string]*Client            // connection id -> client
	rooms   map[string]map[string]*Client // user id -> connection id -> client
	owners  map[string]string             // connection id -> joined user id
	mutex   sync.RWMutex

	requests chan request
	stopped  chan struct{}
	ctx      context.Context
}

func NewManager(policy Policy, limiter Limiter) *Manager {
	if policy != PolicyMulti {
		policy = PolicyReplace
	}
	return &Manager{
		policy:   policy,
		limiter:  limiter,
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
		owners:   make(map[string]string),
		requests: make(chan request),
		stopped:  make(chan struct{}),
		ctx:      context.Background(),
	}
}

// AttachLifecycle wires the message engine used by mark-as-read and relay
// events. Call it before serving connections.
func (m *Manager) AttachLifecycle(l Lifecycle) {
	m.lifecycle = l
}

// Start runs the manager's loop until ctx is done, then closes every
// connection's send channel.
func (m *Manager) Start(ctx context.Context) {
	m.ctx = ctx
	go func() {
		defer close(m.stopped)
		for {
			select {
			case req := <-m.requests:
				m.apply(req)
				close(req.done)

			case <-ctx.Done():
				m.shutdown()
				return
			}
		}
	}()
}

// Connect registers a connection that has not joined yet.
func (m *Manager) Connect(c *Client) {
	m.submit(requestConnect, c)
}

// Join makes the connection's user online and broadcasts the online set.
func (m *Manager) Join(c *Client) {
	m.submit(requestJoin, c)
}

// Disconnect removes the connection. If it was the user's last one the user
// goes offline and the online set is broadcast.
func (m *Manager) Disconnect(c *Client) {
	m.submit(requestDisconnect, c)
}

func (m *Manager) submit(kind requestKind, c *Client) {
	req := request{kind: kind, client: c, done: make(chan struct{})}
	select {
	case m.requests <- req:
	case <-m.stopped:
		return
	}
	select {
	case <-req.done:
	case <-m.stopped:
	}
}

func (m *Manager) apply(req request) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c := req.client
	switch req.kind {
	case requestConnect:
		m.clients[c.ID] = c
		metrics.Connections.Inc()
		logger.Debug("WebSocket: connection %s registered for %s", c.ID, c.UserID)

	case requestJoin:
		if _, ok := m.clients[c.ID]; !ok {
			return
		}
		if m.policy == PolicyReplace {
			for id, other := range m.rooms[c.UserID] {
				if id != c.ID {
					m.evictLocked(other)
				}
			}
		}
		room, ok := m.rooms[c.UserID]
		if !ok {
			room = make(map[string]*Client)
			m.rooms[c.UserID] = room
		}
		room[c.ID] = c
		m.owners[c.ID] = c.UserID
		logger.Info("WebSocket: %s joined on connection %s", c.UserID, c.ID)
		m.broadcastOnlineLocked()

	case requestDisconnect:
		if _, ok := m.clients[c.ID]; !ok {
			return
		}
		_, joined := m.owners[c.ID]
		m.removeLocked(c)
		logger.Debug("WebSocket: connection %s of %s closed", c.ID, c.UserID)
		if joined {
			m.broadcastOnlineLocked()
		}
	}
}

func (m *Manager) evictLocked(c *Client) {
	if frame, err := Encode(EvictedEvent{Reason: "connected elsewhere"}); err == nil {
		select {
		case c.Send <- frame:
		default:
		}
	}
	m.removeLocked(c)
	logger.Info("WebSocket: evicted connection %s of %s", c.ID, c.UserID)
}

func (m *Manager) removeLocked(c *Client) {
	if userID, ok := m.owners[c.ID]; ok {
		delete(m.owners, c.ID)
		if room := m.rooms[userID]; room != nil {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(m.rooms, userID)
			}
		}
	}
	delete(m.clients, c.ID)
	close(c.Send)
	metrics.Connections.Dec()
}

func (m *Manager) shutdown() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, c := range m.clients {
		m.removeLocked(c)
	}
	metrics.OnlineUsers.Set(0)
}

func (m *Manager) broadcastOnlineLocked() {
	users := m.onlineLocked()
	metrics.OnlineUsers.Set(float64(len(users)))

	frame, err := Encode(OnlineUsersEvent{Users: users})
	if err != nil {
		logger.Error("WebSocket: failed to encode online users: %v", err)
		return
	}
	for _, c := range m.clients {
		m.enqueueLocked(c, TypeOnlineUsers, frame)
	}
}

func (m *Manager) onlineLocked() []string {
	users := make([]string, 0, len(m.rooms))
	for userID := range m.rooms {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// enqueueLocked never blocks; a full buffer drops the frame.
func (m *Manager) enqueueLocked(c *Client, eventType string, frame []byte) bool {
	select {
	case c.Send <- frame:
		metrics.Deliveries.WithLabelValues(eventType).Inc()
		return true
	default:
		metrics.Drops.WithLabelValues(eventType, metrics.DropBufferFull).Inc()
		logger.Warn("WebSocket: send buffer full for connection %s, dropping %s", c.ID, eventType)
		return false
	}
}

// IsOnline reports whether the user has joined on any live connection.
func (m *Manager) IsOnline(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.rooms[userID]
	return ok
}

// OnlineUsers returns the sorted set of online user ids.
func (m *Manager) OnlineUsers() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.onlineLocked()
}

// SendToUser delivers ev to every connection in the user's room. An offline
// user is not an error: the event is counted and dropped.
func (m *Manager) SendToUser(userID string, ev ServerEvent) bool {
	frame, err := Encode(ev)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s: %v", ev.EventType(), err)
		return false
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room := m.rooms[userID]
	if len(room) == 0 {
		metrics.Drops.WithLabelValues(ev.EventType(), metrics.DropOffline).Inc()
		return false
	}

	delivered := false
	for _, c := range room {
		if m.enqueueLocked(c, ev.EventType(), frame) {
			delivered = true
		}
	}
	return delivered
}

// Broadcast delivers ev to every open connection.
func (m *Manager) Broadcast(ev ServerEvent) {
	frame, err := Encode(ev)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s: %v", ev.EventType(), err)
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, c := range m.clients {
		m.enqueueLocked(c, ev.EventType(), frame)
	}
}

func (m *Manager) sendToClient(c *Client, ev ServerEvent) {
	frame, err := Encode(ev)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s: %v", ev.EventType(), err)
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if _, ok := m.clients[c.ID]; ok {
		m.enqueueLocked(c, ev.EventType(), frame)
	}
}

func (m *Manager) sendErrorToClient(c *Client, message string) {
	m.sendToClient(c, ErrorEvent{Message: message})
}

// MessageDelivered pushes a committed message to its receiver.
func (m *Manager) MessageDelivered(message *entity.Message) {
	m.SendToUser(message.ReceiverID, ReceiveMessageEvent{Message: message})
}

// ReadReceipt tells peerID that readerID has read their messages.
func (m *Manager) ReadReceipt(readerID, peerID string) {
	m.SendToUser(peerID, MessagesReadEvent{ReaderID: readerID})
}

func (m *Manager) MessageRetracted(messageID, recipientID string) {
	m.SendToUser(recipientID, MessageDeletedEvent{MessageID: messageID})
}

func (m *Manager) AccountDeleted(userID string) {
	m.Broadcast(AccountDeletedEvent{DeletedUserID: userID})
}

// SignalFriendship forwards a friend workflow event to one user.
func (m *Manager) SignalFriendship(kind, targetUserID string, friend FriendSummary) bool {
	return m.SendToUser(targetUserID, FriendshipEvent{Kind: kind, Friend: friend})
}
