package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"pairchat/internal/domain/entity"
	ws "pairchat/internal/infrastructure/websocket"
	"pairchat/pkg/logger"
)

// TypingInterval is the minimum gap between typing pulses to one peer.
const TypingInterval = 2 * time.Second

// API is the request/response surface of the server.
type API interface {
	GetConversation(ctx context.Context, peerID string) ([]*entity.Message, error)
	Send(ctx context.Context, receiverID, text, image string) (*entity.Message, error)
	MarkRead(ctx context.Context, peerID string) error
	ToggleStar(ctx context.Context, messageID string) (*entity.Message, error)
	Delete(ctx context.Context, messageID string) (*entity.Message, error)
	Hide(ctx context.Context, messageID string) error
	Clear(ctx context.Context, peerID string) error
}

// Realtime sends client events over the live connection.
type Realtime interface {
	Send(ev ws.ClientEvent) error
}

// Notice is a transient, user-visible notification about a failed change.
type Notice struct {
	PeerID string
	Action string
	Err    error
}

// Session owns the open conversations of one signed-in user and merges the
// request/response path with the realtime path by message id.
type Session struct {
	self   string
	api    API
	rt     Realtime
	notify func(Notice)
	now    func() time.Time

	mu            sync.Mutex
	conversations map[string]*Conversation
	lastTyping    map[string]time.Time
	online        map[string]bool
	evicted       bool
}

// NewSession builds a session. rt may be nil, in which case reads are
// acknowledged over the API and typing pulses are not sent.
func NewSession(self string, api API, rt Realtime, notify func(Notice)) *Session {
	if notify == nil {
		notify = func(n Notice) {
			logger.Warn("%s with %s failed: %v", n.Action, n.PeerID, n.Err)
		}
	}
	return &Session{
		self:          self,
		api:           api,
		rt:            rt,
		notify:        notify,
		now:           time.Now,
		conversations: make(map[string]*Conversation),
		lastTyping:    make(map[string]time.Time),
		online:        make(map[string]bool),
	}
}

// Join announces the connection's user on the realtime channel.
func (s *Session) Join() error {
	if s.rt == nil {
		return nil
	}
	return s.rt.Send(ws.JoinEvent{UserID: s.self})
}

func (s *Session) conversation(peerID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[peerID]
	if !ok {
		c = NewConversation(s.self, peerID)
		s.conversations[peerID] = c
	}
	return c
}

// Conversation returns the open conversation with peerID, or nil.
func (s *Session) Conversation(peerID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[peerID]
}

// Open fetches the conversation and acknowledges any unread incoming
// messages, since the user is now looking at them.
func (s *Session) Open(ctx context.Context, peerID string) (*Conversation, error) {
	messages, err := s.api.GetConversation(ctx, peerID)
	if err != nil {
		return nil, err
	}

	c := s.conversation(peerID)
	c.Load(messages)

	if c.UnreadFromPeer() > 0 {
		s.markRead(ctx, c)
	}
	return c, nil
}

// Send shows the message immediately and reconciles it with the server's
// answer. On failure the provisional entry is removed and a notice raised.
func (s *Session) Send(ctx context.Context, peerID, text, image string) (*entity.Message, error) {
	c := s.conversation(peerID)
	provisional := c.BeginSend(text, image, s.now())

	message, err := s.api.Send(ctx, peerID, text, image)
	if err != nil {
		c.RollbackSend(provisional.ID)
		s.notify(Notice{PeerID: peerID, Action: "send", Err: err})
		return nil, err
	}

	c.CommitSend(provisional.ID, message)
	return message, nil
}

func (s *Session) ToggleStar(ctx context.Context, peerID, messageID string) error {
	return s.mutate(ctx, peerID, MutationStar, messageID, func() (*entity.Message, error) {
		return s.api.ToggleStar(ctx, messageID)
	})
}

func (s *Session) Delete(ctx context.Context, peerID, messageID string) error {
	return s.mutate(ctx, peerID, MutationDelete, messageID, func() (*entity.Message, error) {
		return s.api.Delete(ctx, messageID)
	})
}

func (s *Session) Hide(ctx context.Context, peerID, messageID string) error {
	return s.mutate(ctx, peerID, MutationHide, messageID, func() (*entity.Message, error) {
		return nil, s.api.Hide(ctx, messageID)
	})
}

func (s *Session) Clear(ctx context.Context, peerID string) error {
	return s.mutate(ctx, peerID, MutationClear, "", func() (*entity.Message, error) {
		return nil, s.api.Clear(ctx, peerID)
	})
}

func (s *Session) mutate(ctx context.Context, peerID string, kind MutationKind, messageID string, call func() (*entity.Message, error)) error {
	c := s.conversation(peerID)

	mut, err := c.BeginMutation(kind, messageID)
	if err != nil {
		return err
	}

	result, err := call()
	if err != nil {
		c.RollbackMutation(mut)
		s.notify(Notice{PeerID: peerID, Action: kind.String(), Err: err})
		return err
	}

	c.CommitMutation(mut, result)
	return nil
}

// Typing sends a typing pulse to peerID, at most once per TypingInterval.
func (s *Session) Typing(peerID string) error {
	if s.rt == nil {
		return nil
	}

	now := s.now()
	s.mu.Lock()
	if last, ok := s.lastTyping[peerID]; ok && now.Sub(last) < TypingInterval {
		s.mu.Unlock()
		return nil
	}
	s.lastTyping[peerID] = now
	s.mu.Unlock()

	return s.rt.Send(ws.TypingEvent{SenderID: s.self, ReceiverID: peerID})
}

// HandleEvent applies one server event to the open conversations.
func (s *Session) HandleEvent(ctx context.Context, ev ws.ServerEvent) {
	switch e := ev.(type) {
	case ws.OnlineUsersEvent:
		online := make(map[string]bool, len(e.Users))
		for _, u := range e.Users {
			online[u] = true
		}
		s.mu.Lock()
		s.online = online
		s.mu.Unlock()
		return

	case ws.EvictedEvent:
		s.mu.Lock()
		s.evicted = true
		s.mu.Unlock()
		logger.Warn("Connection replaced by a newer one: %s", e.Reason)
		return

	case ws.ErrorEvent:
		logger.Warn("Server rejected an event: %s", e.Message)
		return

	case ws.ReceiveMessageEvent:
		if e.Message == nil {
			return
		}
		// Only conversations the user has open receive live messages.
		c := s.Conversation(e.Message.Peer(s.self))
		if c != nil && c.ApplyEvent(ev, s.now()) {
			s.markRead(ctx, c)
		}
		return

	case ws.MessagesReadEvent:
		if c := s.Conversation(e.ReaderID); c != nil {
			c.ApplyEvent(ev, s.now())
		}
		return

	case ws.TypingPulseEvent:
		if c := s.Conversation(e.SenderID); c != nil {
			c.ApplyEvent(ev, s.now())
		}
		return
	}

	// Events without a single addressed conversation go to all of them.
	s.mu.Lock()
	open := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.ApplyEvent(ev, s.now())
	}
}

func (s *Session) markRead(ctx context.Context, c *Conversation) {
	var err error
	if s.rt != nil {
		err = s.rt.Send(ws.MarkAsReadEvent{CurrentUserID: s.self, ContactID: c.Peer()})
	} else {
		err = s.api.MarkRead(ctx, c.Peer())
	}
	if err != nil {
		logger.Warn("Mark read with %s failed: %v", c.Peer(), err)
		return
	}
	c.MarkIncomingRead()
}

func (s *Session) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

// Online returns the last announced online set, sorted.
func (s *Session) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.online))
	for u := range s.online {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Evicted reports whether the server replaced this connection.
func (s *Session) Evicted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}
