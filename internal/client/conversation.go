package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pairchat/internal/domain/entity"
	ws "pairchat/internal/infrastructure/websocket"
)

// ErrMutationInFlight is returned when a message already has an unresolved
// optimistic mutation.
var ErrMutationInFlight = errors.New("a change to this message is already in flight")

// ErrUnknownMessage is returned when a mutation names a message the
// conversation does not hold.
var ErrUnknownMessage = errors.New("message is not in this conversation")

const tempIDPrefix = "temp_"

// clearKey is the in-flight slot for conversation-wide mutations.
const clearKey = "*"

type MutationKind int

const (
	MutationStar MutationKind = iota
	MutationHide
	MutationDelete
	MutationClear
)

func (k MutationKind) String() string {
	switch k {
	case MutationStar:
		return "star"
	case MutationHide:
		return "hide"
	case MutationDelete:
		return "delete"
	case MutationClear:
		return "clear"
	}
	return fmt.Sprintf("mutation(%d)", int(k))
}

// Mutation is an optimistic change waiting for the server's answer. It carries
// the full list as it was before the change.
type Mutation struct {
	Kind      MutationKind
	MessageID string
	key       string
	snapshot  []*entity.Message
	// confirmedFrom indexes the first send confirmed after the snapshot.
	confirmedFrom int
	done          bool
}

// confirmation records a provisional send the server accepted.
type confirmation struct {
	tempID    string
	canonical *entity.Message
}

// Conversation is the local, ordered view of one conversation as seen by
// self. Provisional sends carry a temp_ id until the server confirms them.
// All methods are safe for concurrent use.
type Conversation struct {
	mu         sync.Mutex
	self       string
	peer       string
	messages   []*entity.Message
	pending    map[string]bool
	inFlight   map[string]bool
	confirmed  []confirmation
	tempSeq    int
	peerTyping time.Time
	peerGone   bool
}

func NewConversation(self, peer string) *Conversation {
	return &Conversation{
		self:     self,
		peer:     peer,
		pending:  make(map[string]bool),
		inFlight: make(map[string]bool),
	}
}

func (c *Conversation) Peer() string { return c.peer }

// Messages returns a copy of the current list, oldest first.
func (c *Conversation) Messages() []*entity.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.messages)
}

// IsPending reports whether id is a provisional send.
func (c *Conversation) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[id]
}

// Load replaces the list with a fetched conversation. Provisional sends that
// are still pending stay at the end.
func (c *Conversation) Load(fetched []*entity.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]*entity.Message, 0, len(fetched)+len(c.pending))
	for _, m := range fetched {
		if m.IsParticipant(c.self) && m.Peer(c.self) == c.peer {
			next = append(next, m.Clone())
		}
	}
	entity.SortByTimestamp(next)
	for _, m := range c.messages {
		if c.pending[m.ID] {
			next = append(next, m)
		}
	}
	c.messages = next
	c.peerGone = false
}

// UnreadFromPeer counts incoming messages not yet marked read.
func (c *Conversation) UnreadFromPeer() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, m := range c.messages {
		if m.SenderID == c.peer && !m.IsRead {
			n++
		}
	}
	return n
}

// MarkIncomingRead flips isRead on the peer's messages after self has read
// them.
func (c *Conversation) MarkIncomingRead() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.messages {
		if m.SenderID == c.peer {
			m.IsRead = true
		}
	}
}

// BeginSend appends a provisional message and returns it.
func (c *Conversation) BeginSend(text, image string, now time.Time) *entity.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tempSeq++
	m := &entity.Message{
		ID:         fmt.Sprintf("%s%d", tempIDPrefix, c.tempSeq),
		SenderID:   c.self,
		ReceiverID: c.peer,
		Text:       text,
		Image:      image,
		Timestamp:  now,
	}
	m.Normalize()

	c.messages = append(c.messages, m)
	c.pending[m.ID] = true
	return m.Clone()
}

// CommitSend swaps the provisional entry for the server's record. If the
// record already arrived by another path, the provisional entry is dropped.
func (c *Conversation) CommitSend(tempID string, canonical *entity.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, tempID)
	if len(c.inFlight) > 0 {
		c.confirmed = append(c.confirmed, confirmation{tempID: tempID, canonical: canonical.Clone()})
	}
	tempIdx := c.indexLocked(tempID)

	if c.indexLocked(canonical.ID) >= 0 {
		if tempIdx >= 0 {
			c.removeAtLocked(tempIdx)
		}
		return
	}

	if tempIdx >= 0 {
		c.messages[tempIdx] = canonical.Clone()
		return
	}
	c.insertLocked(canonical.Clone())
}

// RollbackSend drops a provisional entry after a failed send.
func (c *Conversation) RollbackSend(tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, tempID)
	if i := c.indexLocked(tempID); i >= 0 {
		c.removeAtLocked(i)
	}
}

// BeginMutation applies kind optimistically and returns the handle needed to
// commit or roll it back. A second mutation on the same message, or a second
// clear, fails with ErrMutationInFlight until the first resolves.
func (c *Conversation) BeginMutation(kind MutationKind, messageID string) (*Mutation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := messageID
	if kind == MutationClear {
		key = clearKey
	}
	if c.inFlight[key] {
		return nil, ErrMutationInFlight
	}

	idx := -1
	if kind != MutationClear {
		idx = c.indexLocked(messageID)
		if idx < 0 || c.pending[messageID] {
			return nil, ErrUnknownMessage
		}
	}

	mut := &Mutation{
		Kind:          kind,
		MessageID:     messageID,
		key:           key,
		snapshot:      cloneAll(c.messages),
		confirmedFrom: len(c.confirmed),
	}

	switch kind {
	case MutationStar:
		m := c.messages[idx]
		if m.IsStarredBy(c.self) {
			m.StarredBy = entity.RemoveFromSet(m.StarredBy, c.self)
		} else {
			m.StarredBy = entity.AddToSet(m.StarredBy, c.self)
		}
	case MutationHide:
		c.removeAtLocked(idx)
	case MutationDelete:
		c.messages[idx].Tombstone()
	case MutationClear:
		kept := c.messages[:0]
		for _, m := range c.messages {
			if c.pending[m.ID] || m.IsStarredBy(c.self) {
				kept = append(kept, m)
			}
		}
		c.messages = kept
	}

	c.inFlight[key] = true
	return mut, nil
}

// CommitMutation releases the in-flight slot. For star and delete the
// server's record replaces the optimistic one.
func (c *Conversation) CommitMutation(mut *Mutation, result *entity.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mut.done {
		return
	}
	mut.done = true
	delete(c.inFlight, mut.key)
	c.releaseConfirmedLocked()

	if result == nil || (mut.Kind != MutationStar && mut.Kind != MutationDelete) {
		return
	}
	if i := c.indexLocked(result.ID); i >= 0 {
		c.messages[i] = result.Clone()
	}
}

// RollbackMutation restores the list captured when the mutation began. Sends
// resolved while the mutation was in flight stay resolved: confirmed ones keep
// their server id, failed ones stay gone, and sends still pending are kept.
func (c *Conversation) RollbackMutation(mut *Mutation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mut.done {
		return
	}
	mut.done = true
	delete(c.inFlight, mut.key)

	current := c.messages
	c.messages = cloneAll(mut.snapshot)

	for _, conf := range c.confirmed[mut.confirmedFrom:] {
		tempIdx := c.indexLocked(conf.tempID)
		switch {
		case c.indexLocked(conf.canonical.ID) >= 0:
			if tempIdx >= 0 {
				c.removeAtLocked(tempIdx)
			}
		case tempIdx >= 0:
			c.messages[tempIdx] = conf.canonical.Clone()
		default:
			c.insertLocked(conf.canonical.Clone())
		}
	}

	kept := c.messages[:0]
	for _, m := range c.messages {
		if !strings.HasPrefix(m.ID, tempIDPrefix) || c.pending[m.ID] {
			kept = append(kept, m)
		}
	}
	c.messages = kept

	for _, m := range current {
		if c.pending[m.ID] && c.indexLocked(m.ID) < 0 {
			c.messages = append(c.messages, m)
		}
	}

	c.releaseConfirmedLocked()
}

// releaseConfirmedLocked forgets confirmations once no mutation can roll
// back past them.
func (c *Conversation) releaseConfirmedLocked() {
	if len(c.inFlight) == 0 {
		c.confirmed = nil
	}
}

// ApplyEvent folds a server event into the list. It reports whether the
// event delivered unread messages that self should now mark read.
func (c *Conversation) ApplyEvent(ev ws.ServerEvent, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case ws.ReceiveMessageEvent:
		m := e.Message
		if m == nil || !m.IsParticipant(c.self) || m.Peer(c.self) != c.peer {
			return false
		}
		if i := c.indexLocked(m.ID); i >= 0 {
			c.messages[i] = m.Clone()
		} else {
			c.insertLocked(m.Clone())
		}
		return m.SenderID == c.peer && !m.IsRead

	case ws.MessagesReadEvent:
		if e.ReaderID != c.peer {
			return false
		}
		for _, m := range c.messages {
			if m.SenderID == c.self && !c.pending[m.ID] {
				m.IsRead = true
			}
		}

	case ws.MessageDeletedEvent:
		if i := c.indexLocked(e.MessageID); i >= 0 {
			c.messages[i].Tombstone()
		}

	case ws.TypingPulseEvent:
		if e.SenderID == c.peer {
			c.peerTyping = now
		}

	case ws.AccountDeletedEvent:
		if e.DeletedUserID == c.peer {
			c.messages = nil
			c.pending = make(map[string]bool)
			c.peerGone = true
		}
	}
	return false
}

// PeerTypingSince returns when the last typing pulse from the peer arrived.
func (c *Conversation) PeerTypingSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerTyping
}

// PeerGone reports whether the peer's account was deleted.
func (c *Conversation) PeerGone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerGone
}

func (c *Conversation) indexLocked(id string) int {
	for i, m := range c.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) removeAtLocked(i int) {
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
}

// insertLocked places m by timestamp, ahead of any provisional sends.
func (c *Conversation) insertLocked(m *entity.Message) {
	i := len(c.messages)
	for i > 0 {
		prev := c.messages[i-1]
		if !c.pending[prev.ID] && !prev.Timestamp.After(m.Timestamp) {
			break
		}
		i--
	}
	c.messages = append(c.messages, nil)
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = m
}

func cloneAll(in []*entity.Message) []*entity.Message {
	out := make([]*entity.Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
