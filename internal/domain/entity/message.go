package entity

import (
	"sort"
	"strings"
	"time"
)

// TombstoneText replaces the content of a message its sender deleted.
const TombstoneText = "This message was deleted"

type Message struct {
	ID             string    `json:"id" firestore:"id" bson:"_id"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId" bson:"conversationId"`
	SenderID       string    `json:"sender_id" firestore:"senderId" bson:"senderId"`
	ReceiverID     string    `json:"receiver_id" firestore:"receiverId" bson:"receiverId"`
	Text           string    `json:"text,omitempty" firestore:"text" bson:"text"`
	Image          string    `json:"image,omitempty" firestore:"image" bson:"image"`
	Timestamp      time.Time `json:"timestamp" firestore:"timestamp" bson:"timestamp"`
	IsRead         bool      `json:"is_read" firestore:"isRead" bson:"isRead"`
	IsDeleted      bool      `json:"is_deleted" firestore:"isDeleted" bson:"isDeleted"`
	StarredBy      []string  `json:"starred_by" firestore:"starredBy" bson:"starredBy"`
	ClearedBy      []string  `json:"cleared_by" firestore:"clearedBy" bson:"clearedBy"`
}

// ConversationKey identifies the unordered pair {a, b}.
func ConversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

func (m *Message) IsParticipant(userID string) bool {
	return userID != "" && (m.SenderID == userID || m.ReceiverID == userID)
}

// Peer returns the other participant, or "" when userID is not one.
func (m *Message) Peer(userID string) string {
	switch userID {
	case m.SenderID:
		return m.ReceiverID
	case m.ReceiverID:
		return m.SenderID
	}
	return ""
}

func (m *Message) IsStarredBy(userID string) bool {
	return contains(m.StarredBy, userID)
}

func (m *Message) IsClearedBy(userID string) bool {
	return contains(m.ClearedBy, userID)
}

// VisibleTo reports whether viewer may fetch the message. A star overrides
// the viewer's own earlier clear.
func (m *Message) VisibleTo(viewer string) bool {
	if !m.IsParticipant(viewer) {
		return false
	}
	return !m.IsClearedBy(viewer) || m.IsStarredBy(viewer)
}

// PurgeEligible reports whether both participants cleared the message and
// nobody starred it.
func (m *Message) PurgeEligible() bool {
	return m.IsClearedBy(m.SenderID) && m.IsClearedBy(m.ReceiverID) && len(m.StarredBy) == 0
}

// Tombstone rewrites the message into its deleted form.
func (m *Message) Tombstone() {
	m.Text = TombstoneText
	m.Image = ""
	m.IsDeleted = true
	m.StarredBy = []string{}
}

// Normalize makes the set fields non-nil so stores never persist null arrays.
func (m *Message) Normalize() {
	if m.StarredBy == nil {
		m.StarredBy = []string{}
	}
	if m.ClearedBy == nil {
		m.ClearedBy = []string{}
	}
	if m.ConversationID == "" {
		m.ConversationID = ConversationKey(m.SenderID, m.ReceiverID)
	}
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.StarredBy = append([]string{}, m.StarredBy...)
	out.ClearedBy = append([]string{}, m.ClearedBy...)
	return &out
}

// SortByTimestamp orders messages ascending by creation time, id breaking ties.
func SortByTimestamp(messages []*Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}

func AddToSet(set []string, item string) []string {
	if contains(set, item) {
		return set
	}
	return append(set, item)
}

func RemoveFromSet(set []string, item string) []string {
	out := set[:0:0]
	for _, v := range set {
		if v != item {
			out = append(out, v)
		}
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
