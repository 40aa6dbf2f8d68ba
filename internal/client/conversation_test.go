package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/domain/entity"
	ws "pairchat/internal/infrastructure/websocket"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id, from, to string, minute int) *entity.Message {
	m := &entity.Message{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Text:       "text " + id,
		Timestamp:  base.Add(time.Duration(minute) * time.Minute),
	}
	m.Normalize()
	return m
}

func ids(c *Conversation) []string {
	var out []string
	for _, m := range c.Messages() {
		out = append(out, m.ID)
	}
	return out
}

func TestCommitSendReplacesTemporaryID(t *testing.T) {
	c := NewConversation("alice", "bob")

	provisional := c.BeginSend("hi", "", base)
	assert.Equal(t, "temp_1", provisional.ID)
	assert.True(t, c.IsPending("temp_1"))
	assert.False(t, provisional.IsRead)

	c.CommitSend(provisional.ID, msg("srv_9", "alice", "bob", 1))

	assert.Equal(t, []string{"srv_9"}, ids(c))
	assert.False(t, c.IsPending("temp_1"))
}

func TestCommitSendAfterEventKeepsOneCopy(t *testing.T) {
	c := NewConversation("alice", "bob")
	provisional := c.BeginSend("hi", "", base)

	c.ApplyEvent(ws.ReceiveMessageEvent{Message: msg("srv_9", "alice", "bob", 1)}, base)
	c.CommitSend(provisional.ID, msg("srv_9", "alice", "bob", 1))

	assert.Equal(t, []string{"srv_9"}, ids(c))
}

func TestRollbackSendRemovesProvisional(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.Load([]*entity.Message{msg("m1", "bob", "alice", 0)})

	provisional := c.BeginSend("hi", "", base)
	c.RollbackSend(provisional.ID)

	assert.Equal(t, []string{"m1"}, ids(c))
}

func TestLoadKeepsPendingSendsAndFiltersOtherConversations(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.BeginSend("pending", "", base)

	c.Load([]*entity.Message{
		msg("m2", "alice", "bob", 2),
		msg("m1", "bob", "alice", 1),
		msg("x", "carol", "alice", 0),
	})

	assert.Equal(t, []string{"m1", "m2", "temp_1"}, ids(c))
}

func TestIncomingMessageRequestsMarkRead(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.BeginSend("pending", "", base)

	assert.True(t, c.ApplyEvent(ws.ReceiveMessageEvent{Message: msg("m1", "bob", "alice", 1)}, base))
	assert.False(t, c.ApplyEvent(ws.ReceiveMessageEvent{Message: msg("m2", "carol", "alice", 1)}, base))

	// Live messages go ahead of provisional sends.
	assert.Equal(t, []string{"m1", "temp_1"}, ids(c))
	assert.Equal(t, 1, c.UnreadFromPeer())

	c.MarkIncomingRead()
	assert.Equal(t, 0, c.UnreadFromPeer())
}

func TestReadReceiptFlipsOwnMessages(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.Load([]*entity.Message{msg("m1", "alice", "bob", 0), msg("m2", "bob", "alice", 1)})

	c.ApplyEvent(ws.MessagesReadEvent{ReaderID: "carol"}, base)
	assert.False(t, c.Messages()[0].IsRead)

	c.ApplyEvent(ws.MessagesReadEvent{ReaderID: "bob"}, base)
	got := c.Messages()
	assert.True(t, got[0].IsRead)
	assert.False(t, got[1].IsRead)
}

func TestRetractionTombstonesInPlace(t *testing.T) {
	c := NewConversation("bob", "alice")
	c.Load([]*entity.Message{msg("m1", "alice", "bob", 0), msg("m2", "alice", "bob", 1)})

	c.ApplyEvent(ws.MessageDeletedEvent{MessageID: "m1"}, base)

	got := c.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.True(t, got[0].IsDeleted)
	assert.Equal(t, entity.TombstoneText, got[0].Text)
}

func TestStarRollbackRestoresSnapshot(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.Load([]*entity.Message{msg("m1", "bob", "alice", 0)})

	mut, err := c.BeginMutation(MutationStar, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, c.Messages()[0].StarredBy)

	_, err = c.BeginMutation(MutationStar, "m1")
	assert.ErrorIs(t, err, ErrMutationInFlight)

	c.RollbackMutation(mut)
	assert.Empty(t, c.Messages()[0].StarredBy)

	_, err = c.BeginMutation(MutationStar, "m1")
	assert.NoError(t, err)
}

func TestStarCommitTakesServerRecord(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.Load([]*entity.Message{msg("m1", "bob", "alice", 0)})

	mut, err := c.BeginMutation(MutationStar, "m1")
	require.NoError(t, err)

	server := msg("m1", "bob", "alice", 0)
	server.StarredBy = []string{"alice", "bob"}
	c.CommitMutation(mut, server)

	assert.Equal(t, []string{"alice", "bob"}, c.Messages()[0].StarredBy)
	// A resolved mutation cannot be rolled back afterwards.
	c.RollbackMutation(mut)
	assert.Equal(t, []string{"alice", "bob"}, c.Messages()[0].StarredBy)
}

func TestHideAndClearAreOptimistic(t *testing.T) {
	c := NewConversation("alice", "bob")
	starred := msg("m2", "bob", "alice", 1)
	starred.StarredBy = []string{"alice"}
	c.Load([]*entity.Message{msg("m1", "alice", "bob", 0), starred, msg("m3", "bob", "alice", 2)})

	hide, err := c.BeginMutation(MutationHide, "m3")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids(c))
	c.CommitMutation(hide, nil)

	clear, err := c.BeginMutation(MutationClear, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, ids(c))

	_, err = c.BeginMutation(MutationClear, "")
	assert.ErrorIs(t, err, ErrMutationInFlight)

	c.RollbackMutation(clear)
	assert.Equal(t, []string{"m1", "m2"}, ids(c))
}

func TestRollbackKeepsSendConfirmedDuringFlight(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.Load([]*entity.Message{msg("m1", "bob", "alice", 0)})
	provisional := c.BeginSend("hi", "", base)

	star, err := c.BeginMutation(MutationStar, "m1")
	require.NoError(t, err)
	c.CommitSend(provisional.ID, msg("srv_9", "alice", "bob", 1))
	c.RollbackMutation(star)

	assert.Equal(t, []string{"m1", "srv_9"}, ids(c))
	assert.False(t, c.IsPending(provisional.ID))
	assert.Empty(t, c.Messages()[0].StarredBy)

	_, err = c.BeginMutation(MutationStar, provisional.ID)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestRollbackDropsSendFailedDuringFlight(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.Load([]*entity.Message{msg("m1", "bob", "alice", 0)})
	provisional := c.BeginSend("hi", "", base)

	hide, err := c.BeginMutation(MutationHide, "m1")
	require.NoError(t, err)
	c.RollbackSend(provisional.ID)
	c.RollbackMutation(hide)

	assert.Equal(t, []string{"m1"}, ids(c))
}

func TestRollbackKeepsSendStartedDuringFlight(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.Load([]*entity.Message{msg("m1", "bob", "alice", 0)})

	clear, err := c.BeginMutation(MutationClear, "")
	require.NoError(t, err)
	first := c.BeginSend("one", "", base)
	second := c.BeginSend("two", "", base)
	c.CommitSend(first.ID, msg("srv_1", "alice", "bob", 1))
	c.RollbackMutation(clear)

	assert.Equal(t, []string{"m1", "srv_1", second.ID}, ids(c))
	assert.True(t, c.IsPending(second.ID))
}

func TestDeleteIsOptimisticTombstone(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.Load([]*entity.Message{msg("m1", "alice", "bob", 0)})

	mut, err := c.BeginMutation(MutationDelete, "m1")
	require.NoError(t, err)
	assert.True(t, c.Messages()[0].IsDeleted)

	c.RollbackMutation(mut)
	assert.False(t, c.Messages()[0].IsDeleted)
	assert.Equal(t, "text m1", c.Messages()[0].Text)
}

func TestMutationOnUnknownOrPendingMessage(t *testing.T) {
	c := NewConversation("alice", "bob")
	provisional := c.BeginSend("hi", "", base)

	_, err := c.BeginMutation(MutationStar, "missing")
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = c.BeginMutation(MutationStar, provisional.ID)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestPeerAccountDeletedEmptiesConversation(t *testing.T) {
	c := NewConversation("alice", "bob")
	c.Load([]*entity.Message{msg("m1", "alice", "bob", 0)})

	c.ApplyEvent(ws.AccountDeletedEvent{DeletedUserID: "carol"}, base)
	assert.Len(t, c.Messages(), 1)

	c.ApplyEvent(ws.AccountDeletedEvent{DeletedUserID: "bob"}, base)
	assert.Empty(t, c.Messages())
	assert.True(t, c.PeerGone())
}

func TestTypingPulseRecorded(t *testing.T) {
	c := NewConversation("alice", "bob")

	c.ApplyEvent(ws.TypingPulseEvent{SenderID: "bob", ReceiverID: "alice"}, base)
	assert.Equal(t, base, c.PeerTypingSince())
}
