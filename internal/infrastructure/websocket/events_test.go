package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/domain/entity"
)

func TestDecodeClientKnownEvents(t *testing.T) {
	ev, err := DecodeClient([]byte(`{"type":"mark-as-read","data":{"currentUserId":"alice","contactId":"bob"}}`))
	require.NoError(t, err)
	assert.Equal(t, MarkAsReadEvent{CurrentUserID: "alice", ContactID: "bob"}, ev)

	ev, err = DecodeClient([]byte(`{"type":"sendMessage","data":{"id":"m1","sender_id":"alice","receiver_id":"bob","text":"hi"}}`))
	require.NoError(t, err)
	send, ok := ev.(SendMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "m1", send.Message.ID)
	assert.Equal(t, "bob", send.Message.ReceiverID)

	ev, err = DecodeClient([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, PingEvent{}, ev)
}

func TestDecodeClientRejectsBadFrames(t *testing.T) {
	_, err := DecodeClient([]byte(`{"type":"teleport","data":{}}`))
	assert.Error(t, err)

	_, err = DecodeClient([]byte(`{"type":"join"}`))
	assert.Error(t, err)

	_, err = DecodeClient([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeUsesEnvelope(t *testing.T) {
	frame, err := Encode(MessagesReadEvent{ReaderID: "bob"})
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &msg))
	assert.Equal(t, TypeMessagesRead, msg["type"])
	assert.Equal(t, map[string]interface{}{"readerId": "bob"}, msg["data"])
	assert.NotEmpty(t, msg["timestamp"])
}

func TestServerEventsSurviveTheWire(t *testing.T) {
	message := &entity.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "hi"}
	message.Normalize()

	events := []ServerEvent{
		OnlineUsersEvent{Users: []string{"alice", "bob"}},
		ReceiveMessageEvent{Message: message},
		FriendshipEvent{Kind: TypeRequestAccepted, Friend: FriendSummary{ID: "carol", Name: "Carol"}},
		AccountDeletedEvent{DeletedUserID: "dave"},
	}
	for _, ev := range events {
		frame, err := Encode(ev)
		require.NoError(t, err)
		decoded, err := DecodeServer(frame)
		require.NoError(t, err)
		assert.Equal(t, ev.EventType(), decoded.EventType())
	}

	frame, _ := Encode(ReceiveMessageEvent{Message: message})
	decoded, _ := DecodeServer(frame)
	assert.Equal(t, message.ConversationID, decoded.(ReceiveMessageEvent).Message.ConversationID)
}

func TestAccountDeletedWireKey(t *testing.T) {
	frame, err := Encode(AccountDeletedEvent{DeletedUserID: "dave"})
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"data":{"deletedUserId":"dave"}`)

	decoded, err := DecodeServer(frame)
	require.NoError(t, err)
	assert.Equal(t, AccountDeletedEvent{DeletedUserID: "dave"}, decoded)
}

func TestOnlineUsersNeverEncodesNull(t *testing.T) {
	frame, err := Encode(OnlineUsersEvent{})
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"data":[]`)
}

func TestEncodeClientMatchesDecodeClient(t *testing.T) {
	frame, err := EncodeClient(TypingEvent{SenderID: "alice", ReceiverID: "bob"})
	require.NoError(t, err)
	ev, err := DecodeClient(frame)
	require.NoError(t, err)
	assert.Equal(t, TypingEvent{SenderID: "alice", ReceiverID: "bob"}, ev)
}

func TestIsFriendshipKind(t *testing.T) {
	assert.True(t, IsFriendshipKind(TypeNewFriendRequest))
	assert.False(t, IsFriendshipKind(TypeReceiveMessage))
}
