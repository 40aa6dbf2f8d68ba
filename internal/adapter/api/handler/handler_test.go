package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/adapter/api"
	adapterrepo "pairchat/internal/adapter/repository"
	"pairchat/internal/infrastructure/jwtauth"
	ws "pairchat/internal/infrastructure/websocket"
	"pairchat/internal/usecase"
	"pairchat/pkg/errors"
	"pairchat/pkg/response"
)

type request struct {
	method string
	body   string
	uid    string
	params map[string]string
}

func serve(t *testing.T, h echo.HandlerFunc, r request) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()

	e := echo.New()
	e.Validator = api.NewValidator()

	req := httptest.NewRequest(r.method, "/", strings.NewReader(r.body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("uid", r.uid)
	var names, values []string
	for name, value := range r.params {
		names = append(names, name)
		values = append(values, value)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)

	require.NoError(t, h(c))

	var body response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func dataMap(t *testing.T, body response.Response) map[string]interface{} {
	t.Helper()
	m, ok := body.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", body.Data)
	return m
}

func newMessageHandler() *MessageHandler {
	uc := usecase.NewMessageUseCase(adapterrepo.NewMemoryMessageRepository(), nil, nil)
	return NewMessageHandler(uc, nil)
}

func send(t *testing.T, h *MessageHandler, from, to, text string) string {
	t.Helper()
	rec, body := serve(t, h.Create, request{
		method: http.MethodPost,
		body:   `{"receiver_id":"` + to + `","text":"` + text + `"}`,
		uid:    from,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return dataMap(t, body)["id"].(string)
}

func TestCreateMessage(t *testing.T) {
	h := newMessageHandler()

	rec, body := serve(t, h.Create, request{
		method: http.MethodPost,
		body:   `{"receiver_id":"bob","text":"hi"}`,
		uid:    "alice",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, body.Success)
	data := dataMap(t, body)
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, "alice", data["sender_id"])
	assert.Equal(t, false, data["is_read"])
}

func TestCreateMessageErrors(t *testing.T) {
	h := newMessageHandler()

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing receiver", `{"text":"hi"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"no content", `{"receiver_id":"bob","text":"   "}`, http.StatusBadRequest, errors.CodeInvalidContent},
		{"self", `{"receiver_id":"alice","text":"hi"}`, http.StatusBadRequest, errors.CodeInvalidContent},
		{"bad image url", `{"receiver_id":"bob","image":"not a url"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed", `{"receiver_id":`, http.StatusBadRequest, errors.CodeBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := serve(t, h.Create, request{method: http.MethodPost, body: tc.body, uid: "alice"})
			assert.Equal(t, tc.status, rec.Code)
			require.NotNil(t, body.Error)
			assert.Equal(t, tc.code, body.Error.Code)
		})
	}
}

func TestGetConversationRespectsViewer(t *testing.T) {
	h := newMessageHandler()
	first := send(t, h, "alice", "bob", "one")
	send(t, h, "bob", "alice", "two")

	rec, _ := serve(t, h.Hide, request{
		method: http.MethodPost,
		uid:    "alice",
		params: map[string]string{"messageId": first},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	_, aliceView := serve(t, h.Get, request{method: http.MethodGet, uid: "alice", params: map[string]string{"contactId": "bob"}})
	_, bobView := serve(t, h.Get, request{method: http.MethodGet, uid: "bob", params: map[string]string{"contactId": "alice"}})

	assert.Len(t, aliceView.Data, 1)
	assert.Len(t, bobView.Data, 2)
}

func TestMarkReadReportsCount(t *testing.T) {
	h := newMessageHandler()
	send(t, h, "alice", "bob", "one")
	send(t, h, "alice", "bob", "two")

	_, body := serve(t, h.MarkRead, request{method: http.MethodPost, uid: "bob", params: map[string]string{"contactId": "alice"}})
	assert.Equal(t, float64(2), dataMap(t, body)["updated"])

	_, body = serve(t, h.MarkRead, request{method: http.MethodPost, uid: "bob", params: map[string]string{"contactId": "alice"}})
	assert.Equal(t, float64(0), dataMap(t, body)["updated"])
}

func TestDeleteOnlyBySender(t *testing.T) {
	h := newMessageHandler()
	id := send(t, h, "alice", "bob", "secret")

	rec, body := serve(t, h.Delete, request{method: http.MethodDelete, uid: "bob", params: map[string]string{"messageId": id}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, errors.CodeForbidden, body.Error.Code)

	rec, body = serve(t, h.Delete, request{method: http.MethodDelete, uid: "alice", params: map[string]string{"messageId": id}})
	assert.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, body)
	assert.Equal(t, "This message was deleted", data["text"])
	assert.Equal(t, true, data["is_deleted"])

	rec, body = serve(t, h.Star, request{method: http.MethodPost, uid: "bob", params: map[string]string{"messageId": id}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.CodeConflict, body.Error.Code)
}

func TestStarTogglesMembership(t *testing.T) {
	h := newMessageHandler()
	id := send(t, h, "alice", "bob", "keep")

	_, body := serve(t, h.Star, request{method: http.MethodPost, uid: "bob", params: map[string]string{"messageId": id}})
	assert.Equal(t, []interface{}{"bob"}, dataMap(t, body)["starred_by"])

	_, body = serve(t, h.Star, request{method: http.MethodPost, uid: "bob", params: map[string]string{"messageId": id}})
	assert.Empty(t, dataMap(t, body)["starred_by"])

	rec, _ := serve(t, h.Star, request{method: http.MethodPost, uid: "mallory", params: map[string]string{"messageId": id}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(t, h.Star, request{method: http.MethodPost, uid: "bob", params: map[string]string{"messageId": "missing"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearConversationPurgesWhenBothCleared(t *testing.T) {
	h := newMessageHandler()
	send(t, h, "alice", "bob", "one")
	starred := send(t, h, "bob", "alice", "two")
	serve(t, h.Star, request{method: http.MethodPost, uid: "alice", params: map[string]string{"messageId": starred}})

	_, body := serve(t, h.Clear, request{method: http.MethodPost, uid: "alice", params: map[string]string{"contactId": "bob"}})
	data := dataMap(t, body)
	assert.Equal(t, float64(1), data["cleared"])
	assert.Equal(t, float64(0), data["purged"])

	_, body = serve(t, h.Clear, request{method: http.MethodPost, uid: "bob", params: map[string]string{"contactId": "alice"}})
	data = dataMap(t, body)
	assert.Equal(t, float64(2), data["cleared"])
	assert.Equal(t, float64(1), data["purged"])

	_, aliceView := serve(t, h.Get, request{method: http.MethodGet, uid: "alice", params: map[string]string{"contactId": "bob"}})
	assert.Len(t, aliceView.Data, 1)
}

func TestUploadWithoutMediaStore(t *testing.T) {
	h := newMessageHandler()

	rec, body := serve(t, h.Upload, request{method: http.MethodPost, uid: "alice"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "MEDIA_DISABLED", body.Error.Code)
}

func TestUploadRequiresImageField(t *testing.T) {
	uc := usecase.NewMessageUseCase(adapterrepo.NewMemoryMessageRepository(), nil, nil)
	h := NewMessageHandler(uc, usecase.NewMediaUseCase(nil))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("document", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("uid", "alice")

	require.NoError(t, h.Upload(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountDeletePurgesMessages(t *testing.T) {
	repo := adapterrepo.NewMemoryMessageRepository()
	uc := usecase.NewMessageUseCase(repo, nil, nil)
	mh := NewMessageHandler(uc, nil)
	send(t, mh, "alice", "bob", "one")
	send(t, mh, "bob", "alice", "two")
	send(t, mh, "bob", "carol", "three")

	_, body := serve(t, NewAccountHandler(uc).Delete, request{method: http.MethodDelete, uid: "alice"})
	data := dataMap(t, body)
	assert.Equal(t, "alice", data["deleted_user_id"])
	assert.Equal(t, float64(2), data["messages_removed"])

	_, bobView := serve(t, mh.Get, request{method: http.MethodGet, uid: "bob", params: map[string]string{"contactId": "carol"}})
	assert.Len(t, bobView.Data, 1)
}

type fakePresence []string

func (p fakePresence) OnlineUsers() []string { return p }

func TestPresenceList(t *testing.T) {
	_, body := serve(t, NewPresenceHandler(fakePresence{"alice", "bob"}).List, request{method: http.MethodGet, uid: "alice"})
	assert.Equal(t, []interface{}{"alice", "bob"}, dataMap(t, body)["users"])
}

type recordingSignaler struct {
	kind   string
	target string
	friend ws.FriendSummary
}

func (s *recordingSignaler) SignalFriendship(kind, target string, friend ws.FriendSummary) bool {
	s.kind, s.target, s.friend = kind, target, friend
	return true
}

func TestFriendshipSignal(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"request from caller", `{"kind":"newFriendRequest","target_id":"bob","friend":{"id":"alice","name":"Alice"}}`, http.StatusOK},
		{"request impersonating", `{"kind":"newFriendRequest","target_id":"bob","friend":{"id":"carol"}}`, http.StatusForbidden},
		{"accept to self", `{"kind":"requestAccepted","target_id":"alice","friend":{"id":"alice"}}`, http.StatusBadRequest},
		{"list update for caller", `{"kind":"friendListUpdated","target_id":"alice","friend":{"id":"bob"}}`, http.StatusOK},
		{"list update for other", `{"kind":"friendListUpdated","target_id":"bob","friend":{"id":"alice"}}`, http.StatusForbidden},
		{"unknown kind", `{"kind":"poke","target_id":"bob","friend":{"id":"alice"}}`, http.StatusBadRequest},
		{"missing friend id", `{"kind":"newFriendRequest","target_id":"bob"}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signaler := &recordingSignaler{}
			rec, _ := serve(t, NewFriendshipHandler(signaler).Signal, request{method: http.MethodPost, body: tc.body, uid: "alice"})
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.NotEmpty(t, signaler.kind)
			} else {
				assert.Empty(t, signaler.kind)
			}
		})
	}
}

func TestDevTokenRoundTrip(t *testing.T) {
	verifier := jwtauth.NewVerifier("test-secret", time.Hour)

	rec, body := serve(t, NewDevTokenHandler(verifier).IssueToken, request{method: http.MethodPost, body: `{"user_id":"alice"}`})
	require.Equal(t, http.StatusOK, rec.Code)

	token := dataMap(t, body)["token"].(string)
	uid, err := verifier.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)
}
