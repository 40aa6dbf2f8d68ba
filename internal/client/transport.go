package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pairchat/internal/domain/entity"
	ws "pairchat/internal/infrastructure/websocket"
	apperrors "pairchat/pkg/errors"
)

const requestTimeout = 15 * time.Second

// envelope mirrors pkg/response.Response with a raw data field.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPAPI talks to the /v1/msg routes with a bearer token.
type HTTPAPI struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPAPI(baseURL, token string) *HTTPAPI {
	return &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (a *HTTPAPI) GetConversation(ctx context.Context, peerID string) ([]*entity.Message, error) {
	var out []*entity.Message
	err := a.do(ctx, http.MethodGet, "/v1/msg/get/"+url.PathEscape(peerID), nil, &out)
	return out, err
}

func (a *HTTPAPI) Send(ctx context.Context, receiverID, text, image string) (*entity.Message, error) {
	body := map[string]string{"receiver_id": receiverID, "text": text, "image": image}
	var out entity.Message
	if err := a.do(ctx, http.MethodPost, "/v1/msg/create", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) MarkRead(ctx context.Context, peerID string) error {
	return a.do(ctx, http.MethodPost, "/v1/msg/mark-read/"+url.PathEscape(peerID), nil, nil)
}

func (a *HTTPAPI) ToggleStar(ctx context.Context, messageID string) (*entity.Message, error) {
	var out entity.Message
	if err := a.do(ctx, http.MethodPost, "/v1/msg/star/"+url.PathEscape(messageID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) Delete(ctx context.Context, messageID string) (*entity.Message, error) {
	var out entity.Message
	if err := a.do(ctx, http.MethodDelete, "/v1/msg/delete/"+url.PathEscape(messageID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) Hide(ctx context.Context, messageID string) error {
	return a.do(ctx, http.MethodPost, "/v1/msg/hide/"+url.PathEscape(messageID), nil, nil)
}

func (a *HTTPAPI) Clear(ctx context.Context, peerID string) error {
	return a.do(ctx, http.MethodPost, "/v1/msg/clear/"+url.PathEscape(peerID), nil, nil)
}

// Presence returns the server's current online set.
func (a *HTTPAPI) Presence(ctx context.Context) ([]string, error) {
	var out struct {
		Users []string `json:"users"`
	}
	err := a.do(ctx, http.MethodGet, "/v1/presence", nil, &out)
	return out.Users, err
}

// IssueDevToken asks a development server to sign a token for userID.
func IssueDevToken(ctx context.Context, baseURL, userID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := NewHTTPAPI(baseURL, "").do(ctx, http.MethodPost, "/_dev/token", map[string]string{"user_id": userID}, &out)
	return out.Token, err
}

// do sends one request and decodes the envelope. Error envelopes come back as
// *errors.AppError with the server's code and status.
func (a *HTTPAPI) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode response (status %d): %w", method, path, resp.StatusCode, err)
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		code, message := apperrors.CodeInternal, http.StatusText(resp.StatusCode)
		if env.Error != nil {
			code, message = env.Error.Code, env.Error.Message
		}
		return apperrors.New(code, message, resp.StatusCode, nil)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// Socket is a client-side websocket connection speaking the event protocol.
type Socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial opens the realtime channel. wsURL is the server's /ws endpoint.
func Dial(ctx context.Context, wsURL, token string) (*Socket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: requestTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &Socket{conn: conn}, nil
}

func (s *Socket) Send(ev ws.ClientEvent) error {
	frame, err := ws.EncodeClient(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// Run reads server events until the connection closes or ctx ends. Frames
// that do not decode are skipped.
func (s *Socket) Run(ctx context.Context, handle func(ws.ServerEvent)) error {
	stop := closeOnCancel(ctx, s.conn)
	defer stop()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		ev, err := ws.DecodeServer(raw)
		if err != nil {
			continue
		}
		handle(ev)
	}
}

// closeOnCancel closes c when ctx ends. The returned stop ends the watch and
// waits for it to exit.
func closeOnCancel(ctx context.Context, c io.Closer) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
