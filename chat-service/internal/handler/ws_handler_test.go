package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-dm/chat-service/internal/config"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/router"
	"github.com/weiawesome/wes-io-dm/internal/chaterr"
	"github.com/weiawesome/wes-io-dm/pkg/jwt"
)

type call struct {
	Op     string
	ConnID string
	Args   []any
}

type fakeRouter struct {
	mu      sync.Mutex
	calls   []call
	sendErr error
	closed  chan string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{closed: make(chan string, 1)}
}

func (f *fakeRouter) record(op, connID string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Op: op, ConnID: connID, Args: args})
}

func (f *fakeRouter) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeRouter) Connect(_ context.Context, conn router.Conn, userID string) (router.Outcome, error) {
	f.record("connect", conn.ConnID(), userID)
	_ = conn.SendMessage(&domain.ConnectedMessage{Type: domain.MsgTypeConnected, ConnID: conn.ConnID(), UserID: userID})
	return router.Delivered, nil
}

func (f *fakeRouter) JoinChat(_ context.Context, connID, target string) (router.Outcome, error) {
	f.record("joinChat", connID, target)
	return router.Delivered, nil
}

func (f *fakeRouter) SendMessage(_ context.Context, connID, target, text, tempID string) (router.Outcome, error) {
	f.record("sendMessage", connID, target, text, tempID)
	return router.Delivered, f.sendErr
}

func (f *fakeRouter) MarkSeen(_ context.Context, connID, target string) (router.Outcome, error) {
	f.record("markAsSeen", connID, target)
	return router.Delivered, nil
}

func (f *fakeRouter) Typing(_ context.Context, connID, target string, isTyping bool) (router.Outcome, error) {
	f.record("typing", connID, target, isTyping)
	return router.Delivered, nil
}

func (f *fakeRouter) SetPresence(_ context.Context, connID string, online bool) (router.Outcome, error) {
	f.record("presence", connID, online)
	return router.Delivered, nil
}

func (f *fakeRouter) Disconnect(_ context.Context, connID string) (router.Outcome, error) {
	f.record("disconnect", connID)
	f.closed <- connID
	return router.Delivered, nil
}

type captureConn struct {
	mu   sync.Mutex
	sent []any
}

func (c *captureConn) ConnID() string { return "conn-1" }

func (c *captureConn) SendMessage(m any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return nil
}

func (c *captureConn) last() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

var testWS = config.WebSocketConfig{
	PingInterval:   time.Minute,
	PongWait:       time.Minute,
	WriteWait:      time.Second,
	MaxMessageSize: 8192,
}

func newServer(t *testing.T, r ChatRouter, auth config.AuthConfig) (*httptest.Server, *jwt.Manager) {
	t.Helper()
	manager, err := jwt.NewManager("test-secret", time.Hour, "wes-io-dm")
	require.NoError(t, err)

	h := hub.NewHub(testWS)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	m := mux.NewRouter()
	NewWSHandler(h, r, manager, testWS, auth).RegisterRoutes(m)
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	return srv, manager
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws" + query
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestHandleWebSocket_RejectsMissingCredentials(t *testing.T) {
	srv, _ := newServer(t, newFakeRouter(), config.AuthConfig{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?userId=u1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocket_RejectsBadToken(t *testing.T) {
	srv, _ := newServer(t, newFakeRouter(), config.AuthConfig{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=garbage"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocket_TokenSession(t *testing.T) {
	fr := newFakeRouter()
	srv, manager := newServer(t, fr, config.AuthConfig{})
	token, _, err := manager.GenerateToken("u1")
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)

	connected := readFrame(t, conn)
	assert.Equal(t, domain.MsgTypeConnected, connected["type"])
	assert.Equal(t, "u1", connected["userId"])
	connID, _ := connected["connId"].(string)
	require.NotEmpty(t, connID)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "sendMessage", "targetUserId": "u2", "text": "hi", "tempId": "t1"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, domain.MsgTypePong, readFrame(t, conn)["type"])

	calls := fr.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, call{Op: "sendMessage", ConnID: connID, Args: []any{"u2", "hi", "t1"}}, calls[1])

	require.NoError(t, conn.Close())
	select {
	case closed := <-fr.closed:
		assert.Equal(t, connID, closed)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not routed")
	}
}

func TestHandleWebSocket_InsecureUserID(t *testing.T) {
	fr := newFakeRouter()
	srv, _ := newServer(t, fr, config.AuthConfig{AllowInsecureUserID: true})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?userId=u7"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "u7", readFrame(t, conn)["userId"])
}

func TestDispatch(t *testing.T) {
	fr := newFakeRouter()
	h := NewWSHandler(nil, fr, nil, testWS, config.AuthConfig{})
	ctx := context.Background()

	cases := []struct {
		name  string
		frame string
		want  call
	}{
		{"join", `{"type":"joinChat","targetUserId":"u2"}`, call{Op: "joinChat", ConnID: "conn-1", Args: []any{"u2"}}},
		{"seen", `{"type":"markAsSeen","userId":"u1","targetUserId":"u2"}`, call{Op: "markAsSeen", ConnID: "conn-1", Args: []any{"u2"}}},
		{"typing", `{"type":"typing","targetUserId":"u2","isTyping":true}`, call{Op: "typing", ConnID: "conn-1", Args: []any{"u2", true}}},
		{"online", `{"type":"userOnline"}`, call{Op: "presence", ConnID: "conn-1", Args: []any{true}}},
		{"offline", `{"type":"userOffline","userId":"u1"}`, call{Op: "presence", ConnID: "conn-1", Args: []any{false}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(fr.snapshot())
			h.Dispatch(ctx, &captureConn{}, "u1", []byte(tc.frame))
			calls := fr.snapshot()
			require.Len(t, calls, before+1)
			assert.Equal(t, tc.want, calls[before])
		})
	}
}

func TestDispatch_ErrorFrames(t *testing.T) {
	fr := newFakeRouter()
	h := NewWSHandler(nil, fr, nil, testWS, config.AuthConfig{})
	ctx := context.Background()

	errCode := func(frame string) string {
		c := &captureConn{}
		h.Dispatch(ctx, c, "u1", []byte(frame))
		m, ok := c.last().(*domain.ErrorMessage)
		require.True(t, ok, "expected error frame for %s", frame)
		return m.Code
	}

	assert.Equal(t, domain.ErrCodeBadRequest, errCode(`not json`))
	assert.Equal(t, domain.ErrCodeBadRequest, errCode(`{"type":"dance"}`))
	assert.Equal(t, domain.ErrCodeBadRequest, errCode(`{"type":"sendMessage","text":5}`))
	assert.Equal(t, domain.ErrCodeValidation, errCode(`{"type":"sendMessage","userId":"u9","targetUserId":"u2","text":"hi"}`))
	assert.Empty(t, fr.snapshot(), "rejected frames never reach the router")

	fr.sendErr = chaterr.Validation("text must not be empty")
	assert.Equal(t, domain.ErrCodeValidation, errCode(`{"type":"sendMessage","targetUserId":"u2","text":""}`))
}

func TestDispatch_PingReplies(t *testing.T) {
	h := NewWSHandler(nil, newFakeRouter(), nil, testWS, config.AuthConfig{})
	c := &captureConn{}
	h.Dispatch(context.Background(), c, "u1", []byte(`{"type":"ping"}`))

	data, err := json.Marshal(c.last())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))
}
