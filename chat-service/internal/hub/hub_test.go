package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-dm/chat-service/internal/config"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/domain"
)

func runHub(t *testing.T, cfg config.WebSocketConfig) *Hub {
	t.Helper()
	h := NewHub(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func register(h *Hub, id, userID string) *Client {
	c := NewClient(id, userID, h, nil, h.config)
	h.Register(c)
	return c
}

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case data := <-c.Send:
		return string(data)
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return ""
	}
}

func assertIdle(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("client %s got unexpected frame %s", c.ID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoin_UnknownClient(t *testing.T) {
	h := NewHub(config.WebSocketConfig{})
	assert.False(t, h.Join("ghost", "room"))
	assert.Zero(t, h.RoomClientCount("room"))
}

func TestBroadcastToRoom_RespectsMembershipAndExclude(t *testing.T) {
	h := runHub(t, config.WebSocketConfig{})
	a := register(h, "a", "u1")
	b := register(h, "b", "u2")
	c := register(h, "c", "u3")

	require.True(t, h.Join("a", "room-1"))
	require.True(t, h.Join("b", "room-1"))
	assert.Equal(t, 2, h.RoomClientCount("room-1"))

	h.BroadcastToRoom("room-1", []byte(`{"n":1}`), "a")
	assert.Equal(t, `{"n":1}`, receive(t, b))
	assertIdle(t, a)
	assertIdle(t, c)
}

func TestBroadcast_PreservesOrder(t *testing.T) {
	h := runHub(t, config.WebSocketConfig{})
	a := register(h, "a", "u1")
	require.True(t, h.Join("a", "room-1"))

	for _, frame := range []string{"1", "2", "3"} {
		h.BroadcastToRoom("room-1", []byte(frame), "")
	}
	assert.Equal(t, "1", receive(t, a))
	assert.Equal(t, "2", receive(t, a))
	assert.Equal(t, "3", receive(t, a))
}

func TestBroadcastToAll(t *testing.T) {
	h := runHub(t, config.WebSocketConfig{})
	a := register(h, "a", "u1")
	b := register(h, "b", "u2")

	h.BroadcastToAll([]byte("x"), "b")
	assert.Equal(t, "x", receive(t, a))
	assertIdle(t, b)
}

func TestBroadcastJSON(t *testing.T) {
	h := runHub(t, config.WebSocketConfig{})
	a := register(h, "a", "u1")
	require.True(t, h.Join("a", "room-1"))

	require.NoError(t, h.BroadcastJSON("room-1", domain.PongMessage{Type: domain.MsgTypePong}, ""))
	assert.JSONEq(t, `{"type":"pong"}`, receive(t, a))
}

func TestUnregister_IsIdempotentAndLeavesRooms(t *testing.T) {
	h := NewHub(config.WebSocketConfig{})
	a := register(h, "a", "u1")
	require.True(t, h.Join("a", "room-1"))

	h.Unregister(a)
	h.Unregister(a)

	assert.Zero(t, h.ClientCount())
	assert.Zero(t, h.RoomClientCount("room-1"))
	_, open := <-a.Send
	assert.False(t, open)

	// Sending to an unregistered client is a no-op, not a panic.
	assert.NoError(t, a.SendMessage(domain.PongMessage{Type: domain.MsgTypePong}))
}

func TestSendMessage_FullQueueDropsFrame(t *testing.T) {
	h := NewHub(config.WebSocketConfig{SendBufferSize: 1})
	a := register(h, "a", "u1")

	require.NoError(t, a.SendMessage(domain.PongMessage{Type: domain.MsgTypePong}))
	require.NoError(t, a.SendMessage(domain.PongMessage{Type: "second"}))

	assert.JSONEq(t, `{"type":"pong"}`, string(<-a.Send))
	select {
	case data := <-a.Send:
		t.Fatalf("unexpected frame %s", data)
	default:
	}
	assert.Equal(t, "a", a.ConnID())
}

func TestSlowClientIsUnregistered(t *testing.T) {
	h := runHub(t, config.WebSocketConfig{SendBufferSize: 1})
	register(h, "a", "u1")
	require.True(t, h.Join("a", "room-1"))

	h.BroadcastToRoom("room-1", []byte("1"), "")
	h.BroadcastToRoom("room-1", []byte("2"), "")

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}
