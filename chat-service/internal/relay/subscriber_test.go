package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-dm/pkg/pubsub"
)

type delivery struct {
	roomID string
	data   string
}

type recordingFanout struct {
	mu     sync.Mutex
	rooms  []delivery
	global []string
}

func (f *recordingFanout) BroadcastToRoom(roomID string, data []byte, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, delivery{roomID: roomID, data: string(data)})
}

func (f *recordingFanout) BroadcastToAll(data []byte, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.global = append(f.global, string(data))
}

func (f *recordingFanout) snapshot() ([]delivery, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.rooms...), append([]string(nil), f.global...)
}

func event(t *testing.T, typ, roomID, origin, frame string) *pubsub.Event {
	t.Helper()
	ev, err := pubsub.NewEvent(typ, roomID, json.RawMessage(frame))
	require.NoError(t, err)
	ev.Origin = origin
	return ev
}

func TestHandle(t *testing.T) {
	fanout := &recordingFanout{}
	s := NewSubscriber(pubsub.NewMemoryPubSub(8), fanout, "gw-1")

	s.handle(event(t, pubsub.EventRoomBroadcast, "room-a", "gw-2", `{"type":"messageReceived"}`))
	s.handle(event(t, pubsub.EventRoomBroadcast, "room-a", "gw-1", `{"type":"echo"}`))
	s.handle(event(t, pubsub.EventRoomBroadcast, "", "gw-2", `{"type":"noroom"}`))
	s.handle(event(t, pubsub.EventPresenceBroadcast, "", "gw-3", `{"type":"userStatusChanged"}`))
	s.handle(event(t, "unknown", "room-a", "gw-2", `{}`))
	s.handle(nil)

	rooms, global := fanout.snapshot()
	require.Len(t, rooms, 1)
	assert.Equal(t, "room-a", rooms[0].roomID)
	assert.JSONEq(t, `{"type":"messageReceived"}`, rooms[0].data)
	require.Len(t, global, 1)
	assert.JSONEq(t, `{"type":"userStatusChanged"}`, global[0])
}

func TestRun_DeliversRemoteEvents(t *testing.T) {
	bus := pubsub.NewMemoryPubSub(8)
	fanout := &recordingFanout{}
	s := NewSubscriber(bus, fanout, "gw-1")

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	publish := func() {
		_ = bus.Publish(context.Background(), pubsub.RoomToGatewayChannel("room-b"),
			event(t, pubsub.EventRoomBroadcast, "room-b", "gw-2", `{"type":"typingStatus"}`))
	}
	// The subscription is established asynchronously.
	require.Eventually(t, func() bool {
		publish()
		rooms, _ := fanout.snapshot()
		return len(rooms) > 0
	}, time.Second, 10*time.Millisecond)

	rooms, _ := fanout.snapshot()
	assert.Equal(t, "room-b", rooms[0].roomID)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop")
	}
}
