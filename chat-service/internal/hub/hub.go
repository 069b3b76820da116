package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/weiawesome/wes-io-dm/chat-service/internal/config"
	"github.com/weiawesome/wes-io-dm/pkg/log"
)

// Hub owns the local connections and the room membership of each. A single
// Run loop delivers broadcasts, so frames reach every client in the order
// they were enqueued.
type Hub struct {
	clients   map[string]*Client            // clientID -> client
	rooms     map[string]map[string]*Client // roomID -> clientID -> client
	broadcast chan *outbound
	mu        sync.RWMutex
	config    config.WebSocketConfig
}

// outbound targets one room, or every client when RoomID is empty.
type outbound struct {
	RoomID  string
	Message []byte
	Exclude string // Client ID to exclude
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		broadcast: make(chan *outbound, 256),
		config:    cfg,
	}
}

// Run delivers queued broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if msg.RoomID != "" {
		targets = h.rooms[msg.RoomID]
	}
	for clientID, client := range targets {
		if clientID == msg.Exclude {
			continue
		}
		select {
		case client.Send <- msg.Message:
		default:
			go h.Unregister(client)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	l := log.L()
	l.Debug().Str(log.FieldConnID, client.ID).Str(log.FieldUserID, client.UserID).Msg("client registered")
}

// Unregister removes the client from every room and closes its send
// queue. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		for roomID, members := range h.rooms {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.mu.Unlock()
	l := log.L()
	l.Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")
}

// Join adds a registered client to a room. It reports false for an unknown
// client.
func (h *Hub) Join(clientID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][clientID] = client
	return true
}

func (h *Hub) Leave(clientID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// BroadcastToRoom queues raw bytes for every client in a room.
func (h *Hub) BroadcastToRoom(roomID string, data []byte, exclude string) {
	if roomID == "" {
		return
	}
	h.broadcast <- &outbound{RoomID: roomID, Message: data, Exclude: exclude}
}

// BroadcastToAll queues raw bytes for every local client.
func (h *Hub) BroadcastToAll(data []byte, exclude string) {
	h.broadcast <- &outbound{Message: data, Exclude: exclude}
}

// BroadcastJSON marshals message and queues it for a room.
func (h *Hub) BroadcastJSON(roomID string, message any, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.BroadcastToRoom(roomID, data, exclude)
	return nil
}

func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
