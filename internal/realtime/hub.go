package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Metrics is the subset of observability.Prom the hub reports to.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	RoomJoined()
	RoomLeft()
	EventsDelivered(n int)
	EventsDropped(n int)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()   {}
func (nopMetrics) ConnectionClosed()   {}
func (nopMetrics) RoomJoined()         {}
func (nopMetrics) RoomLeft()           {}
func (nopMetrics) EventsDelivered(int) {}
func (nopMetrics) EventsDropped(int)   {}

// Hub is the registry of live connections and the rooms they joined.
// Every mutation and every broadcast runs under mu, so membership never
// changes while a broadcast is iterating a room.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]map[string]struct{}
	rooms   map[string]map[*Client]struct{}

	metrics Metrics
	log     *slog.Logger
}

func NewHub(log *slog.Logger, metrics Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Hub{
		clients: make(map[*Client]map[string]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		metrics: metrics,
		log:     log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		h.mu.Unlock()
		return
	}
	h.clients[c] = make(map[string]struct{})
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.log.Info("realtime client connected", "conn_id", c.id, "user_id", c.userID, "total_clients", total)
}

// Join adds c to the device's room. Joining twice is a no-op. It returns
// false if c is not registered.
func (h *Hub) Join(c *Client, deviceID string) (string, bool) {
	room := RoomName(deviceID)

	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return room, false
	}

	if _, already := joined[room]; already {
		return room, true
	}

	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	joined[room] = struct{}{}

	h.metrics.RoomJoined()
	h.log.Debug("realtime room joined", "conn_id", c.id, "room", room)

	return room, true
}

// Leave removes c from the device's room; no-op if it was not a member.
func (h *Hub) Leave(c *Client, deviceID string) string {
	room := RoomName(deviceID)

	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return room
	}
	if _, member := joined[room]; !member {
		return room
	}

	delete(joined, room)
	h.removeFromRoomLocked(room, c)

	h.metrics.RoomLeft()
	h.log.Debug("realtime room left", "conn_id", c.id, "room", room)

	return room
}

// Disconnect drops c from every room and closes its send buffer. Safe to
// call more than once.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	joined, ok := h.clients[c]
	if !ok {
		h.mu.Unlock()
		return
	}

	for room := range joined {
		h.removeFromRoomLocked(room, c)
	}
	delete(h.clients, c)
	close(c.send)
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectionClosed()
	h.log.Info("realtime client disconnected", "conn_id", c.id, "rooms", len(joined), "total_clients", total)
}

// Broadcast hands msg to every member of room without blocking. A member
// whose buffer is full misses the event. Returns the number of members the
// event was handed to.
func (h *Hub) Broadcast(room string, msg Message) int {
	if msg.Room == "" {
		msg.Room = room
	}

	h.mu.Lock()
	delivered, dropped := 0, 0
	for c := range h.rooms[room] {
		select {
		case c.send <- msg:
			delivered++
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	h.metrics.EventsDelivered(delivered)
	h.metrics.EventsDropped(dropped)

	if dropped > 0 {
		h.log.Warn("realtime events dropped for slow clients", "room", room, "dropped", dropped)
	}

	return delivered
}

// PublishDevice broadcasts a device event to room device-{deviceID}.
func (h *Hub) PublishDevice(deviceID, eventType string, data any) int {
	if eventType == "" {
		eventType = MessageTypeDeviceUpdate
	}

	return h.Broadcast(RoomName(deviceID), Message{
		Type:     eventType,
		DeviceID: deviceID,
		Data:     data,
	})
}

// Publish validates deviceID and broadcasts in-process. It has the same
// shape as RedisRelay.Publish so either can back the publish endpoint.
func (h *Hub) Publish(_ context.Context, deviceID, eventType string, data any) error {
	if err := validateDeviceID(deviceID); err != nil {
		return err
	}
	h.PublishDevice(deviceID, eventType, data)
	return nil
}

// send queues a direct reply to one client; dropped if c is gone or full.
func (h *Hub) send(c *Client, msg Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Rooms returns the rooms c belongs to, sorted.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.Lock()
	joined := h.clients[c]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	h.mu.Unlock()

	sort.Strings(out)
	return out
}

// Close disconnects every client, used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Disconnect(c)
	}
}

func (h *Hub) removeFromRoomLocked(room string, c *Client) {
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}
