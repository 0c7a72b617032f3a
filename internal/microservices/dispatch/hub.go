package dispatch

import (
	"sync"

	"github.com/gorilla/websocket"

	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/logger"
)

// Hub tracks every live console connection and which branch audience each one
// has joined. A connection exists outside any audience until its join request
// is acknowledged.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{} // branchID -> members
	lg    *logger.Logger
}

type client struct {
	conn     *websocket.Conn
	deviceID string
	branchID string // token-scoped branch, fixed for the connection lifetime

	writeMu sync.Mutex // gorilla allows one concurrent writer
	joined  string     // audience currently joined, "" when none
}

func NewHub(lg *logger.Logger) *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{}), lg: lg}
}

func (h *Hub) join(c *client, branchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.joined != "" {
		h.removeLocked(c)
	}
	if h.rooms[branchID] == nil {
		h.rooms[branchID] = make(map[*client]struct{})
	}
	h.rooms[branchID][c] = struct{}{}
	c.joined = branchID
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if c.joined == "" {
		return
	}
	delete(h.rooms[c.joined], c)
	if len(h.rooms[c.joined]) == 0 {
		delete(h.rooms, c.joined)
	}
	c.joined = ""
}

// Broadcast sends the envelope to every member of the branch audience. Members
// whose socket write fails are dropped from the room; their read loop will
// observe the closed conn and finish cleanup.
func (h *Hub) Broadcast(branchID string, env domain.Envelope) {
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[branchID]))
	for c := range h.rooms[branchID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.send(env); err != nil {
			h.lg.Warn("broadcast_write_failed", map[string]any{"device_id": c.deviceID, "branch_id": branchID})
			h.leave(c)
			_ = c.conn.Close()
		}
	}
}

func (h *Hub) AudienceSize(branchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[branchID])
}

func (c *client) send(env domain.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}
