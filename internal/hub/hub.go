package hub

import "sync"

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	UserID string
	Writer Writer
}

// Fanout delivers a frame to every connection of a user.
type Fanout interface {
	SendToUser(userID string, message []byte)
}

// Hub tracks the websocket connections of this process. A user may be
// connected from several clients at once.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

// Register reports whether this is the user's first live connection.
func (h *Hub) Register(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.UserID]
	first := len(set) == 0
	if set == nil {
		set = make(map[*Connection]struct{})
		h.connections[conn.UserID] = set
	}
	set[conn] = struct{}{}
	return first
}

// Unregister reports whether the user has no connections left.
func (h *Hub) Unregister(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.UserID]
	if set == nil {
		return false
	}
	if _, ok := set[conn]; !ok {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.UserID)
		return true
	}
	return false
}

func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID]) > 0
}

func (h *Hub) SendToUser(userID string, message []byte) {
	h.mu.RLock()
	set := h.connections[userID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}

// SendToUsers delivers once per distinct user.
func SendToUsers(f Fanout, userIDs []string, message []byte) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		f.SendToUser(id, message)
	}
}
