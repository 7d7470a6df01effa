package mockfeed

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type hubClient struct {
	conn    *websocket.Conn
	project string
	send    chan []byte
}

func newClient(conn *websocket.Conn, project string) *hubClient {
	c := &hubClient{
		conn:    conn,
		project: project,
		send:    make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *hubClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *hubClient) close() {
	close(c.send)
}

// hub fans messages out to the clients of each project.
type hub struct {
	logger *zap.Logger

	mu       sync.RWMutex
	projects map[string]map[*hubClient]bool
}

func newHub(logger *zap.Logger) *hub {
	return &hub{logger: logger, projects: make(map[string]map[*hubClient]bool)}
}

func (h *hub) add(conn *websocket.Conn, project string) *hubClient {
	c := newClient(conn, project)

	h.mu.Lock()
	set, ok := h.projects[project]
	if !ok {
		set = make(map[*hubClient]bool)
		h.projects[project] = set
	}
	set[c] = true
	total := len(set)
	h.mu.Unlock()

	h.logger.Info("client connected", zap.String("project", project), zap.Int("total", total))
	return c
}

func (h *hub) remove(c *hubClient) {
	h.mu.Lock()
	set := h.projects[c.project]
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	c.close()
	remaining := len(set)
	if remaining == 0 {
		delete(h.projects, c.project)
	}
	h.mu.Unlock()

	h.logger.Info("client disconnected", zap.String("project", c.project), zap.Int("remaining", remaining))
}

// sendTo queues data for one client, dropping the client if it cannot
// keep up.
func (h *hub) sendTo(c *hubClient, data []byte) {
	h.mu.RLock()
	_, ok := h.projects[c.project][c]
	if ok {
		select {
		case c.send <- data:
			h.mu.RUnlock()
			return
		default:
		}
	}
	h.mu.RUnlock()

	if ok {
		h.logger.Warn("client too slow, disconnecting", zap.String("project", c.project))
		h.remove(c)
	}
}

func (h *hub) broadcast(project string, data []byte) {
	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.projects[project]))
	for c := range h.projects[project] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.sendTo(c, data)
	}
}

func (h *hub) count(project string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.projects[project])
}

// closeAll disconnects every client.
func (h *hub) closeAll() {
	h.mu.Lock()
	for _, set := range h.projects {
		for c := range set {
			c.close()
		}
	}
	h.projects = make(map[string]map[*hubClient]bool)
	h.mu.Unlock()
}
