// Package ws streams audit activity to connected monitor clients.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saker-ai/vrchat-bridge/internal/audit"
)

const writeTimeout = 5 * time.Second

// frame is one monitor message. Type is "audit" for dispatch records and
// "degraded" when the audit sink has started dropping entries.
type frame struct {
	Type    string       `json:"type"`
	Entry   *audit.Entry `json:"entry,omitempty"`
	Dropped int64        `json:"dropped_total,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	sendMu sync.Mutex
}

func (c *client) write(f frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(f)
}

// Monitor fans audit entries out to websocket subscribers. It implements
// audit.Notifier; Notify runs on the audit writer goroutine, so a slow
// client is disconnected rather than waited on.
type Monitor struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	dropped  func() int64

	mu           sync.Mutex
	clients      map[*client]struct{}
	lastReported int64
}

// NewMonitor builds a monitor. dropped reports the audit sink's loss
// counter and may be nil.
func NewMonitor(logger *zap.Logger, dropped func() int64) *Monitor {
	return &Monitor{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The bridge binds to loopback; origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		dropped: dropped,
		clients: make(map[*client]struct{}),
	}
}

// Handle upgrades the request and keeps the connection registered until the
// peer goes away. Inbound messages are read and discarded; the feed is
// one-way.
func (m *Monitor) Handle(c *gin.Context) {
	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("monitor upgrade failed", zap.Error(err))
		}
		return
	}

	cl := &client{conn: conn}
	m.mu.Lock()
	m.clients[cl] = struct{}{}
	count := len(m.clients)
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("monitor client connected",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Int("clients", count),
		)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	m.remove(cl)
}

// Notify broadcasts the entry, plus a degraded frame whenever the sink's
// drop counter has advanced since the last broadcast.
func (m *Monitor) Notify(entry audit.Entry) {
	m.broadcast(frame{Type: "audit", Entry: &entry})

	if m.dropped == nil {
		return
	}
	n := m.dropped()
	m.mu.Lock()
	advanced := n > m.lastReported
	m.lastReported = n
	m.mu.Unlock()
	if advanced {
		m.broadcast(frame{Type: "degraded", Dropped: n})
	}
}

func (m *Monitor) broadcast(f frame) {
	m.mu.Lock()
	targets := make([]*client, 0, len(m.clients))
	for cl := range m.clients {
		targets = append(targets, cl)
	}
	m.mu.Unlock()

	for _, cl := range targets {
		if err := cl.write(f); err != nil {
			m.remove(cl)
		}
	}
}

func (m *Monitor) remove(cl *client) {
	m.mu.Lock()
	_, present := m.clients[cl]
	delete(m.clients, cl)
	m.mu.Unlock()
	if present {
		_ = cl.conn.Close()
		if m.logger != nil {
			m.logger.Info("monitor client disconnected",
				zap.String("remote", cl.conn.RemoteAddr().String()),
			)
		}
	}
}

// Close disconnects all clients.
func (m *Monitor) Close() {
	m.mu.Lock()
	targets := make([]*client, 0, len(m.clients))
	for cl := range m.clients {
		targets = append(targets, cl)
	}
	m.clients = make(map[*client]struct{})
	m.mu.Unlock()

	for _, cl := range targets {
		_ = cl.conn.Close()
	}
}
