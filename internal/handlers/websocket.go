package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chess-arena/internal/auth"
	"chess-arena/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var (
	errClientClosed = errors.New("client connection closed")
	errSendOverflow = errors.New("client send buffer full")
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and, when a list is configured, browsers from listed origins only.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), u.Scheme+"://"+u.Host) {
				return true
			}
		}
		return false
	}
}

// Hub indexes identified clients by player id so match notifications can
// reach a player outside any room.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register makes c the delivery target for its player id
func (h *Hub) Register(c *Client) {
	id, ok := c.Identity()
	if !ok {
		return
	}
	h.mu.Lock()
	h.clients[id.PlayerID] = c
	h.mu.Unlock()
}

// Unregister drops c, leaving a newer client for the same player in place
func (h *Hub) Unregister(c *Client) {
	id, ok := c.Identity()
	if !ok {
		return
	}
	h.mu.Lock()
	if h.clients[id.PlayerID] == c {
		delete(h.clients, id.PlayerID)
	}
	h.mu.Unlock()
}

// SendTo delivers msg to playerID's client
func (h *Hub) SendTo(playerID string, msg *protocol.Message) error {
	h.mu.RLock()
	c := h.clients[playerID]
	h.mu.RUnlock()
	if c == nil {
		return errClientClosed
	}
	return c.Send(msg)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one websocket connection. It implements room.Conn.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger

	mu       sync.RWMutex
	identity *auth.Identity
}

func newClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	sessionID := uuid.NewString()
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		logger:    logger.With(zap.String("session_id", sessionID)),
	}
}

// Send queues msg without blocking. A full buffer means the peer stopped
// reading, so the connection is closed.
func (c *Client) Send(msg *protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.close()
		return errSendOverflow
	}
}

func (c *Client) Identity() (auth.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return auth.Identity{}, false
	}
	return *c.identity, true
}

func (c *Client) setIdentity(id auth.Identity) {
	c.mu.Lock()
	c.identity = &id
	c.mu.Unlock()
	c.logger = c.logger.With(zap.String("player_id", id.PlayerID))
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump hands every frame to handle until the connection fails, then
// runs onClose exactly once.
func (c *Client) readPump(handle func([]byte), onPong func(), onClose func()) {
	defer func() {
		c.close()
		c.conn.Close()
		onClose()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		onPong()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Debug("ws_read_failed", zap.Error(err))
			}
			return
		}
		handle(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.close()
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
