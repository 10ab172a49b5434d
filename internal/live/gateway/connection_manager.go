package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns every live WebSocket connection. Room membership
// lives in the sync service's registry, not here; the manager only maps
// connection IDs to sockets and runs the read/write pumps.
type ConnectionManager struct {
	conns map[string]*Connection
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	service *Service
}

// Connection represents one WebSocket client link. The ID is assigned at
// upgrade time and never reused.
type Connection struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a connection manager together with the sync
// service that handles its traffic.
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	cm := &ConnectionManager{
		conns: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
	cm.service = NewService(cm, clock)
	return cm
}

// Service returns the sync service handling this manager's connections.
func (cm *ConnectionManager) Service() *Service {
	return cm.service
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// starts its pumps. The user ID is an opaque label supplied upstream.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.conns[conn.ID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.conns)).
		Msg("connection registered")
}

// unregisterConnection removes a connection and runs the disconnect
// reconciler exactly once per connection, regardless of which pump tears
// down first.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	existing, present := cm.conns[conn.ID]
	if present && existing == conn {
		delete(cm.conns, conn.ID)
		close(conn.Send)
	} else {
		present = false
	}
	cm.mu.Unlock()

	if !present {
		return
	}

	cm.service.Disconnect(conn.ID)

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Msg("connection unregistered")
}

// Send delivers a payload to one connection. Delivery is best-effort: a
// full send buffer means the client is slow or dead, so the socket is
// closed and the pumps reconcile its rooms. One stuck client never blocks
// the rest of a room.
//
// The read lock is held across the channel send. unregisterConnection
// closes the channel under the write lock, so a connection found here
// cannot have its channel closed until the send completes, and a removed
// connection is no longer found at all.
func (cm *ConnectionManager) Send(connID string, payload []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	conn, ok := cm.conns[connID]
	if !ok {
		return false
	}

	select {
	case conn.Send <- payload:
		return true
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		conn.Conn.Close()
		return false
	}
}

// Stats describes the current connection and room population.
type Stats struct {
	TotalConnections int `json:"total_connections"`
	ActiveSessions   int `json:"active_sessions"`
}

// GetStats returns statistics about active connections.
func (cm *ConnectionManager) GetStats() Stats {
	cm.mu.RLock()
	total := len(cm.conns)
	cm.mu.RUnlock()

	return Stats{
		TotalConnections: total,
		ActiveSessions:   cm.service.rooms.ActiveRooms(),
	}
}

// CloseAll closes every live connection; the pumps reconcile membership as
// they tear down. Used on shutdown.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.conns))
	for _, conn := range cm.conns {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		conn.Conn.Close()
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.Manager.service.HandleCommand(c.ID, c.UserID, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
