package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
)

// ConnectionManager tracks browser websockets, grouped by game id. Every
// connection owns one session.
type ConnectionManager struct {
	gameConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection is one browser attached to one session.
type Connection struct {
	ID      string
	GameID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager
	Session *session.Session

	ConnectedAt time.Time

	mu        sync.Mutex
	lastPing  time.Time
	closed    bool
	cleanups  []func()
	closeOnce sync.Once
}

// ConnectionConfig holds websocket settings.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		gameConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades the request and binds the socket to sess. The
// session is closed when the connection goes away.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sess *session.Session) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:          uuid.NewString(),
		GameID:      sess.GameID(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		Session:     sess,
		ConnectedAt: now,
		lastPing:    now,
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("game_id", connection.GameID).
		Str("participant_id", sess.Participant().ID).
		Str("role", string(sess.Participant().Type)).
		Msg("websocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.gameConnections[conn.GameID] == nil {
		cm.gameConnections[conn.GameID] = make(map[*Connection]bool)
	}
	cm.gameConnections[conn.GameID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("game_id", conn.GameID).
		Int("total_connections", len(cm.gameConnections[conn.GameID])).
		Msg("connection registered")
}

// unregisterConnection removes conn and reports whether it was still
// registered.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.gameConnections[conn.GameID]
	if !exists {
		return false
	}
	if _, exists := connections[conn]; !exists {
		return false
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.gameConnections, conn.GameID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("game_id", conn.GameID).
		Msg("connection unregistered")
	return true
}

// Push queues frame for conn. A connection whose buffer is full is closed.
func (cm *ConnectionManager) Push(conn *Connection, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame")
		return
	}
	if !conn.enqueue(data) {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("game_id", conn.GameID).
			Msg("connection send buffer full, closing connection")
		conn.close()
	}
}

// BroadcastToGame pushes frame to every connection of a game.
func (cm *ConnectionManager) BroadcastToGame(gameID string, frame any) {
	for _, conn := range cm.connections(gameID) {
		cm.Push(conn, frame)
	}
}

func (cm *ConnectionManager) connections(gameID string) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var out []*Connection
	for conn := range cm.gameConnections[gameID] {
		out = append(out, conn)
	}
	return out
}

func (cm *ConnectionManager) all() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var out []*Connection
	for _, conns := range cm.gameConnections {
		for conn := range conns {
			out = append(out, conn)
		}
	}
	return out
}

// CloseAll sends a shutdown frame to every connection and closes it.
func (cm *ConnectionManager) CloseAll(reason string) {
	for _, conn := range cm.all() {
		cm.Push(conn, ShutdownFrame{Type: FrameShutdown, Reason: reason})
		conn.close()
	}
}

// ConnectionStats is the payload of /ws/stats.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveGames      int            `json:"active_games"`
	GameConnections  map[string]int `json:"game_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{GameConnections: make(map[string]int)}
	for gameID, connections := range cm.gameConnections {
		stats.TotalConnections += len(connections)
		stats.GameConnections[gameID] = len(connections)
	}
	stats.ActiveGames = len(cm.gameConnections)
	return stats
}

// OnClose registers fn to run once when the connection closes. On a closed
// connection fn runs immediately.
func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	if !c.closed {
		c.cleanups = append(c.cleanups, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// close unregisters the connection, stops the pumps and closes the
// session. Safe to call from any goroutine, any number of times.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.Manager.unregisterConnection(c)

		c.mu.Lock()
		c.closed = true
		close(c.Send)
		cleanups := c.cleanups
		c.cleanups = nil
		c.mu.Unlock()

		for _, fn := range cleanups {
			fn()
		}
		go func() {
			if err := c.Session.Close(context.Background()); err != nil {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to close session")
			}
		}()
	})
}

func (c *Connection) LastPing() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPing
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}

func (c *Connection) writePump() {
	config := c.Manager.config
	ticker := time.NewTicker(config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	config := c.Manager.config
	defer c.close()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))
	}
}

// handleClientMessage runs a command on the reader goroutine so commands
// from one browser apply in order.
func (c *Connection) handleClientMessage(message []byte) {
	cmd, err := DecodeCommand(message)
	if err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("rejected client message")
		c.Manager.Push(c, ResultFrame{Type: FrameResult, Error: err.Error()})
		return
	}

	res := Execute(context.Background(), c.Session, cmd)
	if res.Error != nil {
		log.Info().
			Err(res.Error).
			Str("connection_id", c.ID).
			Str("game_id", c.GameID).
			Str("action", cmd.Action).
			Msg("command failed")
	}
	c.Manager.Push(c, resultFrame(cmd, res))
}
