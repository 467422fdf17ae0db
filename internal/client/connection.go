// Package client is the websocket control channel between the agent and the
// control hub.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/afroash/climate-agent/internal/metrics"
	"github.com/afroash/climate-agent/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by BroadcastAuto while the channel is down.
// Broadcasts are never queued.
var ErrNotConnected = errors.New("control channel not connected")

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// OverrideSink receives operator commands and loss-of-channel notifications
type OverrideSink interface {
	Apply(msg models.ControlMessage)
	ClearOnDisconnect()
}

// Connection manages the WebSocket connection to the control hub
type Connection struct {
	URL                      string
	AuthToken                string
	conn                     *websocket.Conn
	state                    ConnectionState
	stateMutex               sync.RWMutex
	writeMutex               sync.Mutex
	logger                   zerolog.Logger
	metrics                  *metrics.Metrics
	agentInfo                *models.AgentInfo
	sink                     OverrideSink
	connectTimeout           time.Duration
	reconnectInterval        time.Duration
	maxReconnectInterval     time.Duration
	currentReconnectInterval time.Duration
	pingInterval             time.Duration
	pongTimeout              time.Duration
	lastPong                 time.Time
	lastPongMutex            sync.RWMutex
	closed                   chan struct{}
	closeOnce                sync.Once
}

// ConnectionConfig holds configuration for the connection
type ConnectionConfig struct {
	URL                  string
	AuthToken            string
	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
}

// NewConnection creates a new connection manager. Inbound control messages
// and disconnects are forwarded to sink.
func NewConnection(config ConnectionConfig, agentInfo *models.AgentInfo, sink OverrideSink, logger zerolog.Logger) *Connection {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = time.Second
	}
	if config.MaxReconnectInterval < config.ReconnectInterval {
		config.MaxReconnectInterval = config.ReconnectInterval
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = 10 * time.Second
	}
	return &Connection{
		URL:                      config.URL,
		AuthToken:                config.AuthToken,
		state:                    StateDisconnected,
		logger:                   logger,
		agentInfo:                agentInfo,
		sink:                     sink,
		connectTimeout:           config.ConnectTimeout,
		reconnectInterval:        config.ReconnectInterval,
		maxReconnectInterval:     config.MaxReconnectInterval,
		currentReconnectInterval: config.ReconnectInterval,
		pingInterval:             config.PingInterval,
		pongTimeout:              config.PongTimeout,
		closed:                   make(chan struct{}),
	}
}

// SetMetrics attaches instruments
func (c *Connection) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// setState safely updates the connection state
func (c *Connection) setState(state ConnectionState) {
	c.stateMutex.Lock()
	c.state = state
	c.stateMutex.Unlock()
	c.metrics.SetConnected(state == StateConnected)
	c.logger.Info().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// IsConnected returns true if currently connected
func (c *Connection) IsConnected() bool {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state == StateConnected
}

// Connect establishes a WebSocket connection to the hub
func (c *Connection) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info().Str("url", c.URL).Msg("Connecting to control hub...")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.connectTimeout,
	}

	header := http.Header{}
	if c.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	conn, resp, err := dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial failed: %w", err)
	}
	defer resp.Body.Close()

	c.stateMutex.Lock()
	c.conn = conn
	c.stateMutex.Unlock()
	c.setState(StateConnected)
	c.currentReconnectInterval = c.reconnectInterval // reset backoff
	c.updateLastPong()
	c.logger.Info().Msg("Connected to control hub")

	if err := c.sendHeartbeat(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send registration")
		c.disconnect()
		return err
	}

	return nil
}

// Run keeps the channel up with auto-reconnect until ctx is cancelled or
// Close is called.
func (c *Connection) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		default:
		}

		if err := c.Connect(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Connection failed")
			c.waitBeforeReconnect(ctx)
			continue
		}

		c.runMessageLoops(ctx)

		c.logger.Info().Msg("Connection lost, will reconnect")
		c.waitBeforeReconnect(ctx)
	}
}

// waitBeforeReconnect waits before next reconnection attempt with exponential backoff
func (c *Connection) waitBeforeReconnect(ctx context.Context) {
	c.logger.Info().Dur("delay", c.currentReconnectInterval).Msg("Waiting before reconnect")
	select {
	case <-time.After(c.currentReconnectInterval):
	case <-ctx.Done():
		return
	case <-c.closed:
		return
	}
	c.currentReconnectInterval *= 2
	if c.currentReconnectInterval > c.maxReconnectInterval {
		c.currentReconnectInterval = c.maxReconnectInterval
	}
}

// runMessageLoops runs read and heartbeat loops until either stops, then
// tears the connection down.
func (c *Connection) runMessageLoops(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn := c.currentConn()
	if conn == nil {
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		c.readLoop(ctx, conn)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		c.heartbeatLoop(ctx)
	}()

	// unblock the reader once either loop gives up
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case <-c.closed:
		}
		conn.Close()
	}()

	wg.Wait()
	c.disconnect()
}

func (c *Connection) currentConn() *websocket.Conn {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.conn
}

// disconnect closes the socket and drops any manual override
func (c *Connection) disconnect() {
	c.stateMutex.Lock()
	wasConnected := c.state == StateConnected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.stateMutex.Unlock()

	c.metrics.SetConnected(false)
	if c.sink != nil {
		c.sink.ClearOnDisconnect()
	}
	if wasConnected {
		c.logger.Info().Msg("Connection disconnected")
	}
}

// BroadcastAuto announces an autonomous decision as a "control" message
func (c *Connection) BroadcastAuto(state models.ActuatorState) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	msg, err := models.NewMessage(models.MessageTypeControl, models.NewAutoControlMessage(state))
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return c.sendMessage(msg)
}

// sendMessage sends a message over the WebSocket
func (c *Connection) sendMessage(msg *models.Message) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

// readLoop reads messages from the hub
func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) {
	c.logger.Debug().Msg("Starting read loop")
	defer c.logger.Debug().Msg("Read loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// handleMessage processes a message received from the hub
func (c *Connection) handleMessage(msg *models.Message) {
	c.logger.Debug().Str("type", string(msg.Type)).Msg("Received message")
	switch msg.Type {
	case models.MessageTypeAck:
		c.updateLastPong()
	case models.MessageTypeControl:
		c.updateLastPong()
		if msg.IsAutoControl() {
			return
		}
		var ctrl models.ControlMessage
		if err := msg.UnmarshalPayload(&ctrl); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed control message")
			return
		}
		if c.sink != nil {
			c.sink.Apply(ctrl)
		}
	case models.MessageTypeError:
		var errMsg models.ErrorMessage
		if err := msg.UnmarshalPayload(&errMsg); err == nil {
			c.logger.Warn().Str("code", errMsg.Code).Str("msg", errMsg.Message).Msg("Hub error")
		}
	default:
		c.logger.Debug().Str("type", string(msg.Type)).Msg("Unknown message type")
	}
}

// updateLastPong records that we heard from the hub
func (c *Connection) updateLastPong() {
	c.lastPongMutex.Lock()
	defer c.lastPongMutex.Unlock()
	c.lastPong = time.Now()
}

// timeSinceLastPong returns duration since last pong
func (c *Connection) timeSinceLastPong() time.Duration {
	c.lastPongMutex.RLock()
	defer c.lastPongMutex.RUnlock()
	return time.Since(c.lastPong)
}

// heartbeatLoop sends periodic heartbeats and monitors connection health
func (c *Connection) heartbeatLoop(ctx context.Context) {
	c.logger.Debug().Msg("Starting heartbeat loop")
	defer c.logger.Debug().Msg("Heartbeat loop stopped")

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.timeSinceLastPong() > c.pongTimeout+c.pingInterval {
				c.logger.Warn().Msg("No ack received, connection appears dead")
				return
			}
			if err := c.sendHeartbeat(); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to send heartbeat")
				return
			}
		}
	}
}

// sendHeartbeat sends a heartbeat message to the hub
func (c *Connection) sendHeartbeat() error {
	heartbeat := models.HeartbeatMessage{
		AgentID: c.agentInfo.ID,
		Version: c.agentInfo.Version,
		Uptime:  int64(c.agentInfo.Uptime().Seconds()),
	}
	msg, err := models.NewMessage(models.MessageTypeHeartbeat, heartbeat)
	if err != nil {
		return err
	}
	return c.sendMessage(msg)
}

// Close gracefully shuts down the connection and stops Run
func (c *Connection) Close() error {
	c.logger.Info().Msg("Closing connection")

	c.closeOnce.Do(func() { close(c.closed) })

	if conn := c.currentConn(); conn != nil {
		c.writeMutex.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMutex.Unlock()
	}
	c.disconnect()

	c.logger.Info().Msg("Connection closed")
	return nil
}
