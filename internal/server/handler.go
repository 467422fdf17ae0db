package server

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/climate-agent/internal/models"
)

// ErrNoAgents is returned by Relay when no connected agent matches
var ErrNoAgents = errors.New("no connected agent")

// Hub manages websocket connections from agents. It records each agent's
// autonomous decisions and relays operator commands back down.
type Hub struct {
	upgrader       websocket.Upgrader
	authToken      string
	logger         zerolog.Logger
	agents         map[string]*agentConn // keyed by connection id
	allowedOrigins []string
	mutex          sync.RWMutex
	now            func() time.Time
}

// agentConn is one live agent connection
type agentConn struct {
	id          string
	agentID     string
	version     string
	remoteAddr  string
	connectedAt time.Time
	lastSeen    time.Time
	state       *models.ActuatorState
	stateAt     time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// AgentStatus is the operator view of one connected agent
type AgentStatus struct {
	ConnectionID   string                `json:"connection_id"`
	AgentID        string                `json:"agent_id"`
	Version        string                `json:"version,omitempty"`
	RemoteAddr     string                `json:"remote_addr"`
	ConnectedAt    time.Time             `json:"connected_at"`
	LastSeen       time.Time             `json:"last_seen"`
	State          *models.ActuatorState `json:"state,omitempty"`
	StateUpdatedAt time.Time             `json:"state_updated_at,omitempty"`
}

// NewHub creates a new websocket hub. An empty authToken disables auth.
func NewHub(authToken string, logger zerolog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		authToken:      authToken,
		logger:         logger,
		agents:         make(map[string]*agentConn),
		allowedOrigins: allowedOrigins,
		now:            time.Now,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the request's Origin against the configured allowlist.
// A missing Origin header is a non-browser client and is accepted.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected websocket connection: origin not in allowlist")
	return false
}

// ServeHTTP upgrades an agent connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	h.handleConnection(conn)
}

// RequireToken guards operator endpoints with the same bearer token as agents
func (h *Hub) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.validateToken(r.Header.Get("Authorization")) {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validateToken checks a "Bearer <token>" header
func (h *Hub) validateToken(authHeader string) bool {
	if h.authToken == "" {
		return true
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == h.authToken
}

// handleConnection manages a single agent connection until it drops
func (h *Hub) handleConnection(conn *websocket.Conn) {
	now := h.now()
	ac := &agentConn{
		id:          uuid.NewString(),
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: now,
		lastSeen:    now,
		conn:        conn,
	}

	h.mutex.Lock()
	h.agents[ac.id] = ac
	h.mutex.Unlock()

	defer conn.Close()
	defer h.removeAgent(ac.id)

	h.logger.Info().Str("conn_id", ac.id).Str("remote", ac.remoteAddr).Msg("Agent connected")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("conn_id", ac.id).Msg("Websocket error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleMessage(ac, &msg)
	}
}

// handleMessage processes a single message from an agent
func (h *Hub) handleMessage(ac *agentConn, msg *models.Message) {
	h.logger.Debug().Str("conn_id", ac.id).Str("type", string(msg.Type)).Msg("Received message")
	h.touch(ac)

	switch msg.Type {
	case models.MessageTypeHeartbeat:
		h.handleHeartbeat(ac, msg)
	case models.MessageTypeControl:
		h.handleControl(ac, msg)
	case models.MessageTypeAck:
		return
	case models.MessageTypeError:
		var e models.ErrorMessage
		if err := msg.UnmarshalPayload(&e); err == nil {
			h.logger.Warn().Str("conn_id", ac.id).Str("code", e.Code).Msg(e.Message)
		}
	default:
		h.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown message type")
	}

	h.sendAck(ac)
}

// handleHeartbeat binds the connection to the agent's reported identity
func (h *Hub) handleHeartbeat(ac *agentConn, msg *models.Message) {
	var heartbeat models.HeartbeatMessage
	if err := msg.UnmarshalPayload(&heartbeat); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal heartbeat")
		return
	}

	h.mutex.Lock()
	first := ac.agentID == "" && heartbeat.AgentID != ""
	if heartbeat.AgentID != "" {
		ac.agentID = heartbeat.AgentID
	}
	if heartbeat.Version != "" {
		ac.version = heartbeat.Version
	}
	h.mutex.Unlock()

	if first {
		h.logger.Info().Str("conn_id", ac.id).Str("agent_id", heartbeat.AgentID).Str("version", heartbeat.Version).Msg("Agent registered")
	}
	h.logger.Debug().Str("agent_id", heartbeat.AgentID).Int64("uptime", heartbeat.Uptime).Msg("Heartbeat received")
}

// handleControl records an autonomous decision announced by the agent
func (h *Hub) handleControl(ac *agentConn, msg *models.Message) {
	if !msg.IsAutoControl() {
		h.logger.Warn().Str("conn_id", ac.id).Msg("Ignoring non-autonomous control message from agent")
		return
	}
	var auto models.AutoControlMessage
	if err := msg.UnmarshalPayload(&auto); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal control message")
		return
	}

	h.mutex.Lock()
	state := auto.State
	ac.state = &state
	ac.stateAt = h.now()
	agentID := ac.agentID
	h.mutex.Unlock()

	h.logger.Debug().Str("agent_id", agentID).Str("state", state.String()).Msg("Autonomous state recorded")
}

// Relay sends an operator command to every connection of agentID, or to all
// agents when agentID is empty. It returns how many connections took it.
func (h *Hub) Relay(agentID string, cmd models.ControlMessage) (int, error) {
	msg, err := models.NewMessage(models.MessageTypeControl, cmd)
	if err != nil {
		return 0, err
	}

	h.mutex.RLock()
	targets := make([]*agentConn, 0, len(h.agents))
	for _, ac := range h.agents {
		if agentID == "" || ac.agentID == agentID {
			targets = append(targets, ac)
		}
	}
	h.mutex.RUnlock()

	if len(targets) == 0 {
		return 0, ErrNoAgents
	}

	var errs []error
	delivered := 0
	for _, ac := range targets {
		if err := h.write(ac, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}

	h.logger.Info().
		Str("agent_id", agentID).
		Bool("manual", cmd.ManualControl).
		Int("delivered", delivered).
		Msg("Operator command relayed")

	return delivered, errors.Join(errs...)
}

// Agents returns every connected agent, sorted by agent id
func (h *Hub) Agents() []AgentStatus {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	out := make([]AgentStatus, 0, len(h.agents))
	for _, ac := range h.agents {
		status := AgentStatus{
			ConnectionID:   ac.id,
			AgentID:        ac.agentID,
			Version:        ac.version,
			RemoteAddr:     ac.remoteAddr,
			ConnectedAt:    ac.connectedAt,
			LastSeen:       ac.lastSeen,
			StateUpdatedAt: ac.stateAt,
		}
		if ac.state != nil {
			s := *ac.state
			status.State = &s
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentID != out[j].AgentID {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

// sendAck sends an acknowledgment message
func (h *Hub) sendAck(ac *agentConn) {
	msg, err := models.NewMessage(models.MessageTypeAck, models.AckMessage{Status: "ok"})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create ack message")
		return
	}
	if err := h.write(ac, msg); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send ack")
	}
}

func (h *Hub) write(ac *agentConn, msg *models.Message) error {
	ac.writeMu.Lock()
	defer ac.writeMu.Unlock()
	ac.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ac.conn.WriteJSON(msg)
}

func (h *Hub) touch(ac *agentConn) {
	h.mutex.Lock()
	ac.lastSeen = h.now()
	h.mutex.Unlock()
}

// removeAgent forgets a dropped connection
func (h *Hub) removeAgent(connID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	agentID := connID
	if ac, ok := h.agents[connID]; ok && ac.agentID != "" {
		agentID = ac.agentID
	}
	delete(h.agents, connID)
	h.logger.Info().Str("agent_id", agentID).Msg("Agent disconnected")
}

// Constants for websocket timeouts
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)
