package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/climate-agent/internal/metrics"
	"github.com/afroash/climate-agent/internal/models"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // ms
)

// OverrideSink receives operator commands and loss-of-channel notifications
type OverrideSink interface {
	Apply(msg models.ControlMessage)
	ClearOnDisconnect()
}

// Config holds broker settings for one agent
type Config struct {
	Broker            string
	TopicPrefix       string
	ClientID          string // generated from AgentID when empty
	Username          string
	Password          string
	AgentID           string
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
	MaxReconnect      time.Duration
}

// client is the subset of paho.Client the channel uses
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Channel is the MQTT control channel for one agent
type Channel struct {
	client         client
	topics         Topics
	sink           OverrideSink
	connectTimeout time.Duration
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	connected      atomic.Bool
	closed         chan struct{}
	closeOnce      sync.Once
}

// NewChannel creates a channel. Nothing is sent until Connect.
func NewChannel(cfg Config, sink OverrideSink, logger zerolog.Logger) *Channel {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = time.Minute
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("climate-agent-%s-%s", cfg.AgentID, uuid.NewString()[:8])
	}

	c := &Channel{
		topics:         NewTopics(cfg.TopicPrefix, cfg.AgentID),
		sink:           sink,
		connectTimeout: cfg.ConnectTimeout,
		closed:         make(chan struct{}),
		logger:         logger.With().Str("broker", cfg.Broker).Logger(),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.ReconnectInterval).
		SetMaxReconnectInterval(cfg.MaxReconnect).
		SetWill(c.topics.Status, StatusOffline, 1, true).
		SetOnConnectHandler(func(paho.Client) { c.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { c.onConnectionLost(err) })
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	return c
}

// SetMetrics attaches instruments
func (c *Channel) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// Topics returns the channel's topic names
func (c *Channel) Topics() Topics {
	return c.topics
}

// Connect starts the broker session. paho keeps retrying in the background
// after a timeout, so an error here is not fatal to the agent.
func (c *Channel) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		return nil
	case <-time.After(c.connectTimeout):
		return fmt.Errorf("connect to broker: timeout after %v", c.connectTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects and holds the session until ctx is cancelled or Close is
// called. A failed first connect is logged; paho keeps retrying.
func (c *Channel) Run(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn().Err(err).Msg("MQTT broker unavailable, retrying in background")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return nil
	}
}

// IsConnected reports whether the broker session is up
func (c *Channel) IsConnected() bool {
	return c.connected.Load()
}

// BroadcastAuto publishes an autonomous decision on the state topic
func (c *Channel) BroadcastAuto(state models.ActuatorState) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	payload, err := EncodeState(state)
	if err != nil {
		return err
	}
	return c.publish(c.topics.State, 0, false, payload)
}

// Close marks the agent offline and disconnects
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	if c.connected.Swap(false) {
		if err := c.publish(c.topics.Status, 1, true, []byte(StatusOffline)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to publish offline status")
		}
	}
	c.client.Disconnect(disconnectQuiesce)
	c.metrics.SetConnected(false)
	return nil
}

// onConnect runs on every (re)connect: the session is clean, so resubscribe
func (c *Channel) onConnect() {
	token := c.client.Subscribe(c.topics.Control, 1, func(_ paho.Client, m paho.Message) {
		c.deliver(m.Payload())
	})
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		c.logger.Error().Err(token.Error()).Str("topic", c.topics.Control).Msg("Subscribe failed")
	}

	c.connected.Store(true)
	c.metrics.SetConnected(true)

	if err := c.publish(c.topics.Status, 1, true, []byte(StatusOnline)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to publish online status")
	}
	c.logger.Info().Str("topic", c.topics.Control).Msg("MQTT control channel connected")
}

// onConnectionLost drops any manual override
func (c *Channel) onConnectionLost(err error) {
	c.connected.Store(false)
	c.metrics.SetConnected(false)
	c.logger.Warn().Err(err).Msg("MQTT connection lost")
	c.sink.ClearOnDisconnect()
}

func (c *Channel) deliver(payload []byte) {
	msg, err := DecodeControl(payload)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Ignoring control message")
		return
	}
	c.logger.Debug().Bool("manual", msg.ManualControl).Msg("Control message received")
	c.sink.Apply(msg)
}

func (c *Channel) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
