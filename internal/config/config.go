// Package config loads agent and server configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Control transports
const (
	TransportWebsocket = "websocket"
	TransportMQTT      = "mqtt"
	TransportNone      = "none"
)

// Config holds all configuration for the climate agent
type Config struct {
	Agent     AgentConfig    `yaml:"agent"`
	Sensor    SensorConfig   `yaml:"sensor"`
	Actuators ActuatorConfig `yaml:"actuators"`
	Server    ServerConfig   `yaml:"server"`
	Control   ControlConfig  `yaml:"control"`
	Status    StatusConfig   `yaml:"status"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// AgentConfig identifies the agent
type AgentConfig struct {
	ID string `yaml:"id"`
	// Timezone is an IANA name used for the day/night window; "Local" uses
	// the host zone.
	Timezone string `yaml:"timezone"`
}

// SensorConfig contains sensor-specific settings
type SensorConfig struct {
	Type         string        `yaml:"type"`
	GPIOPin      int           `yaml:"gpio_pin"`
	ReadInterval time.Duration `yaml:"read_interval"`
	MaxRetries   int           `yaml:"max_retries"`
}

// ActuatorConfig maps each output channel to a GPIO line
type ActuatorConfig struct {
	Chip          string `yaml:"chip"`
	HeaterPin     int    `yaml:"heater_pin"`
	CoolerPin     int    `yaml:"cooler_pin"`
	HumidifierPin int    `yaml:"humidifier_pin"`
	ActiveLow     bool   `yaml:"active_low"`
}

// ServerConfig is where telemetry is posted. Disabled turns posting off.
type ServerConfig struct {
	Disabled   bool          `yaml:"disabled"`
	URL        string        `yaml:"url"`
	ParamsPath string        `yaml:"params_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ControlConfig selects and tunes the control channel
type ControlConfig struct {
	Transport            string        `yaml:"transport"`
	URL                  string        `yaml:"url"`
	AuthToken            string        `yaml:"auth_token"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	MQTT                 MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig contains broker settings for the mqtt transport
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// StatusConfig controls the local status endpoint. Empty Listen disables it.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a YAML file. An empty path uses
// defaults and the environment only.
func LoadConfig(path string) (*Config, error) {
	var config Config
	if path != "" {
		yamlData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(yamlData, &config); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Agent.ID == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.Agent.ID = host
		} else {
			c.Agent.ID = "climate-agent"
		}
	}
	if c.Agent.Timezone == "" {
		c.Agent.Timezone = "Local"
	}

	if c.Sensor.Type == "" {
		c.Sensor.Type = "DHT11"
	}
	if c.Sensor.GPIOPin == 0 {
		c.Sensor.GPIOPin = 21
	}
	if c.Sensor.ReadInterval == 0 {
		c.Sensor.ReadInterval = time.Second
	}
	if c.Sensor.MaxRetries == 0 {
		c.Sensor.MaxRetries = 3
	}

	if c.Actuators.Chip == "" {
		c.Actuators.Chip = "gpiochip0"
	}
	if c.Actuators.HeaterPin == 0 {
		c.Actuators.HeaterPin = 17
	}
	if c.Actuators.CoolerPin == 0 {
		c.Actuators.CoolerPin = 27
	}
	if c.Actuators.HumidifierPin == 0 {
		c.Actuators.HumidifierPin = 22
	}

	if c.Server.URL == "" {
		c.Server.URL = "http://localhost:3000"
	}
	if c.Server.ParamsPath == "" {
		c.Server.ParamsPath = "/api/params"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 5 * time.Second
	}

	if c.Control.Transport == "" {
		c.Control.Transport = TransportWebsocket
	}
	if c.Control.URL == "" {
		c.Control.URL = "ws://localhost:3000/control"
	}
	if c.Control.ConnectTimeout == 0 {
		c.Control.ConnectTimeout = 10 * time.Second
	}
	if c.Control.ReconnectInterval == 0 {
		c.Control.ReconnectInterval = time.Second
	}
	if c.Control.MaxReconnectInterval == 0 {
		c.Control.MaxReconnectInterval = time.Minute
	}
	if c.Control.PingInterval == 0 {
		c.Control.PingInterval = 30 * time.Second
	}
	if c.Control.PongTimeout == 0 {
		c.Control.PongTimeout = 10 * time.Second
	}
	if c.Control.MQTT.Broker == "" {
		c.Control.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.Control.MQTT.TopicPrefix == "" {
		c.Control.MQTT.TopicPrefix = "climate"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config values from environment variables.
// Only non-empty variables apply.
func (c *Config) OverrideFromEnv() error {
	var errs []error

	envInt := func(name string, dst *int) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", name, v))
			return
		}
		*dst = n
	}
	envString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	envString("AGENT_ID", &c.Agent.ID)
	envString("TZ_NAME", &c.Agent.Timezone)

	envInt("GPIO_PORT", &c.Sensor.GPIOPin)
	if v := os.Getenv("DHT_SENSOR"); v != "" {
		c.Sensor.Type = normalizeSensorType(v)
	}
	if v := os.Getenv("SAMPLE_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SAMPLE_INTERVAL: %w", err))
		} else {
			c.Sensor.ReadInterval = d
		}
	}

	envInt("HEATER_PIN", &c.Actuators.HeaterPin)
	envInt("COOLER_PIN", &c.Actuators.CoolerPin)
	envInt("HUMIDIFIER_PIN", &c.Actuators.HumidifierPin)

	envString("SERVER_URL", &c.Server.URL)
	envString("CONTROL_TRANSPORT", &c.Control.Transport)
	envString("CONTROL_URL", &c.Control.URL)
	envString("SERVER_AUTH_TOKEN", &c.Control.AuthToken)
	envString("MQTT_BROKER", &c.Control.MQTT.Broker)

	envString("STATUS_LISTEN", &c.Status.Listen)
	envString("LOG_LEVEL", &c.Logging.Level)

	c.normalizeServerURL()
	return errors.Join(errs...)
}

// normalizeServerURL accepts the full ".../api/params" form for SERVER_URL
// and keeps only the base.
func (c *Config) normalizeServerURL() {
	base := strings.TrimRight(c.Server.URL, "/")
	if path := strings.TrimRight(c.Server.ParamsPath, "/"); path != "" && strings.HasSuffix(base, path) {
		base = strings.TrimSuffix(base, path)
	}
	c.Server.URL = base
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Agent.ID == "" {
		return fmt.Errorf("agent ID is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Sensor.Type {
	case "DHT11":
	case "DHT22":
		return fmt.Errorf("sensor type DHT22 is not supported, the driver only reads DHT11")
	default:
		return fmt.Errorf("unsupported sensor type %q", c.Sensor.Type)
	}
	if c.Sensor.GPIOPin <= 0 {
		return fmt.Errorf("GPIO pin must be greater than 0")
	}
	if c.Sensor.ReadInterval < 100*time.Millisecond {
		return fmt.Errorf("read interval must be at least 100ms")
	}
	if c.Sensor.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}

	pins := map[string]int{
		"heater":     c.Actuators.HeaterPin,
		"cooler":     c.Actuators.CoolerPin,
		"humidifier": c.Actuators.HumidifierPin,
	}
	seen := map[int]string{c.Sensor.GPIOPin: "sensor"}
	for _, name := range []string{"heater", "cooler", "humidifier"} {
		pin := pins[name]
		if pin < 0 {
			return fmt.Errorf("%s pin must not be negative", name)
		}
		if other, dup := seen[pin]; dup {
			return fmt.Errorf("%s pin %d already used by %s", name, pin, other)
		}
		seen[pin] = name
	}

	if !c.Server.Disabled {
		if err := checkURL(c.Server.URL, "http", "https"); err != nil {
			return fmt.Errorf("server URL: %w", err)
		}
		if c.Server.Timeout <= 0 {
			return fmt.Errorf("server timeout must be positive")
		}
	}

	switch c.Control.Transport {
	case TransportWebsocket:
		if err := checkURL(c.Control.URL, "ws", "wss"); err != nil {
			return fmt.Errorf("control URL: %w", err)
		}
		if c.Control.ReconnectInterval < 100*time.Millisecond {
			return fmt.Errorf("reconnect interval must be at least 100ms")
		}
		if c.Control.MaxReconnectInterval < c.Control.ReconnectInterval {
			return fmt.Errorf("max reconnect interval must not be below reconnect interval")
		}
		if c.Control.ConnectTimeout <= 0 {
			return fmt.Errorf("connect timeout must be positive")
		}
		if c.Control.PingInterval <= 0 {
			return fmt.Errorf("ping interval must be positive")
		}
		if c.Control.PongTimeout <= 0 {
			return fmt.Errorf("pong timeout must be positive")
		}
	case TransportMQTT:
		if err := checkURL(c.Control.MQTT.Broker, "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss"); err != nil {
			return fmt.Errorf("mqtt broker: %w", err)
		}
		if c.Control.ConnectTimeout <= 0 {
			return fmt.Errorf("connect timeout must be positive")
		}
	case TransportNone:
	default:
		return fmt.Errorf("unknown control transport %q", c.Control.Transport)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// Location resolves the agent timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Agent.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Agent.Timezone, err)
	}
	return loc, nil
}

// String returns a safe string representation (hides auth token)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Agent: %+v, Sensor: %+v, Actuators: %+v, Server: %+v, Control: [Transport=%s, URL=%s, Token=%s, Broker=%s], Status: %+v, Logging: %+v}",
		c.Agent,
		c.Sensor,
		c.Actuators,
		c.Server,
		c.Control.Transport,
		c.Control.URL,
		maskToken(c.Control.AuthToken),
		c.Control.MQTT.Broker,
		c.Status,
		c.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

func normalizeSensorType(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if !strings.HasPrefix(v, "DHT") {
		v = "DHT" + v
	}
	return v
}

// parseInterval accepts a Go duration or a bare number of milliseconds
func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor milliseconds", v)
	}
	return d, nil
}

func checkURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%q has no host", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("%q must use one of %v", raw, schemes)
}
