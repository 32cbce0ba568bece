package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Broker backend types
const (
	BrokerTypeMQTT = "mqtt"
	BrokerTypeNATS = "nats"
)

const defaultMessageCount = 10

type Config struct {
	Broker     BrokerConfig     `json:"broker"`
	Subscriber SubscriberConfig `json:"subscriber"`
	State      StateConfig      `json:"state"`
	Logging    LogConfig        `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type BrokerConfig struct {
	Type      string    `json:"type"`      // mqtt or nats
	Endpoint  string    `json:"endpoint"`  // e.g. "ssl://abcd123456wxyz-ats.iot.us-east-1.amazonaws.com:8883"
	ClientID  string    `json:"clientId"`  // generated when empty
	KeepAlive int       `json:"keepAlive"` // seconds
	TLS       TLSConfig `json:"tls"`
}

type TLSConfig struct {
	Enable   bool   `json:"enable"`
	CertFile string `json:"certFile"`
	KeyFile  string `json:"keyFile"`
	CAFile   string `json:"caFile"`
}

type SubscriberConfig struct {
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
	// Count is the number of messages to receive before exiting.
	// Zero runs forever; absent takes the default.
	Count *int `json:"count"`
}

type StateConfig struct {
	File string `json:"file"`
}

type LogConfig struct {
	Level       string `json:"level"` // debug, info, warn, error
	LogToFile   bool   `json:"logToFile"`
	Directory   string `json:"directory"`
	MaxSize     int    `json:"maxSize"` // megabytes
	MaxAge      int    `json:"maxAge"`  // days
	MaxBackups  int    `json:"maxBackups"`
	Compress    bool   `json:"compress"`
	LogToStdout bool   `json:"logToStdout"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled"`
	Address        string `json:"address"`
	Path           string `json:"path"`
	UpdateInterval string `json:"updateInterval"` // Duration string
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Broker.Type == "" {
		c.Broker.Type = BrokerTypeMQTT
	}
	if c.Broker.ClientID == "" {
		c.Broker.ClientID = "switchbot-" + uuid.NewString()
	}
	if c.Broker.KeepAlive <= 0 {
		c.Broker.KeepAlive = 15
	}

	if c.Subscriber.Topic == "" {
		c.Subscriber.Topic = "switchbot/commands"
	}
	if c.Subscriber.Count == nil {
		count := defaultMessageCount
		c.Subscriber.Count = &count
	}

	if c.State.File == "" {
		c.State.File = "switchbot-state.json"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !c.Logging.LogToFile && !c.Logging.LogToStdout {
		c.Logging.LogToStdout = true
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}
}

// MessageCount returns the resolved target message count. Zero means
// the subscriber runs until externally terminated.
func (c *Config) MessageCount() int {
	if c.Subscriber.Count == nil {
		return defaultMessageCount
	}
	return *c.Subscriber.Count
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	switch cfg.Broker.Type {
	case BrokerTypeMQTT, BrokerTypeNATS:
	default:
		return fmt.Errorf("invalid broker type: %s", cfg.Broker.Type)
	}

	if cfg.Broker.Endpoint == "" {
		return fmt.Errorf("broker endpoint is required")
	}

	if cfg.Broker.TLS.Enable {
		if cfg.Broker.TLS.CertFile == "" {
			return fmt.Errorf("tls cert file is required when tls is enabled")
		}
		if cfg.Broker.TLS.KeyFile == "" {
			return fmt.Errorf("tls key file is required when tls is enabled")
		}
		if cfg.Broker.TLS.CAFile == "" {
			return fmt.Errorf("tls ca file is required when tls is enabled")
		}
	}

	if cfg.Subscriber.Topic == "" {
		return fmt.Errorf("subscriber topic is required")
	}
	if cfg.Subscriber.QoS > 2 {
		return fmt.Errorf("invalid qos level: %d", cfg.Subscriber.QoS)
	}
	if cfg.Subscriber.Count != nil && *cfg.Subscriber.Count < 0 {
		return fmt.Errorf("message count must not be negative")
	}

	if cfg.State.File == "" {
		return fmt.Errorf("state file path is required")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	if cfg.Logging.LogToFile && cfg.Logging.Directory == "" {
		return fmt.Errorf("log directory is required when file logging is enabled")
	}

	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	return nil
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(endpoint, topic string, count int, clientID, certFile, keyFile, caFile, stateFile string) {
	if endpoint != "" {
		c.Broker.Endpoint = endpoint
	}
	if topic != "" {
		c.Subscriber.Topic = topic
	}
	if count >= 0 {
		c.Subscriber.Count = &count
	}
	if clientID != "" {
		c.Broker.ClientID = clientID
	}
	if certFile != "" {
		c.Broker.TLS.CertFile = certFile
		c.Broker.TLS.Enable = true
	}
	if keyFile != "" {
		c.Broker.TLS.KeyFile = keyFile
		c.Broker.TLS.Enable = true
	}
	if caFile != "" {
		c.Broker.TLS.CAFile = caFile
		c.Broker.TLS.Enable = true
	}
	if stateFile != "" {
		c.State.File = stateFile
	}
}
