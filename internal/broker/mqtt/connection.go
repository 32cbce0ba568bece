// Package mqtt implements the broker connection over MQTT using paho.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kkaazzuukkii4/switchbot-controller/config"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/broker"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/logger"
)

const (
	subscribeTimeout  = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds

	initialReconnectDelay = time.Second
	maxReconnectDelay     = time.Minute

	eventQueueSize = 64
)

// Connection implements broker.Connection over an MQTT session. The broker
// session is persistent: clean session is never requested, so the broker may
// retain subscription state across reconnects.
type Connection struct {
	cfg    *config.Config
	logger *logger.Logger

	client mqtt.Client
	events chan broker.Event

	subs   []broker.Subscription
	subsMu sync.RWMutex

	connected atomic.Bool
	closing   atomic.Bool

	// reconnect delay between attempts, doubled up to maxReconnectDelay
	reconnectDelay time.Duration
}

// NewConnection creates an MQTT connection from the configuration. The
// session is not established until Connect is called.
func NewConnection(cfg *config.Config, log *logger.Logger) (*Connection, error) {
	c := &Connection{
		cfg:            cfg,
		logger:         log,
		events:         make(chan broker.Event, eventQueueSize),
		reconnectDelay: initialReconnectDelay,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker.Endpoint).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(false).
		SetKeepAlive(time.Duration(cfg.Broker.KeepAlive) * time.Second).
		SetAutoReconnect(false).
		SetConnectRetry(false)

	// Reconnection is driven by this connection rather than paho: paho's
	// automatic path does not surface the CONNACK session-present flag,
	// which the recovery protocol keys on.
	opts.OnConnectionLost = c.handleConnectionLost

	if cfg.Broker.TLS.Enable {
		tlsConfig, err := newTLSConfig(
			cfg.Broker.TLS.CertFile,
			cfg.Broker.TLS.KeyFile,
			cfg.Broker.TLS.CAFile,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// NewConnectionWithClient creates a connection with a provided client (for testing)
func NewConnectionWithClient(cfg *config.Config, log *logger.Logger, client mqtt.Client) *Connection {
	return &Connection{
		cfg:            cfg,
		logger:         log,
		client:         client,
		events:         make(chan broker.Event, eventQueueSize),
		reconnectDelay: initialReconnectDelay,
	}
}

// Connect establishes the session, blocking until the broker accepts or
// rejects. A rejection is fatal for the caller.
func (c *Connection) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	c.connected.Store(true)
	return nil
}

// Subscribe registers the given subscriptions in order, blocking until the
// broker acknowledges each one. A rejected grant is an error here; the
// recovery path inspects raw grants via ResubscribeAll instead.
func (c *Connection) Subscribe(subs []broker.Subscription) ([]broker.Grant, error) {
	c.subsMu.Lock()
	c.subs = append([]broker.Subscription(nil), subs...)
	c.subsMu.Unlock()

	grants, err := c.subscribe(subs)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if g.Rejected() {
			return nil, fmt.Errorf("broker rejected subscription to topic %s", g.Topic)
		}
	}
	return grants, nil
}

// ResubscribeAll re-issues every previously registered subscription and
// returns the raw grants for the recovery coordinator to validate.
func (c *Connection) ResubscribeAll() ([]broker.Grant, error) {
	c.subsMu.RLock()
	subs := append([]broker.Subscription(nil), c.subs...)
	c.subsMu.RUnlock()

	return c.subscribe(subs)
}

func (c *Connection) subscribe(subs []broker.Subscription) ([]broker.Grant, error) {
	grants := make([]broker.Grant, 0, len(subs))
	for _, sub := range subs {
		token := c.client.Subscribe(sub.Topic, sub.QoS, c.handleMessage)
		if !token.WaitTimeout(subscribeTimeout) {
			return nil, fmt.Errorf("subscribe timeout for topic %s", sub.Topic)
		}
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("failed to subscribe to topic %s: %w", sub.Topic, err)
		}

		granted := sub.QoS
		if st, ok := token.(*mqtt.SubscribeToken); ok {
			if qos, ok := st.Result()[sub.Topic]; ok {
				granted = qos
			}
		}
		c.logger.Debug("subscribed to topic", "topic", sub.Topic, "grantedQos", granted)
		grants = append(grants, broker.Grant{Topic: sub.Topic, QoS: granted})
	}
	return grants, nil
}

// Disconnect performs an orderly teardown
func (c *Connection) Disconnect(ctx context.Context) error {
	c.closing.Store(true)
	c.logger.Info("disconnecting from mqtt broker")
	c.client.Disconnect(disconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// Events returns the serialized per-connection event queue
func (c *Connection) Events() <-chan broker.Event {
	return c.events
}

// IsConnected returns the current connection status
func (c *Connection) IsConnected() bool {
	return c.connected.Load()
}

// handleMessage posts inbound messages onto the event queue, preserving
// paho's delivery order.
func (c *Connection) handleMessage(client mqtt.Client, msg mqtt.Message) {
	c.events <- broker.Message{Topic: msg.Topic(), Payload: msg.Payload()}
}

func (c *Connection) handleConnectionLost(client mqtt.Client, err error) {
	if c.closing.Load() {
		return
	}

	c.connected.Store(false)
	c.events <- broker.Interrupted{Err: err}
	go c.reconnectLoop()
}

// reconnectLoop retries the connection until it is accepted or the
// connection is being torn down. Every attempt outcome is posted as a
// Resumed event; on acceptance the CONNACK session-present flag tells the
// recovery coordinator whether the broker kept the subscription state.
func (c *Connection) reconnectLoop() {
	delay := c.reconnectDelay
	for {
		time.Sleep(delay)
		if c.closing.Load() {
			return
		}

		c.logger.Info("mqtt client reconnecting",
			"endpoint", c.cfg.Broker.Endpoint,
			"delay", delay.String())

		token := c.client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			c.events <- broker.Resumed{Err: err}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		sessionPresent := false
		if ct, ok := token.(*mqtt.ConnectToken); ok {
			sessionPresent = ct.SessionPresent()
		}

		c.connected.Store(true)
		c.events <- broker.Resumed{SessionPresent: sessionPresent}
		return
	}
}

// newTLSConfig creates the mutual-TLS configuration for the broker session
func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
