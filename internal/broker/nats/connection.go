// Package nats implements the broker connection over NATS.
package nats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kkaazzuukkii4/switchbot-controller/config"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/broker"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/logger"
)

const eventQueueSize = 64

// Connection implements broker.Connection over a NATS connection. NATS has
// no QoS negotiation, so grants echo the requested level, and because the
// nats client re-establishes subscriptions itself on reconnect, Resumed
// events always report the session as present.
type Connection struct {
	cfg    *config.Config
	logger *logger.Logger

	conn   *nats.Conn
	events chan broker.Event

	subs     []broker.Subscription
	natsSubs []*nats.Subscription
	mu       sync.Mutex

	closing atomic.Bool
}

// NewConnection creates a NATS connection from the configuration. The
// connection is not established until Connect is called.
func NewConnection(cfg *config.Config, log *logger.Logger) (*Connection, error) {
	return &Connection{
		cfg:    cfg,
		logger: log,
		events: make(chan broker.Event, eventQueueSize),
	}, nil
}

// Connect establishes the connection, blocking until the server accepts or
// rejects.
func (c *Connection) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(c.cfg.Broker.ClientID),
		nats.ReconnectWait(time.Second * 2),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
	}

	if c.cfg.Broker.TLS.Enable {
		opts = append(opts,
			nats.ClientCert(c.cfg.Broker.TLS.CertFile, c.cfg.Broker.TLS.KeyFile),
			nats.RootCAs(c.cfg.Broker.TLS.CAFile),
		)
	}

	c.logger.Info("connecting to NATS server", "endpoint", c.cfg.Broker.Endpoint)

	conn, err := nats.Connect(c.cfg.Broker.Endpoint, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS server: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("connected to NATS server", "url", conn.ConnectedUrl())
	return nil
}

// Subscribe registers the given subscriptions in order
func (c *Connection) Subscribe(subs []broker.Subscription) ([]broker.Grant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("not connected to NATS server")
	}

	c.subs = append([]broker.Subscription(nil), subs...)
	return c.subscribeLocked(subs)
}

// ResubscribeAll drops and re-issues every previously registered
// subscription, returning the raw grants.
func (c *Connection) ResubscribeAll() ([]broker.Grant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("not connected to NATS server")
	}

	for _, sub := range c.natsSubs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Debug("failed to drop stale subscription", "error", err)
		}
	}
	c.natsSubs = c.natsSubs[:0]

	return c.subscribeLocked(c.subs)
}

func (c *Connection) subscribeLocked(subs []broker.Subscription) ([]broker.Grant, error) {
	grants := make([]broker.Grant, 0, len(subs))
	for _, sub := range subs {
		topic := sub.Topic
		subject := ToNATSSubject(topic)

		natsSub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
			c.events <- broker.Message{Topic: topic, Payload: msg.Data}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
		}

		c.natsSubs = append(c.natsSubs, natsSub)
		c.logger.Debug("subscribed to topic", "topic", topic, "subject", subject)
		grants = append(grants, broker.Grant{Topic: topic, QoS: sub.QoS})
	}
	return grants, nil
}

// Disconnect performs an orderly teardown
func (c *Connection) Disconnect(ctx context.Context) error {
	c.closing.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.logger.Info("disconnecting from NATS server")
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// Events returns the serialized per-connection event queue
func (c *Connection) Events() <-chan broker.Event {
	return c.events
}

func (c *Connection) handleDisconnect(conn *nats.Conn, err error) {
	if c.closing.Load() {
		return
	}
	c.events <- broker.Interrupted{Err: err}
}

func (c *Connection) handleReconnect(conn *nats.Conn) {
	if c.closing.Load() {
		return
	}
	// nats.go has already restored the subscriptions on this connection
	c.events <- broker.Resumed{SessionPresent: true}
}

func (c *Connection) handleClosed(conn *nats.Conn) {
	if c.closing.Load() {
		return
	}
	c.logger.Warn("NATS connection closed")
}
