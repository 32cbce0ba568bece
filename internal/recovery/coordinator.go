// Package recovery restores subscription state after unplanned connection
// interruptions and drives message dispatch.
package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/kkaazzuukkii4/switchbot-controller/internal/broker"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/logger"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/metrics"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/stats"
)

// ResubscribeRejectedError is returned when the broker rejects restoring
// a previously-held topic. Consistent subscription state can no longer be
// assumed, so the run must stop.
type ResubscribeRejectedError struct {
	Topic string
}

func (e *ResubscribeRejectedError) Error() string {
	return fmt.Sprintf("broker rejected resubscribe to topic: %s", e.Topic)
}

// Dispatcher consumes inbound messages on the event loop
type Dispatcher interface {
	Handle(topic string, payload []byte) error
}

// Coordinator owns the per-connection event loop. All lifecycle events and
// inbound messages are handled one at a time, in arrival order, by a single
// goroutine running Run.
type Coordinator struct {
	conn       broker.Connection
	dispatcher Dispatcher
	logger     *logger.Logger
	metrics    *metrics.Metrics
	stats      *stats.StatsCollector

	// resubDone carries resubscribe-all completions back onto the loop,
	// so the loop never waits on a resubscribe synchronously.
	resubDone chan broker.ResubscribeDone

	mu    sync.Mutex
	state broker.State
}

// NewCoordinator creates a recovery coordinator for the given connection
func NewCoordinator(conn broker.Connection, dispatcher Dispatcher,
	log *logger.Logger, m *metrics.Metrics, sc *stats.StatsCollector) *Coordinator {
	return &Coordinator{
		conn:       conn,
		dispatcher: dispatcher,
		logger:     log,
		metrics:    m,
		stats:      sc,
		resubDone:  make(chan broker.ResubscribeDone, 1),
		state:      broker.StateDisconnected,
	}
}

// State returns the connection state as observed by the coordinator
func (c *Coordinator) State() broker.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s broker.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run drains the connection's event queue until the context is canceled,
// the queue closes, or a fatal condition occurs. A non-nil return is fatal
// for the whole run; the caller decides exit behavior.
func (c *Coordinator) Run(ctx context.Context) error {
	c.setState(broker.StateConnected)

	for {
		select {
		case <-ctx.Done():
			return nil
		case done := <-c.resubDone:
			if err := c.handleResubscribeDone(done); err != nil {
				return err
			}
		case ev, ok := <-c.conn.Events():
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case broker.Interrupted:
				c.handleInterrupted(ev)
			case broker.Resumed:
				c.handleResumed(ev)
			case broker.ResubscribeDone:
				if err := c.handleResubscribeDone(ev); err != nil {
					return err
				}
			case broker.Message:
				if err := c.dispatcher.Handle(ev.Topic, ev.Payload); err != nil {
					return err
				}
			}
		}
	}
}

func (c *Coordinator) handleInterrupted(ev broker.Interrupted) {
	c.logger.Error("connection interrupted", "error", ev.Err)
	c.setState(broker.StateInterrupted)
	c.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(false)
	})
}

func (c *Coordinator) handleResumed(ev broker.Resumed) {
	if !ev.Accepted() {
		// Resumption is not actionable here; the transport keeps retrying
		c.logger.Error("connection resume rejected", "error", ev.Err)
		return
	}

	c.logger.Info("connection resumed", "sessionPresent", ev.SessionPresent)
	c.stats.IncReconnects()
	c.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(true)
		m.IncReconnects()
	})

	if ev.SessionPresent {
		// Broker retained the subscription state; nothing to restore
		c.setState(broker.StateConnected)
		return
	}

	c.logger.Info("session did not persist, resubscribing to existing topics")
	c.setState(broker.StateResuming)

	// The resubscribe must not be awaited here: this goroutine has to stay
	// free to handle further connection events. Its result comes back
	// through resubDone.
	go func() {
		grants, err := c.conn.ResubscribeAll()
		c.resubDone <- broker.ResubscribeDone{Grants: grants, Err: err}
	}()
}

func (c *Coordinator) handleResubscribeDone(ev broker.ResubscribeDone) error {
	if ev.Err != nil {
		return fmt.Errorf("resubscribe failed: %w", ev.Err)
	}
	for _, g := range ev.Grants {
		if g.Rejected() {
			return &ResubscribeRejectedError{Topic: g.Topic}
		}
	}

	c.logger.Info("resubscribed to topics", "count", len(ev.Grants))
	c.stats.IncResubscribes()
	c.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncResubscribes()
	})
	c.setState(broker.StateConnected)
	return nil
}

func (c *Coordinator) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}
