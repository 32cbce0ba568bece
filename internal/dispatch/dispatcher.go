// Package dispatch forwards received messages to the command processor and
// tracks the message quota.
package dispatch

import (
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/kkaazzuukkii4/switchbot-controller/internal/logger"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/metrics"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/state"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/stats"
)

// Processor executes one decoded command against the state store
type Processor interface {
	Process(command string, store state.Store) error
}

// Dispatcher hands every inbound message to the processor, synchronously
// and in delivery order, then advances the receive counter. When a non-zero
// target is reached the termination gate is signaled exactly once.
type Dispatcher struct {
	processor Processor
	store     state.Store
	gate      *Gate
	logger    *logger.Logger
	metrics   *metrics.Metrics
	stats     *stats.StatsCollector

	// target of 0 means unbounded: the gate is never signaled
	target   uint64
	received atomic.Uint64
}

// NewDispatcher creates a dispatcher delivering to the given processor
func NewDispatcher(processor Processor, store state.Store, gate *Gate, target uint64,
	log *logger.Logger, m *metrics.Metrics, sc *stats.StatsCollector) *Dispatcher {
	return &Dispatcher{
		processor: processor,
		store:     store,
		gate:      gate,
		logger:    log,
		metrics:   m,
		stats:     sc,
		target:    target,
	}
}

// Handle processes one inbound message. A processor failure is fatal for
// the whole run: no per-message retry or dead-letter path exists, so the
// error propagates to the event loop, which stops dispatching.
func (d *Dispatcher) Handle(topic string, payload []byte) error {
	d.stats.IncReceived()
	d.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("received")
		m.SetLastMessageTime(time.Now())
	})

	if !utf8.Valid(payload) {
		d.stats.IncErrors()
		d.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncMessagesTotal("error")
		})
		return fmt.Errorf("message payload on topic %s is not valid UTF-8", topic)
	}
	command := string(payload)

	d.logger.Debug("received message", "topic", topic, "payloadSize", len(payload))

	start := time.Now()
	if err := d.processor.Process(command, d.store); err != nil {
		d.stats.IncErrors()
		d.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncMessagesTotal("error")
		})
		return fmt.Errorf("failed to process message from topic %s: %w", topic, err)
	}

	d.stats.IncProcessed()
	d.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("processed")
		m.ObserveCommandDuration(time.Since(start))
	})

	received := d.received.Add(1)
	if d.target > 0 && received == d.target {
		d.logger.Info("message target reached", "received", received)
		d.gate.Signal()
	}

	return nil
}

// Received returns the number of messages dispatched so far
func (d *Dispatcher) Received() uint64 {
	return d.received.Load()
}

func (d *Dispatcher) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if d.metrics != nil {
		fn(d.metrics)
	}
}
