// Package metrics exposes the subscriber's Prometheus instrumentation.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus instruments for the subscriber
type Metrics struct {
	connectionStatus  prometheus.Gauge
	reconnectsTotal   prometheus.Counter
	resubscribesTotal prometheus.Counter
	messagesTotal     *prometheus.CounterVec
	commandDuration   prometheus.Histogram
	lastMessageTime   prometheus.Gauge
	processRate       prometheus.Gauge
	uptimeSeconds     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "switchbot_broker_connection_status",
			Help: "Current broker connection status (1 = connected, 0 = disconnected)",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switchbot_broker_reconnects_total",
			Help: "Total number of resumed broker connections",
		}),
		resubscribesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switchbot_broker_resubscribes_total",
			Help: "Total number of completed resubscribe-all requests",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchbot_messages_total",
			Help: "Total number of messages by status",
		}, []string{"status"}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "switchbot_command_duration_seconds",
			Help:    "Time spent executing switchbot commands",
			Buckets: prometheus.DefBuckets,
		}),
		lastMessageTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "switchbot_last_message_timestamp_seconds",
			Help: "Unix timestamp of the last received message",
		}),
		processRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "switchbot_message_rate_per_second",
			Help: "Average message processing rate since startup",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "switchbot_uptime_seconds",
			Help: "Time since the subscriber started",
		}),
	}

	collectors := []prometheus.Collector{
		m.connectionStatus,
		m.reconnectsTotal,
		m.resubscribesTotal,
		m.messagesTotal,
		m.commandDuration,
		m.lastMessageTime,
		m.processRate,
		m.uptimeSeconds,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// SetConnectionStatus sets the broker connection status gauge
func (m *Metrics) SetConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
	} else {
		m.connectionStatus.Set(0)
	}
}

// IncReconnects increments the resumed-connection counter
func (m *Metrics) IncReconnects() {
	m.reconnectsTotal.Inc()
}

// IncResubscribes increments the completed-resubscribe counter
func (m *Metrics) IncResubscribes() {
	m.resubscribesTotal.Inc()
}

// IncMessagesTotal increments the message counter for a status
// (received, processed, error)
func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

// ObserveCommandDuration records a command execution duration
func (m *Metrics) ObserveCommandDuration(d time.Duration) {
	m.commandDuration.Observe(d.Seconds())
}

// SetLastMessageTime records the arrival time of the latest message
func (m *Metrics) SetLastMessageTime(t time.Time) {
	m.lastMessageTime.Set(float64(t.Unix()))
}

// SetProcessRate sets the average processing rate gauge
func (m *Metrics) SetProcessRate(rate float64) {
	m.processRate.Set(rate)
}

// SetUptime sets the uptime gauge
func (m *Metrics) SetUptime(d time.Duration) {
	m.uptimeSeconds.Set(d.Seconds())
}
