package stats

import (
	"sync/atomic"
	"time"
)

// StatsCollector manages application-wide statistics
type StatsCollector struct {
	StartTime         time.Time
	MessagesReceived  uint64
	MessagesProcessed uint64
	Errors            uint64
	Reconnects        uint64
	Resubscribes      uint64
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		StartTime: time.Now(),
	}
}

// IncReceived records one received message
func (s *StatsCollector) IncReceived() {
	atomic.AddUint64(&s.MessagesReceived, 1)
}

// IncProcessed records one successfully processed message
func (s *StatsCollector) IncProcessed() {
	atomic.AddUint64(&s.MessagesProcessed, 1)
}

// IncErrors records one failure
func (s *StatsCollector) IncErrors() {
	atomic.AddUint64(&s.Errors, 1)
}

// IncReconnects records one resumed connection
func (s *StatsCollector) IncReconnects() {
	atomic.AddUint64(&s.Reconnects, 1)
}

// IncResubscribes records one completed resubscribe-all request
func (s *StatsCollector) IncResubscribes() {
	atomic.AddUint64(&s.Resubscribes, 1)
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	uptime := time.Since(s.StartTime)
	return map[string]interface{}{
		"uptime":             uptime.String(),
		"messages_received":  atomic.LoadUint64(&s.MessagesReceived),
		"messages_processed": atomic.LoadUint64(&s.MessagesProcessed),
		"errors":             atomic.LoadUint64(&s.Errors),
		"reconnects":         atomic.LoadUint64(&s.Reconnects),
		"resubscribes":       atomic.LoadUint64(&s.Resubscribes),
	}
}

// CalculateRate calculates the message processing rate per second
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.MessagesProcessed)) / uptime
}
