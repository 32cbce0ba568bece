package metrics

import (
	"time"

	"github.com/kkaazzuukkii4/switchbot-controller/internal/stats"
)

// MetricsCollector periodically samples runtime statistics into gauges
type MetricsCollector struct {
	metrics  *Metrics
	stats    *stats.StatsCollector
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(m *Metrics, s *stats.StatsCollector, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		metrics:  m,
		stats:    s,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins periodic collection
func (c *MetricsCollector) Start() {
	go func() {
		defer close(c.done)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
}

// Stop halts collection and waits for the collection goroutine to exit
func (c *MetricsCollector) Stop() {
	close(c.stop)
	<-c.done
}

func (c *MetricsCollector) collect() {
	c.metrics.SetUptime(time.Since(c.stats.StartTime))
	c.metrics.SetProcessRate(c.stats.CalculateRate())
}
