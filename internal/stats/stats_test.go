package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestNewStatsCollector verifies the initialization of a new StatsCollector
func TestNewStatsCollector(t *testing.T) {
	collector := NewStatsCollector()

	assert.NotNil(t, collector, "StatsCollector should be created")
	assert.WithinDuration(t, time.Now(), collector.StartTime, 100*time.Millisecond, "StartTime should be close to current time")

	assert.Zero(t, collector.MessagesReceived, "MessagesReceived should be zero")
	assert.Zero(t, collector.MessagesProcessed, "MessagesProcessed should be zero")
	assert.Zero(t, collector.Errors, "Errors should be zero")
	assert.Zero(t, collector.Reconnects, "Reconnects should be zero")
	assert.Zero(t, collector.Resubscribes, "Resubscribes should be zero")
}

// TestIncrements verifies the counter increment methods
func TestIncrements(t *testing.T) {
	collector := NewStatsCollector()

	for i := 0; i < 3; i++ {
		collector.IncReceived()
	}
	collector.IncProcessed()
	collector.IncProcessed()
	collector.IncErrors()
	collector.IncReconnects()
	collector.IncResubscribes()

	assert.Equal(t, uint64(3), collector.MessagesReceived, "MessagesReceived should match")
	assert.Equal(t, uint64(2), collector.MessagesProcessed, "MessagesProcessed should match")
	assert.Equal(t, uint64(1), collector.Errors, "Errors should match")
	assert.Equal(t, uint64(1), collector.Reconnects, "Reconnects should match")
	assert.Equal(t, uint64(1), collector.Resubscribes, "Resubscribes should match")
}

// TestGetStats verifies the GetStats method
func TestGetStats(t *testing.T) {
	collector := NewStatsCollector()

	collector.IncReceived()
	collector.IncReceived()
	collector.IncProcessed()
	collector.IncErrors()

	stats := collector.GetStats()

	assert.Contains(t, stats, "uptime", "Should have uptime")
	assert.Equal(t, uint64(2), stats["messages_received"], "messages_received should match")
	assert.Equal(t, uint64(1), stats["messages_processed"], "messages_processed should match")
	assert.Equal(t, uint64(1), stats["errors"], "errors should match")
	assert.Equal(t, uint64(0), stats["reconnects"], "reconnects should match")
}

// TestCalculateRate verifies message processing rate calculation
func TestCalculateRate(t *testing.T) {
	testCases := []struct {
		name           string
		processed      uint64
		processingTime time.Duration
		min            float64
		max            float64
	}{
		{"Zero processing", 0, 1 * time.Second, 0, 0.001},
		{"Normal processing", 100, 10 * time.Second, 9.9, 10.1},
		{"Low time processing", 50, 100 * time.Millisecond, 480, 520},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			collector := &StatsCollector{
				StartTime:         time.Now().Add(-tc.processingTime),
				MessagesProcessed: tc.processed,
			}

			rate := collector.CalculateRate()
			assert.GreaterOrEqual(t, rate, tc.min, "Rate should be greater than or equal to minimum")
			assert.LessOrEqual(t, rate, tc.max, "Rate should be less than or equal to maximum")
		})
	}
}
