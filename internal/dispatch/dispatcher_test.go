package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkaazzuukkii4/switchbot-controller/config"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/logger"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/state"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/stats"
)

// recordingProcessor captures the commands it is given, in order
type recordingProcessor struct {
	commands []string
	err      error
}

func (p *recordingProcessor) Process(command string, store state.Store) error {
	if p.err != nil {
		return p.err
	}
	p.commands = append(p.commands, command)
	return nil
}

// memStore is a minimal in-memory state.Store for dispatcher tests
type memStore struct {
	devices map[string]state.DeviceState
}

func newMemStore() *memStore {
	return &memStore{devices: make(map[string]state.DeviceState)}
}

func (s *memStore) Init() error { return nil }

func (s *memStore) Load(device string) (state.DeviceState, bool, error) {
	st, ok := s.devices[device]
	return st, ok, nil
}

func (s *memStore) Save(device string, st state.DeviceState) error {
	s.devices[device] = st
	return nil
}

func newTestDispatcher(t *testing.T, proc Processor, target uint64) (*Dispatcher, *Gate) {
	t.Helper()

	log, err := logger.NewLogger(&config.LogConfig{Level: "error", LogToStdout: true})
	require.NoError(t, err)

	gate := NewGate()
	d := NewDispatcher(proc, newMemStore(), gate, target, log, nil, stats.NewStatsCollector())
	return d, gate
}

func TestGateSignaledAtExactTarget(t *testing.T) {
	proc := &recordingProcessor{}
	d, gate := newTestDispatcher(t, proc, 3)

	for i := 0; i < 2; i++ {
		require.NoError(t, d.Handle("switchbot/commands", []byte("cmd")))
		assert.False(t, gate.Signaled(), "gate must not be signaled before the target")
	}

	require.NoError(t, d.Handle("switchbot/commands", []byte("cmd")))
	assert.True(t, gate.Signaled(), "gate must be signaled at the target")
	assert.Equal(t, uint64(3), d.Received())
}

func TestGateNeverSignaledWhenUnbounded(t *testing.T) {
	proc := &recordingProcessor{}
	d, gate := newTestDispatcher(t, proc, 0)

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Handle("switchbot/commands", []byte("cmd")))
	}

	assert.False(t, gate.Signaled(), "gate must never be signaled in unbounded mode")
	assert.Equal(t, uint64(20), d.Received())
}

func TestMessageOrderPreserved(t *testing.T) {
	proc := &recordingProcessor{}
	d, _ := newTestDispatcher(t, proc, 0)

	var want []string
	for i := 1; i <= 3; i++ {
		cmd := fmt.Sprintf("M%d", i)
		want = append(want, cmd)
		require.NoError(t, d.Handle("switchbot/commands", []byte(cmd)))
	}

	assert.Equal(t, want, proc.commands)
}

func TestProcessorFailureIsFatal(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("device unreachable")}
	d, gate := newTestDispatcher(t, proc, 1)

	err := d.Handle("switchbot/commands", []byte("cmd"))
	assert.Error(t, err)
	assert.False(t, gate.Signaled(), "failed message must not advance toward the target")
	assert.Zero(t, d.Received())
}

func TestInvalidUTF8Payload(t *testing.T) {
	proc := &recordingProcessor{}
	d, _ := newTestDispatcher(t, proc, 0)

	err := d.Handle("switchbot/commands", []byte{0xff, 0xfe})
	assert.Error(t, err)
	assert.Empty(t, proc.commands, "processor must not see an undecodable payload")
}

func TestCounterMonotonicAcrossExtraMessages(t *testing.T) {
	proc := &recordingProcessor{}
	d, gate := newTestDispatcher(t, proc, 2)

	require.NoError(t, d.Handle("switchbot/commands", []byte("cmd")))
	require.NoError(t, d.Handle("switchbot/commands", []byte("cmd")))
	assert.True(t, gate.Signaled())

	// Messages past the target still count, the gate stays signaled
	require.NoError(t, d.Handle("switchbot/commands", []byte("cmd")))
	assert.Equal(t, uint64(3), d.Received())
	assert.True(t, gate.Signaled())
}
