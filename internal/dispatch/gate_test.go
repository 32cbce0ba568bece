package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestGateStartsUnset(t *testing.T) {
	gate := NewGate()

	if gate.Signaled() {
		t.Error("new gate should not be signaled")
	}
	select {
	case <-gate.Done():
		t.Error("Done() should block before Signal()")
	default:
	}
}

func TestGateSignal(t *testing.T) {
	gate := NewGate()
	gate.Signal()

	if !gate.Signaled() {
		t.Error("gate should be signaled")
	}
	select {
	case <-gate.Done():
	case <-time.After(time.Second):
		t.Error("Done() should be closed after Signal()")
	}
}

func TestGateSignalIdempotent(t *testing.T) {
	gate := NewGate()

	// Concurrent signals from multiple goroutines must not panic
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.Signal()
		}()
	}
	wg.Wait()

	if !gate.Signaled() {
		t.Error("gate should be signaled")
	}
}

func TestGateCrossGoroutineWait(t *testing.T) {
	gate := NewGate()
	waited := make(chan struct{})

	go func() {
		<-gate.Done()
		close(waited)
	}()

	gate.Signal()

	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Error("waiter did not observe the signal")
	}
}
