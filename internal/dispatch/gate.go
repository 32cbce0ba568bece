package dispatch

import "sync"

// Gate is a one-shot completion signal. It is set at most once from the
// delivery goroutine and waited on by the main control flow.
type Gate struct {
	once sync.Once
	done chan struct{}
}

// NewGate creates an unset gate
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Signal sets the gate. Subsequent calls are no-ops.
func (g *Gate) Signal() {
	g.once.Do(func() {
		close(g.done)
	})
}

// Done returns a channel closed when the gate is signaled
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Signaled reports whether the gate has been set
func (g *Gate) Signaled() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}
