package driver

import "sync"

// ShutdownCondition exposes idempotent shutdown initiation, an async wait,
// and a pending-task counter, per spec §5.
type ShutdownCondition struct {
	mu       sync.Mutex
	ch       chan struct{}
	once     sync.Once
	bySignal bool
	pending  int
}

// NewShutdownCondition constructs a ShutdownCondition.
func NewShutdownCondition() *ShutdownCondition {
	return &ShutdownCondition{ch: make(chan struct{})}
}

// Initiate triggers shutdown; idempotent. bySignal records whether this was
// driven by an OS signal (affects exit-code determination).
func (s *ShutdownCondition) Initiate(bySignal bool) {
	s.once.Do(func() {
		s.mu.Lock()
		s.bySignal = bySignal
		s.mu.Unlock()
		close(s.ch)
	})
}

// Wait returns a channel closed once shutdown has been initiated.
func (s *ShutdownCondition) Wait() <-chan struct{} {
	return s.ch
}

// BySignal reports whether shutdown was driven by a signal.
func (s *ShutdownCondition) BySignal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bySignal
}

// Triggered reports whether shutdown has been initiated.
func (s *ShutdownCondition) Triggered() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// AddPending increments the pending-task counter.
func (s *ShutdownCondition) AddPending(delta int) {
	s.mu.Lock()
	s.pending += delta
	s.mu.Unlock()
}

// Pending returns the current pending-task count.
func (s *ShutdownCondition) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
