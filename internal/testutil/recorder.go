package testutil

import (
	"sync"

	"github.com/roach88/statebox/internal/channel"
	"github.com/roach88/statebox/internal/ir"
)

// ChangeRecorder collects delivered changes in order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ChangeRecorder struct {
	mu       sync.Mutex
	changes  []ir.Change
	listener *channel.Listener
}

// NewChangeRecorder creates an empty recorder.
func NewChangeRecorder() *ChangeRecorder {
	r := &ChangeRecorder{}
	r.listener = channel.NewListener(r.record)
	return r
}

func (r *ChangeRecorder) record(c ir.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

// Listener returns the recorder's stable listener.
func (r *ChangeRecorder) Listener() *channel.Listener {
	return r.listener
}

// Changes returns a copy of the recorded changes.
func (r *ChangeRecorder) Changes() []ir.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.Change, len(r.changes))
	copy(out, r.changes)
	return out
}

// Count returns the number of recorded changes.
func (r *ChangeRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

// Reset discards recorded changes.
func (r *ChangeRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = nil
}

// SignalCounter counts rerender signals.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SignalCounter struct {
	mu sync.Mutex
	n  int
}

// Signal is a rerender callback.
func (s *SignalCounter) Signal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
}

// Count returns the number of signals received.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
