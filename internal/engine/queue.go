package engine

import (
	"sync"

	"github.com/eapache/queue"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeRender renders one mounted component.
	EventTypeRender EventType = iota + 1
	// EventTypeDispatch runs a mutation on the loop.
	EventTypeDispatch
)

// Event is one unit of work for the loop.
type Event struct {
	Type      EventType
	Component string
	Fn        func() error
}

// eventQueue is a thread-safe unbounded FIFO queue for events.
//
// Storage is a ring buffer; the signal channel enables context-aware
// waiting in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events *queue.Queue
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: queue.New(),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events.Add(e)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.events.Length() == 0 {
		return Event{}, false
	}
	return q.events.Remove().(Event), true
}

// Wait returns a channel that signals when events may be available.
// It is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.events.Length()
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting events and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
