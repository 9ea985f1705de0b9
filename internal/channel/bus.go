package channel

import (
	"log/slog"
	"sync"

	"github.com/roach88/statebox/internal/ir"
)

// Bus is a shared physical notification bus multiplexing many logical
// channels, each keyed by a generated channel identifier.
//
// Every Topic has its own listener set. Taps receive every change published
// on any topic, after the topic's own listeners.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*Topic
	taps   *Channel
	opts   []Option
	logger *slog.Logger
}

// NewBus creates an empty Bus. The options are applied to every topic
// channel the bus creates.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		topics: make(map[string]*Topic),
		opts:   opts,
		taps:   New(append([]Option{WithName("bus-taps")}, opts...)...),
	}
	b.logger = b.taps.logger
	return b
}

// Topic returns the topic for id, creating it on first use.
func (b *Bus) Topic(id string) *Topic {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[id]; ok {
		return t
	}
	t := &Topic{
		id:  id,
		bus: b,
		ch:  New(append([]Option{WithName(id)}, b.opts...)...),
	}
	b.topics[id] = t
	b.logger.Debug("bus topic created", "channel", id)
	return t
}

// Lookup returns the topic for id if it exists.
func (b *Bus) Lookup(id string) (*Topic, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[id]
	return t, ok
}

// Release drops the topic for id and unsubscribes its listeners.
// Releasing an unknown id is a no-op.
func (b *Bus) Release(id string) {
	b.mu.Lock()
	t, ok := b.topics[id]
	delete(b.topics, id)
	b.mu.Unlock()

	if ok {
		t.ch.Clear()
		b.logger.Debug("bus topic released", "channel", id)
	}
}

// Tap subscribes l to every change published on any topic.
func (b *Bus) Tap(l *Listener) *Subscription {
	return b.taps.Subscribe(l)
}

// Len returns the number of live topics.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

// Topic is one logical channel on a Bus. It satisfies Notifier.
type Topic struct {
	id  string
	bus *Bus
	ch  *Channel
}

// ID returns the channel identifier.
func (t *Topic) ID() string {
	return t.id
}

// Subscribe adds l to this topic only.
func (t *Topic) Subscribe(l *Listener) *Subscription {
	return t.ch.Subscribe(l)
}

// Publish stamps change with the topic id and delivers it to the topic's
// listeners, then to the bus taps.
func (t *Topic) Publish(change ir.Change) {
	change.Channel = t.id
	t.ch.Publish(change)
	t.bus.taps.Publish(change)
}

// Len returns the number of listeners on this topic (taps excluded).
func (t *Topic) Len() int {
	return t.ch.Len()
}
