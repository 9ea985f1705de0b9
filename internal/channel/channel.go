package channel

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/statebox/internal/ir"
)

// DefaultMaxListeners is the listener count above which a Channel logs a
// possible-leak warning.
const DefaultMaxListeners = 64

// Listener is a stable subscription handle wrapping a callback.
//
// Identity is pointer identity: two Listeners wrapping the same func are
// still distinct listeners.
type Listener struct {
	fn func(ir.Change)
}

// NewListener wraps fn in a Listener handle. A nil fn yields a listener that
// ignores every change.
func NewListener(fn func(ir.Change)) *Listener {
	return &Listener{fn: fn}
}

func (l *Listener) notify(change ir.Change) {
	if l.fn != nil {
		l.fn(change)
	}
}

// Notifier is the delivery surface a Container publishes through.
// Implemented by *Channel (private topology) and *Topic (shared bus).
type Notifier interface {
	Subscribe(l *Listener) *Subscription
	Publish(change ir.Change)
	Len() int
}

// Subscription is returned by Subscribe and releases the listener.
type Subscription struct {
	ch       *Channel
	listener *Listener
	entry    *entry
}

// Unsubscribe removes the listener. Calling it more than once is safe and has
// no effect after the first call.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.ch == nil {
		return
	}
	s.ch.remove(s.entry)
}

// Listener returns the handle this subscription was created for.
func (s *Subscription) Listener() *Listener {
	if s == nil {
		return nil
	}
	return s.listener
}

// Active reports whether the listener is still subscribed.
func (s *Subscription) Active() bool {
	if s == nil || s.ch == nil {
		return false
	}
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return s.entry.active
}

type entry struct {
	listener *Listener
	active   bool
	sub      *Subscription
}

// Channel is a synchronous publish/subscribe fan-out.
//
// Thread-safety: the subscriber set is guarded by a mutex, and the lock is
// never held while listeners run, so listeners may subscribe, unsubscribe or
// publish re-entrantly.
type Channel struct {
	mu           sync.Mutex
	name         string
	entries      []*entry
	index        map[*Listener]*entry
	maxListeners int
	warned       bool
	logger       *slog.Logger
}

// Option configures a Channel.
type Option func(*Channel)

// WithMaxListeners sets the warning threshold. Zero or negative disables the
// warning.
func WithMaxListeners(n int) Option {
	return func(c *Channel) {
		c.maxListeners = n
	}
}

// WithLogger sets the logger used for listener-limit warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithName labels the channel in log output.
func WithName(name string) Option {
	return func(c *Channel) {
		c.name = name
	}
}

// New creates an empty Channel.
func New(opts ...Option) *Channel {
	c := &Channel{
		index:        make(map[*Listener]*entry),
		maxListeners: DefaultMaxListeners,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe adds l to the active set and returns its Subscription.
// Subscribing a listener that is already active returns the existing
// Subscription.
func (c *Channel) Subscribe(l *Listener) *Subscription {
	if l == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.index[l]; ok {
		return e.sub
	}

	e := &entry{listener: l, active: true}
	e.sub = &Subscription{ch: c, listener: l, entry: e}
	c.entries = append(c.entries, e)
	c.index[l] = e

	if c.maxListeners > 0 && len(c.entries) > c.maxListeners && !c.warned {
		c.warned = true
		c.logger.Warn("possible listener leak: listener count exceeds limit",
			"channel", c.name,
			"listeners", len(c.entries),
			"limit", c.maxListeners,
		)
	}

	return e.sub
}

// Publish delivers change to every listener subscribed at call time.
//
// The subscriber list is copied before iterating. Each entry is re-checked
// immediately before delivery, so a listener unsubscribed by an earlier
// listener in the same pass is skipped.
func (c *Channel) Publish(change ir.Change) {
	c.mu.Lock()
	if len(c.entries) == 0 {
		c.mu.Unlock()
		return
	}
	pending := make([]*entry, len(c.entries))
	copy(pending, c.entries)
	c.mu.Unlock()

	for _, e := range pending {
		c.mu.Lock()
		active := e.active
		c.mu.Unlock()
		if !active {
			continue
		}
		e.listener.notify(change)
	}
}

// Len returns the number of active listeners.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear unsubscribes every listener.
func (c *Channel) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.active = false
	}
	c.entries = nil
	c.index = make(map[*Listener]*entry)
	c.warned = false
}

func (c *Channel) remove(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !e.active {
		return
	}
	e.active = false
	delete(c.index, e.listener)

	if i := slices.Index(c.entries, e); i >= 0 {
		c.entries = slices.Delete(c.entries, i, i+1)
	}

	if c.maxListeners > 0 && len(c.entries) <= c.maxListeners {
		c.warned = false
	}
}
