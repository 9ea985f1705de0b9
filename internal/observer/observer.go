package observer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/statebox/internal/channel"
	"github.com/roach88/statebox/internal/container"
	"github.com/roach88/statebox/internal/ir"
)

// Selector derives a value from container state.
type Selector[T any] func(ir.State) T

// ErrNilSelector is returned by Bind when no selector is given.
var ErrNilSelector = errors.New("observer: selector is nil")

// Observer is a bound derived value with render-phase snapshot reads.
//
// Thread-safety: methods may be called from any goroutine, but the selector
// and the rerender callback are always invoked without internal locks held,
// so both may call back into the Observer or mutate the Container.
type Observer[T any] struct {
	c        *container.Container
	sel      Selector[T]
	rerender func()
	equal    func(a, b T) bool
	logger   *slog.Logger
	name     string

	listener *channel.Listener
	sub      *channel.Subscription

	mu          sync.Mutex
	snap        *ir.Snapshot
	renderPhase bool
	current     T // derived from snap
	lastSeen    T // last value the observer was signalled for
	capturing   bool
	pending     bool
	signals     int
	closed      bool
}

type config struct {
	equal  any
	logger *slog.Logger
	name   string
}

// Option configures an Observer.
type Option func(*config)

// WithEqual overrides derived-value comparison. Default: ir.Equal.
func WithEqual[T any](eq func(a, b T) bool) Option {
	return func(cfg *config) {
		if eq != nil {
			cfg.equal = eq
		}
	}
}

// WithLogger sets the logger for signal diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithName labels the observer in log output.
func WithName(name string) Option {
	return func(cfg *config) {
		cfg.name = name
	}
}

// Bind subscribes an Observer to c and performs the initial capture: the
// Observer starts inside a render phase with a Snapshot of the current state.
//
// rerender is invoked each time the derived value changes; it may be nil.
// Fails with ErrUnmanagedContainer for a nil Container.
func Bind[T any](c *container.Container, sel Selector[T], rerender func(), opts ...Option) (*Observer[T], error) {
	if c == nil {
		return nil, container.NewUnmanagedError(c)
	}
	if sel == nil {
		return nil, ErrNilSelector
	}

	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Observer[T]{
		c:        c,
		sel:      sel,
		rerender: rerender,
		equal:    func(a, b T) bool { return ir.Equal(a, b) },
		logger:   cfg.logger,
		name:     cfg.name,
	}
	if eq, ok := cfg.equal.(func(a, b T) bool); ok {
		o.equal = eq
	}

	// Subscribe before capturing so a mutation between the two is never lost.
	o.listener = channel.NewListener(o.onChange)
	o.sub = c.Subscribe(o.listener)
	o.capture()

	o.logger.Debug("observer bound", "observer", o.name, "channel", c.ChannelID(), "seq", o.snap.Seq())
	return o, nil
}

// capture takes a Snapshot, enters the render phase and derives the current
// value from the Snapshot. Changes delivered while the selector runs are
// deferred and replayed against the captured value afterwards.
func (o *Observer[T]) capture() {
	if o.snapshot() {
		o.recompute()
	}
}

// snapshot performs the capture and reports whether a change arrived while
// the selector ran.
func (o *Observer[T]) snapshot() bool {
	o.mu.Lock()
	o.capturing = true
	o.mu.Unlock()

	snap := o.c.Snapshot()
	value := o.sel(snap)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.snap = snap
	o.renderPhase = true
	o.current = value
	o.lastSeen = value
	o.capturing = false
	replay := o.pending
	o.pending = false
	return replay
}

func (o *Observer[T]) onChange(ir.Change) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.capturing {
		o.pending = true
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.recompute()
}

// recompute derives the value from the live Container and signals when it
// differs from the last value seen.
//
// Outside a render phase the signal is preceded by a fresh capture, so the
// observer re-enters the render phase holding a Snapshot that already shows
// the change. Inside a render phase the Snapshot in use is kept.
func (o *Observer[T]) recompute() {
	next := o.sel(o.c)

	o.mu.Lock()
	if o.closed || o.equal(next, o.lastSeen) {
		o.mu.Unlock()
		return
	}
	o.lastSeen = next
	o.signals++
	signals := o.signals
	recapture := !o.renderPhase
	o.mu.Unlock()

	var replay bool
	if recapture {
		replay = o.snapshot()
	}

	o.logger.Debug("observer signalled",
		"observer", o.name,
		"channel", o.c.ChannelID(),
		"signals", signals,
		"recaptured", recapture,
	)
	if o.rerender != nil {
		o.rerender()
	}
	if replay {
		o.recompute()
	}
}

// Value returns the derived value: from the Snapshot inside a render phase,
// from the live Container otherwise.
func (o *Observer[T]) Value() T {
	o.mu.Lock()
	if o.renderPhase {
		v := o.current
		o.mu.Unlock()
		return v
	}
	o.mu.Unlock()
	return o.sel(o.c)
}

// Read returns one property, resolved the same way as Value.
// Fails with ErrReservedKeyViolation for container.ReservedKey.
func (o *Observer[T]) Read(key string) (any, bool, error) {
	if key == container.ReservedKey {
		return o.c.Read(key)
	}

	o.mu.Lock()
	if o.renderPhase {
		snap := o.snap
		o.mu.Unlock()
		v, ok := snap.Get(key)
		return v, ok, nil
	}
	o.mu.Unlock()
	return o.c.Read(key)
}

// Snapshot returns the Snapshot captured by the most recent render phase.
func (o *Observer[T]) Snapshot() *ir.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// EnterRenderPhase captures a fresh Snapshot and serves reads from it until
// CommitRenderPhase.
func (o *Observer[T]) EnterRenderPhase() {
	o.capture()
}

// CommitRenderPhase ends the render phase; reads go to the live Container.
func (o *Observer[T]) CommitRenderPhase() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.renderPhase = false
}

// InRenderPhase reports whether reads are served from the Snapshot.
func (o *Observer[T]) InRenderPhase() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.renderPhase
}

// Signals returns how many times rerender has been triggered.
func (o *Observer[T]) Signals() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.signals
}

// Container returns the observed Container.
func (o *Observer[T]) Container() *container.Container {
	return o.c
}

// Close unsubscribes the Observer. Safe to call more than once.
func (o *Observer[T]) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.sub.Unsubscribe()
	o.logger.Debug("observer closed", "observer", o.name, "channel", o.c.ChannelID())
}
