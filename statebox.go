// Package statebox provides observable state containers.
//
// A Container wraps a plain map and is the only path through which the map
// changes. Every committed write or delete is delivered synchronously to the
// container's listeners. Observers derive a value from a container with a
// selector, are signalled when that value changes, and serve reads from a
// stable snapshot while a render pass is in progress, so a pass never sees
// two different states.
//
//	rt := statebox.New()
//	c, _ := rt.CreateContainer(map[string]any{"count": 0})
//	obs, _ := statebox.BindObserver(rt, c, func(s statebox.State) any {
//		v, _ := s.Get("count")
//		return v
//	}, func() { /* schedule a re-render */ })
//	statebox.CommitRenderPhase(obs)
//	_ = c.Write("count", 1) // rerender fires once
package statebox

import (
	"log/slog"

	"github.com/roach88/statebox/internal/channel"
	"github.com/roach88/statebox/internal/container"
	"github.com/roach88/statebox/internal/engine"
	"github.com/roach88/statebox/internal/ir"
	"github.com/roach88/statebox/internal/observer"
	"github.com/roach88/statebox/internal/registry"
	"github.com/roach88/statebox/internal/selector"
)

// Core types.
type (
	Container    = container.Container
	Descriptor   = container.Descriptor
	Change       = ir.Change
	State        = ir.State
	Snapshot     = ir.Snapshot
	Listener     = channel.Listener
	Subscription = channel.Subscription
	Error        = container.Error
	ErrorCode    = container.ErrorCode
	Engine       = engine.Engine
	RenderRecord = ir.RenderRecord
)

// Observer derives a value of type T from a Container.
type Observer[T any] = observer.Observer[T]

// Selector derives a value from container state.
type Selector[T any] = observer.Selector[T]

// ReservedKey is the key no caller may read, write, define or delete.
const ReservedKey = container.ReservedKey

// Error sentinels for errors.Is.
var (
	ErrInvalidTarget        = container.ErrInvalidTarget
	ErrReservedKeyViolation = container.ErrReservedKeyViolation
	ErrUnmanagedContainer   = container.ErrUnmanagedContainer
	ErrReadOnly             = container.ErrReadOnly
	ErrLocked               = container.ErrLocked
)

// NewListener returns a listener with a stable identity. Keep the returned
// value and subscribe it, rather than creating a new one per subscription.
func NewListener(fn func(Change)) *Listener {
	return channel.NewListener(fn)
}

// Phaser is implemented by every Observer regardless of its type parameter.
type Phaser = engine.Phaser

// ObserverOption configures an Observer.
type ObserverOption = observer.Option

// EngineOption configures an Engine.
type EngineOption = engine.EngineOption

// RenderFunc produces a mounted component's output.
type RenderFunc = engine.RenderFunc

// WithEqual sets the comparison used to decide whether a selected value
// changed. Defaults to canonical equality.
func WithEqual[T any](eq func(a, b T) bool) ObserverOption {
	return observer.WithEqual(eq)
}

// WithObserverName names an observer in log output.
func WithObserverName(name string) ObserverOption {
	return observer.WithName(name)
}

// WithMaxRenders bounds the render passes a component may take within one
// flush before the engine reports a render loop.
func WithMaxRenders(n int) EngineOption {
	return engine.WithMaxRenders(n)
}

// WithRenderHook is called with the record of every completed render pass.
func WithRenderHook(fn func(RenderRecord)) EngineOption {
	return engine.WithRenderHook(fn)
}

// Option configures a Runtime.
type Option func(*config)

type config struct {
	logger       *slog.Logger
	bus          bool
	generator    channel.Generator
	maxListeners int
}

// WithLogger sets the logger used by the runtime and everything it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSharedBus routes every container's notifications through one shared
// bus keyed by a generated channel identifier, instead of a private
// listener set per container.
func WithSharedBus() Option {
	return func(c *config) {
		c.bus = true
	}
}

// WithGenerator sets the channel identifier generator used with
// WithSharedBus. Defaults to UUIDv7.
func WithGenerator(gen channel.Generator) Option {
	return func(c *config) {
		c.generator = gen
	}
}

// WithMaxListeners sets the per-container listener count above which a
// warning is logged.
func WithMaxListeners(n int) Option {
	return func(c *config) {
		c.maxListeners = n
	}
}

// Runtime owns the identity registry, the logical clock and the selector
// languages shared by its containers.
type Runtime struct {
	registry  *registry.Registry
	selectors *selector.Set
	logger    *slog.Logger
}

// New creates a Runtime.
func New(opts ...Option) *Runtime {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	regOpts := []registry.Option{registry.WithLogger(cfg.logger)}
	if cfg.bus {
		regOpts = append(regOpts, registry.WithBus(channel.NewBus(channel.WithLogger(cfg.logger))))
	}
	if cfg.generator != nil {
		regOpts = append(regOpts, registry.WithGenerator(cfg.generator))
	}
	if cfg.maxListeners > 0 {
		regOpts = append(regOpts, registry.WithMaxListeners(cfg.maxListeners))
	}

	return &Runtime{
		registry:  registry.New(regOpts...),
		selectors: selector.NewSet(selector.WithLogger(cfg.logger)),
		logger:    cfg.logger,
	}
}

// CreateContainer returns the Container for initial, wrapping it on first
// use. initial must be a string-keyed map (or one of this runtime's
// Containers); anything else fails with ErrInvalidTarget.
func (rt *Runtime) CreateContainer(initial any) (*Container, error) {
	return rt.registry.WrapOrGet(initial)
}

// Subscribe registers l with c. Fails with ErrUnmanagedContainer when c is
// not one of this runtime's Containers.
func (rt *Runtime) Subscribe(c any, l *Listener) (*Subscription, error) {
	managed, err := rt.registry.Require(c)
	if err != nil {
		return nil, err
	}
	return managed.Subscribe(l), nil
}

// Selector compiles a selector expression in lang ("expr", "cel" or "js").
// Evaluation failures are logged and yield nil.
func (rt *Runtime) Selector(lang, source string) (Selector[any], error) {
	prog, err := rt.selectors.Compile(lang, source)
	if err != nil {
		return nil, err
	}
	return rt.selectors.Func(prog), nil
}

// NewEngine returns a render runtime sharing this runtime's logical clock,
// so render records and changes are ordered on one timeline.
func (rt *Runtime) NewEngine(opts ...EngineOption) *Engine {
	base := []EngineOption{
		engine.WithClock(rt.registry.Clock()),
		engine.WithLogger(rt.logger),
	}
	return engine.New(append(base, opts...)...)
}

// BindObserver binds sel to c. The observer starts in a render phase over a
// fresh snapshot; rerender is called whenever the selected value changes.
// Fails with ErrUnmanagedContainer when c is not one of rt's Containers.
func BindObserver[T any](rt *Runtime, c any, sel Selector[T], rerender func(), opts ...ObserverOption) (*Observer[T], error) {
	managed, err := rt.registry.Require(c)
	if err != nil {
		return nil, err
	}
	opts = append([]ObserverOption{observer.WithLogger(rt.logger)}, opts...)
	return observer.Bind(managed, sel, rerender, opts...)
}

// EnterRenderPhase captures a fresh snapshot for h; reads through h resolve
// against it until CommitRenderPhase.
func EnterRenderPhase(h Phaser) {
	h.EnterRenderPhase()
}

// CommitRenderPhase ends h's render phase; reads resolve against the live
// Container again.
func CommitRenderPhase(h Phaser) {
	h.CommitRenderPhase()
}
