package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/statebox/internal/container"
	"github.com/roach88/statebox/internal/ir"
)

// DefaultMaxRenders is the default render quota per component per drain.
const DefaultMaxRenders = 100

// Phaser is the render phase boundary of a component.
// Implemented by *observer.Observer.
type Phaser interface {
	EnterRenderPhase()
	CommitRenderPhase()
}

// Closer is implemented by a Phaser that holds a subscription. Unmount
// calls Close, so detaching a component unsubscribes its observer.
// Implemented by *observer.Observer.
type Closer interface {
	Close()
}

// RenderFunc produces a component's output. It runs inside the render phase.
type RenderFunc func() (any, error)

type component struct {
	name   string
	phaser Phaser
	render RenderFunc
}

// Engine is the single-writer render loop.
//
// Thread-safety model:
//   - Mount, Unmount, Schedule, Dispatch, Stop: safe from any goroutine
//   - Run, Flush: must not be called concurrently with each other
//
// Render and dispatch functions run without engine locks held, so they may
// schedule renders and dispatch further mutations.
type Engine struct {
	mu         sync.Mutex
	components map[string]*component
	pending    map[string]bool
	passes     map[string]int64 // survives Unmount so pass numbers stay unique per name

	queue      *eventQueue
	clock      *container.Clock
	logger     *slog.Logger
	maxRenders int
	quotas     map[string]*QuotaEnforcer // touched only by the loop
	onRender   []func(ir.RenderRecord)
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxRenders sets the render quota per component per drain.
//
// Default: 100 renders (DefaultMaxRenders).
func WithMaxRenders(n int) EngineOption {
	return func(e *Engine) {
		e.maxRenders = n
	}
}

// WithClock sets the clock used to stamp render records. Pass the
// registry's clock so renders and changes share one sequence.
func WithClock(clock *container.Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRenderHook registers fn to receive a record after every render.
func WithRenderHook(fn func(ir.RenderRecord)) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.onRender = append(e.onRender, fn)
		}
	}
}

// New creates an idle Engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		components: make(map[string]*component),
		pending:    make(map[string]bool),
		passes:     make(map[string]int64),
		queue:      newEventQueue(),
		clock:      container.NewClock(),
		logger:     slog.Default(),
		maxRenders: DefaultMaxRenders,
		quotas:     make(map[string]*QuotaEnforcer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mount registers a component and schedules its first render.
func (e *Engine) Mount(name string, phaser Phaser, render RenderFunc) error {
	if phaser == nil || render == nil {
		return fmt.Errorf("mount %s: phaser and render function are required", name)
	}

	e.mu.Lock()
	if _, exists := e.components[name]; exists {
		e.mu.Unlock()
		return &RuntimeError{
			Code:      ErrCodeDuplicateComponent,
			Message:   "component already mounted",
			Component: name,
		}
	}
	e.components[name] = &component{name: name, phaser: phaser, render: render}
	e.mu.Unlock()

	e.logger.Debug("component mounted", "component", name)
	if !e.Schedule(name) {
		return newStoppedError()
	}
	return nil
}

// Unmount removes a component and closes its Phaser when it implements
// Closer. A render already queued for it is dropped. Pass numbering for name
// continues if it is mounted again.
func (e *Engine) Unmount(name string) error {
	e.mu.Lock()
	c, exists := e.components[name]
	if !exists {
		e.mu.Unlock()
		return newUnknownComponentError(name)
	}
	delete(e.components, name)
	delete(e.pending, name)
	e.mu.Unlock()

	if closer, ok := c.phaser.(Closer); ok {
		closer.Close()
	}
	e.logger.Debug("component unmounted", "component", name, "passes", e.Passes(name))
	return nil
}

// Schedule queues a render of name. A render that is already pending is
// not queued twice. Returns false for an unknown component or a stopped
// engine.
func (e *Engine) Schedule(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.components[name]; !exists {
		return false
	}
	if e.pending[name] {
		return true
	}
	if !e.queue.Enqueue(Event{Type: EventTypeRender, Component: name}) {
		return false
	}
	e.pending[name] = true
	return true
}

// Dispatch queues fn to run on the loop. Returns false once stopped.
func (e *Engine) Dispatch(fn func() error) bool {
	if fn == nil {
		return false
	}
	return e.queue.Enqueue(Event{Type: EventTypeDispatch, Fn: fn})
}

// Pending returns the number of queued events.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Passes returns how many times name has rendered, across every mount.
func (e *Engine) Passes(name string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.passes[name]
}

// Flush processes queued events until the queue is empty, including events
// queued while flushing. Processing errors are logged and processing
// continues; they are returned joined once the queue is drained.
func (e *Engine) Flush(ctx context.Context) error {
	var errs []error
	defer e.resetQuotas()

	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		event, ok := e.queue.TryDequeue()
		if !ok {
			return errors.Join(errs...)
		}
		if err := e.processEvent(event); err != nil {
			e.logEventError(event, err)
			errs = append(errs, err)
		}
	}
}

// Run starts the loop. Blocks until ctx is cancelled or Stop is called.
//
// On event processing failure the error is logged with the event context
// and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(event); err != nil {
				e.logEventError(event, err)
			}
			continue
		}

		// Queue drained: every component gets a fresh quota.
		e.resetQuotas()

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue, which causes Run to return once it is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) processEvent(event Event) error {
	switch event.Type {
	case EventTypeRender:
		return e.processRender(event.Component)

	case EventTypeDispatch:
		if err := event.Fn(); err != nil {
			return newDispatchError(err)
		}
		return nil

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func (e *Engine) processRender(name string) error {
	e.mu.Lock()
	c, ok := e.components[name]
	delete(e.pending, name)
	e.mu.Unlock()

	if !ok {
		e.logger.Debug("render skipped: component unmounted", "component", name)
		return nil
	}

	quota, exists := e.quotas[name]
	if !exists {
		quota = NewQuotaEnforcer(e.maxRenders)
		e.quotas[name] = quota
	}
	if err := quota.Check(name); err != nil {
		return err
	}

	c.phaser.EnterRenderPhase()
	value, err := c.render()
	c.phaser.CommitRenderPhase()
	if err != nil {
		return newRenderError(name, err)
	}

	e.mu.Lock()
	e.passes[name]++
	record := ir.RenderRecord{
		Component: name,
		Pass:      e.passes[name],
		Value:     value,
		Seq:       e.clock.Current(),
	}
	e.mu.Unlock()

	e.logger.Debug("component rendered",
		"component", name,
		"pass", record.Pass,
		"seq", record.Seq,
	)
	for _, fn := range e.onRender {
		fn(record)
	}
	return nil
}

func (e *Engine) resetQuotas() {
	clear(e.quotas)
}

func (e *Engine) logEventError(event Event, err error) {
	var loop *RenderLoopError
	if errors.As(err, &loop) {
		e.logger.Warn("render quota exceeded",
			"component", loop.Component,
			"renders", loop.Renders,
			"limit", loop.Limit,
		)
		return
	}

	switch event.Type {
	case EventTypeRender:
		e.logger.Error("render failed",
			"component", event.Component,
			"error", err,
		)
	default:
		e.logger.Error("event processing failed",
			"event_type", event.Type,
			"error", err,
		)
	}
}
