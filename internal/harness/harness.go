package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/roach88/statebox/internal/channel"
	"github.com/roach88/statebox/internal/compiler"
	"github.com/roach88/statebox/internal/container"
	"github.com/roach88/statebox/internal/engine"
	"github.com/roach88/statebox/internal/ir"
	"github.com/roach88/statebox/internal/observer"
	"github.com/roach88/statebox/internal/registry"
	"github.com/roach88/statebox/internal/selector"
	"github.com/roach88/statebox/internal/store"
)

// ErrCodeRenderLoop is the code reported for a render quota violation.
const ErrCodeRenderLoop = "RENDER_LOOP"

// Option configures a scenario run.
type Option func(*options)

type options struct {
	store  *store.Store
	logger *slog.Logger
}

// WithStore journals every change and render of the run into st.
func WithStore(st *store.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithLogger sets the logger handed to every component of the run.
// Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Harness holds the live objects of one scenario run.
type Harness struct {
	registry  *registry.Registry
	container *container.Container
	engine    *engine.Engine
	selectors *selector.Set
	recorder  *store.Recorder
	logger    *slog.Logger

	observers map[string]*observer.Observer[any]
	result    *Result
	step      int
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh registry with a fixed channel
// identifier generator, so the trace is reproducible.
//
// Execution flow:
//  1. Build the initial target (inline state or CUE state file)
//  2. Wrap it and apply structural property definitions
//  3. Bind observers and mount one component per observer
//  4. Flush the initial render
//  5. Execute steps, then evaluate assertions
//
// A non-nil error means the scenario could not be set up; step and
// assertion failures are reported through Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := &options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	h, err := setup(scenario, o)
	if err != nil {
		return nil, err
	}
	defer h.close()

	ctx := context.Background()
	if err := h.engine.Flush(ctx); err != nil {
		h.recordError(err)
		h.result.AddError(fmt.Sprintf("initial render: %v", err))
	}

	for i, st := range scenario.Steps {
		h.step = i + 1
		h.executeStep(ctx, st)
	}

	h.result.State = h.container.Snapshot().Map()

	for _, assertion := range scenario.Assertions {
		if err := h.evaluateAssertion(assertion); err != nil {
			h.result.AddError(err.Error())
		}
	}

	return h.result, nil
}

func setup(scenario *Scenario, o *options) (*Harness, error) {
	initial, props, err := initialState(scenario)
	if err != nil {
		return nil, err
	}

	regOpts := []registry.Option{
		registry.WithGenerator(channel.NewFixedGenerator(scenario.Name)),
		registry.WithLogger(o.logger),
	}
	if scenario.Topology == TopologyBus {
		regOpts = append(regOpts, registry.WithBus(channel.NewBus(channel.WithLogger(o.logger))))
	}
	reg := registry.New(regOpts...)

	c, err := reg.WrapOrGet(initial)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap initial state: %w", err)
	}

	h := &Harness{
		registry:  reg,
		container: c,
		selectors: selector.NewSet(selector.WithLogger(o.logger)),
		logger:    o.logger,
		observers: make(map[string]*observer.Observer[any]),
		result:    NewResult(),
	}

	if o.store != nil {
		h.recorder = store.NewRecorder(o.store, store.WithRecorderLogger(o.logger))
		if bus := reg.Bus(); bus != nil {
			bus.Tap(h.recorder.Listener())
		} else {
			c.Subscribe(h.recorder.Listener())
		}
	}

	for _, p := range props {
		d := container.Descriptor{Value: p.Value, ReadOnly: p.ReadOnly, Hidden: p.Hidden, Locked: p.Locked}
		if err := c.Define(p.Key, d); err != nil {
			return nil, fmt.Errorf("failed to define %q: %w", p.Key, err)
		}
		h.journalDefine(p.Key, p.Value)
	}

	// Subscribed before any observer so a change is traced before the
	// signals it causes.
	c.Subscribe(channel.NewListener(func(change ir.Change) {
		h.result.AddEvent(TraceEvent{
			Type:    EventChange,
			Op:      string(change.Op),
			Key:     change.Key,
			Value:   change.Value,
			Channel: change.Channel,
			Seq:     change.Seq,
		})
	}))

	engOpts := []engine.EngineOption{
		engine.WithClock(reg.Clock()),
		engine.WithLogger(o.logger),
		engine.WithRenderHook(func(r ir.RenderRecord) {
			h.result.AddEvent(TraceEvent{
				Type:      EventRender,
				Component: r.Component,
				Pass:      r.Pass,
				Value:     r.Value,
				Seq:       r.Seq,
			})
		}),
	}
	if h.recorder != nil {
		engOpts = append(engOpts, engine.WithRenderHook(h.recorder.RecordRender))
	}
	if scenario.MaxRenders > 0 {
		engOpts = append(engOpts, engine.WithMaxRenders(scenario.MaxRenders))
	}
	h.engine = engine.New(engOpts...)

	for _, spec := range scenario.Observers {
		if err := h.bind(spec); err != nil {
			h.close()
			return nil, fmt.Errorf("observer %q: %w", spec.Name, err)
		}
	}

	return h, nil
}

// initialState builds the target map and the properties that need a
// structural definition.
func initialState(scenario *Scenario) (map[string]any, []compiler.Property, error) {
	if scenario.StateFile == "" {
		initial := make(map[string]any, len(scenario.State))
		maps.Copy(initial, scenario.State)
		return initial, nil, nil
	}

	def, err := compiler.LoadStateFile(scenario.StateFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load state file: %w", err)
	}
	var props []compiler.Property
	for _, p := range def.Properties {
		if p.Structural() {
			props = append(props, p)
		}
	}
	initial := def.Values()
	for _, p := range props {
		delete(initial, p.Key)
	}
	return initial, props, nil
}

// bind compiles the observer's selector, binds it and mounts a component
// that renders the selected value.
func (h *Harness) bind(spec ObserverSpec) error {
	lang := spec.Lang
	if lang == "" {
		lang = string(selector.DefaultLang)
	}
	prog, err := h.selectors.Compile(lang, spec.Select)
	if err != nil {
		return err
	}

	name := spec.Name
	rerender := func() {
		h.result.AddEvent(TraceEvent{
			Type:     EventSignal,
			Observer: name,
			Seq:      h.registry.Clock().Current(),
		})
		h.engine.Schedule(name)
	}

	obs, err := observer.Bind[any](h.container, h.selectors.Func(prog), rerender,
		observer.WithName(name),
		observer.WithLogger(h.logger),
	)
	if err != nil {
		return err
	}
	h.observers[name] = obs

	render := func() (any, error) {
		return obs.Value(), nil
	}
	if spec.Effect != nil {
		effect, err := h.selectors.Compile(lang, spec.Effect.Select)
		if err != nil {
			obs.Close()
			return fmt.Errorf("effect: %w", err)
		}
		render = h.effectRender(obs, spec.Effect.Key, effect)
	}

	if err := h.engine.Mount(name, obs, render); err != nil {
		obs.Close()
		return err
	}
	return nil
}

// effectRender returns a render function that, after selecting, writes the
// effect's result to key. A nil result skips the write.
func (h *Harness) effectRender(obs *observer.Observer[any], key string, effect selector.Program) engine.RenderFunc {
	return func() (any, error) {
		value := obs.Value()
		next, err := effect.Eval(obs.Snapshot())
		if err != nil {
			return nil, err
		}
		if next != nil {
			if err := h.container.Write(key, next); err != nil {
				return nil, err
			}
		}
		return value, nil
	}
}

func (h *Harness) close() {
	for _, obs := range h.observers {
		obs.Close()
	}
	if h.engine != nil {
		h.engine.Stop()
	}
}

// executeStep runs one step and checks its outcome against the declared
// error code.
func (h *Harness) executeStep(ctx context.Context, st Step) {
	err := h.dispatchStep(ctx, st)

	switch {
	case err == nil && st.Error == "":
	case err == nil:
		h.result.AddError(fmt.Sprintf("step %d: expected error %s, got success", h.step, st.Error))
	default:
		code := h.recordError(err)
		if st.Error == "" {
			h.result.AddError(fmt.Sprintf("step %d: unexpected error: %v", h.step, err))
		} else if code != st.Error {
			h.result.AddError(fmt.Sprintf("step %d: expected error %s, got %s: %v", h.step, st.Error, code, err))
		}
	}
}

func (h *Harness) dispatchStep(ctx context.Context, st Step) error {
	switch {
	case st.Write != nil:
		return h.container.Write(st.Write.Key, st.Write.Value)

	case st.Delete != nil:
		_, err := h.container.Delete(st.Delete.Key)
		return err

	case st.Define != nil:
		d := st.Define
		err := h.container.Define(d.Key, container.Descriptor{
			Value:    d.Value,
			ReadOnly: d.ReadOnly,
			Hidden:   d.Hidden,
			Locked:   d.Locked,
		})
		if err != nil {
			return err
		}
		h.result.AddEvent(TraceEvent{
			Type:  EventDefine,
			Key:   d.Key,
			Value: d.Value,
			Seq:   h.registry.Clock().Current(),
		})
		h.journalDefine(d.Key, d.Value)
		return nil

	case st.Read != nil:
		return h.read(st.Read)

	case st.Expect != nil:
		h.expect(st.Expect)
		return nil

	case st.Enter != "":
		h.observers[st.Enter].EnterRenderPhase()
		h.result.AddEvent(TraceEvent{
			Type:     EventEnter,
			Observer: st.Enter,
			Seq:      h.observers[st.Enter].Snapshot().Seq(),
		})
		return nil

	case st.Commit != "":
		h.observers[st.Commit].CommitRenderPhase()
		h.result.AddEvent(TraceEvent{
			Type:     EventCommit,
			Observer: st.Commit,
			Seq:      h.registry.Clock().Current(),
		})
		return nil

	case st.Unbind != "":
		if err := h.engine.Unmount(st.Unbind); err != nil {
			return err
		}
		h.result.AddEvent(TraceEvent{
			Type:     EventUnbind,
			Observer: st.Unbind,
			Seq:      h.registry.Clock().Current(),
		})
		return nil

	case st.Flush:
		return h.engine.Flush(ctx)
	}

	return fmt.Errorf("step has no action")
}

func (h *Harness) read(r *ReadStep) error {
	var (
		value any
		ok    bool
		err   error
	)
	if r.Observer != "" {
		value, ok, err = h.observers[r.Observer].Read(r.Key)
	} else {
		value, ok, err = h.container.Read(r.Key)
	}
	if err != nil {
		return err
	}

	event := TraceEvent{
		Type:     EventRead,
		Key:      r.Key,
		Observer: r.Observer,
		Seq:      h.registry.Clock().Current(),
	}
	if ok {
		event.Value = value
	} else {
		event.Missing = true
	}
	h.result.AddEvent(event)

	switch {
	case r.Missing && ok:
		h.result.AddError(fmt.Sprintf("step %d: expected %q to be missing, got %v", h.step, r.Key, value))
	case r.Expect != nil && !ok:
		h.result.AddError(fmt.Sprintf("step %d: expected %q = %v, key is missing", h.step, r.Key, r.Expect))
	case r.Expect != nil && !valuesEqual(r.Expect, value):
		h.result.AddError(fmt.Sprintf("step %d: expected %q = %v, got %v", h.step, r.Key, r.Expect, value))
	}
	return nil
}

func (h *Harness) expect(e *ExpectStep) {
	if e.Observer != "" {
		obs := h.observers[e.Observer]
		if e.Value != nil {
			if got := obs.Value(); !valuesEqual(e.Value, got) {
				h.result.AddError(fmt.Sprintf("step %d: observer %s: expected value %v, got %v", h.step, e.Observer, e.Value, got))
			}
		}
		if e.Signals != nil {
			if got := obs.Signals(); got != *e.Signals {
				h.result.AddError(fmt.Sprintf("step %d: observer %s: expected %d signals, got %d", h.step, e.Observer, *e.Signals, got))
			}
		}
		if e.Renders != nil {
			if got := h.engine.Passes(e.Observer); got != *e.Renders {
				h.result.AddError(fmt.Sprintf("step %d: observer %s: expected %d renders, got %d", h.step, e.Observer, *e.Renders, got))
			}
		}
	}
	if len(e.State) > 0 {
		if msg := matchState(h.container, e.State); msg != "" {
			h.result.AddError(fmt.Sprintf("step %d: %s", h.step, msg))
		}
	}
}

// recordError appends an error event and returns its code.
func (h *Harness) recordError(err error) string {
	code := ErrorCode(err)
	h.result.AddEvent(TraceEvent{
		Type: EventError,
		Code: code,
		Step: h.step,
		Seq:  h.registry.Clock().Current(),
	})
	return code
}

func (h *Harness) journalDefine(key string, value any) {
	if h.recorder == nil {
		return
	}
	h.recorder.RecordChange(ir.Change{
		Op:      ir.OpDefine,
		Key:     key,
		Value:   value,
		Seq:     h.registry.Clock().Current(),
		Channel: h.container.ChannelID(),
	})
}

// ErrorCode maps an error from any layer to the code scenarios declare.
func ErrorCode(err error) string {
	if engine.IsRenderLoopError(err) {
		return ErrCodeRenderLoop
	}
	var rt *engine.RuntimeError
	if errors.As(err, &rt) {
		return string(rt.Code)
	}
	if code := container.CodeOf(err); code != "" {
		return string(code)
	}
	var eval *selector.EvaluationError
	if errors.As(err, &eval) {
		return "EVALUATION_FAILED"
	}
	return "ERROR"
}
