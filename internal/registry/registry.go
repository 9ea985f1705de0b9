// Package registry maps Target identity to its Container, guaranteeing one
// Container per Target without keeping either alive.
//
// Entries hold weak.Pointer values keyed by the Target map's address. When
// the last external reference to a Container is dropped, the garbage
// collector reclaims it and a runtime cleanup removes the entry (and, on the
// shared-bus topology, releases the Container's topic).
package registry

import (
	"log/slog"
	"reflect"
	"runtime"
	"sync"
	"weak"

	"github.com/roach88/statebox/internal/channel"
	"github.com/roach88/statebox/internal/container"
)

// Metadata is the interception metadata of a managed Container.
type Metadata struct {
	// Target is the original mapping, owned by the Container.
	Target map[string]any

	// Listeners is the Container's listener set (private Channel or bus Topic).
	Listeners channel.Notifier

	// ChannelID is the generated identifier on the shared-bus topology, or "".
	ChannelID string
}

type entry struct {
	ref weak.Pointer[container.Container]
}

// cleanupArg is passed to runtime.AddCleanup; it must not reference the
// Container itself.
type cleanupArg struct {
	key       uintptr
	ref       weak.Pointer[container.Container]
	channelID string
}

// Registry is the identity registry.
//
// Thread-safety: all methods are safe for concurrent use. Cleanups run on a
// runtime goroutine and take the same lock.
type Registry struct {
	mu           sync.Mutex
	entries      map[uintptr]*entry
	bus          *channel.Bus
	gen          channel.Generator
	clock        *container.Clock
	logger       *slog.Logger
	maxListeners int
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus selects the shared-bus topology: every Container gets a generated
// channel identifier and a Topic on bus instead of a private Channel.
func WithBus(bus *channel.Bus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

// WithGenerator sets the channel identifier generator (bus topology only).
// Default: channel.UUIDv7Generator.
func WithGenerator(gen channel.Generator) Option {
	return func(r *Registry) {
		if gen != nil {
			r.gen = gen
		}
	}
}

// WithClock sets the clock shared by all Containers of this registry.
func WithClock(clock *container.Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the logger passed to Containers and private Channels.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxListeners sets the per-Channel listener warning threshold for
// private Channels (bus topics take their options from the Bus).
func WithMaxListeners(n int) Option {
	return func(r *Registry) {
		r.maxListeners = n
	}
}

// New creates an empty Registry using private Channels by default.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:      make(map[uintptr]*entry),
		gen:          channel.UUIDv7Generator{},
		clock:        container.NewClock(),
		logger:       slog.Default(),
		maxListeners: channel.DefaultMaxListeners,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WrapOrGet returns the Container for target, creating and registering it on
// first use.
//
// target may be a map[string]any (or ir.Target) or a *container.Container.
// A Container managed by this registry is returned unchanged; one from
// another registry fails with ErrUnmanagedContainer. Any other value,
// including a nil map, fails with ErrInvalidTarget.
func (r *Registry) WrapOrGet(target any) (*container.Container, error) {
	switch t := target.(type) {
	case *container.Container:
		if !r.owns(t) {
			return nil, container.NewUnmanagedError(t)
		}
		return t, nil
	case map[string]any:
		if t == nil {
			return nil, container.NewInvalidTargetError(target)
		}
		return r.wrapMap(t)
	default:
		rv := reflect.ValueOf(target)
		if rv.Kind() == reflect.Map && !rv.IsNil() && rv.Type().ConvertibleTo(targetType) {
			return r.wrapMap(rv.Convert(targetType).Interface().(map[string]any))
		}
		return nil, container.NewInvalidTargetError(target)
	}
}

// targetType is map[string]any. Named map types with the same underlying
// type convert to it without copying.
var targetType = reflect.TypeOf(map[string]any(nil))

func (r *Registry) wrapMap(target map[string]any) (*container.Container, error) {
	key := identity(target)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		if c := e.ref.Value(); c != nil {
			return c, nil
		}
		// The previous Container was collected and the address reused by a
		// new map before its cleanup ran.
		delete(r.entries, key)
	}

	opts := []container.Option{
		container.WithClock(r.clock),
		container.WithLogger(r.logger),
	}
	var channelID string
	if r.bus != nil {
		channelID = r.gen.Generate()
		opts = append(opts,
			container.WithChannelID(channelID),
			container.WithNotifier(r.bus.Topic(channelID)),
		)
	} else {
		opts = append(opts, container.WithNotifier(channel.New(
			channel.WithLogger(r.logger),
			channel.WithMaxListeners(r.maxListeners),
		)))
	}

	c, err := container.New(target, opts...)
	if err != nil {
		if channelID != "" {
			r.bus.Release(channelID)
		}
		return nil, err
	}

	ref := weak.Make(c)
	r.entries[key] = &entry{ref: ref}
	runtime.AddCleanup(c, r.reclaim, cleanupArg{key: key, ref: ref, channelID: channelID})

	r.logger.Debug("container registered", "channel", channelID, "entries", len(r.entries))
	return c, nil
}

// reclaim removes the entry of a collected Container.
func (r *Registry) reclaim(arg cleanupArg) {
	r.mu.Lock()
	if e, ok := r.entries[arg.key]; ok && e.ref == arg.ref {
		delete(r.entries, arg.key)
	}
	remaining := len(r.entries)
	r.mu.Unlock()

	if arg.channelID != "" && r.bus != nil {
		r.bus.Release(arg.channelID)
	}
	r.logger.Debug("container reclaimed", "channel", arg.channelID, "entries", remaining)
}

// MetadataOf returns the metadata for a managed Container. The second return
// is false for anything this registry does not manage, including raw maps.
func (r *Registry) MetadataOf(v any) (*Metadata, bool) {
	c, ok := v.(*container.Container)
	if !ok || !r.owns(c) {
		return nil, false
	}
	return &Metadata{
		Target:    c.Unwrap(),
		Listeners: c.Notifier(),
		ChannelID: c.ChannelID(),
	}, true
}

// Require returns v as a managed Container or fails with
// ErrUnmanagedContainer.
func (r *Registry) Require(v any) (*container.Container, error) {
	c, ok := v.(*container.Container)
	if !ok || !r.owns(c) {
		return nil, container.NewUnmanagedError(v)
	}
	return c, nil
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Bus returns the shared bus, or nil on the private topology.
func (r *Registry) Bus() *channel.Bus {
	return r.bus
}

// Clock returns the clock shared by this registry's Containers.
func (r *Registry) Clock() *container.Clock {
	return r.clock
}

func (r *Registry) owns(c *container.Container) bool {
	if c == nil {
		return false
	}
	key := identity(c.Unwrap())

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	return ok && e.ref.Value() == c
}

// identity returns the address of a map's runtime header.
func identity(m map[string]any) uintptr {
	return reflect.ValueOf(m).Pointer()
}
