package container

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/statebox/internal/channel"
	"github.com/roach88/statebox/internal/ir"
)

// ReservedKey is the sentinel property name under which a Container exposes
// its channel identifier. It is held by the Container, never stored in the
// Target, and no caller may read, write, define or delete it.
const ReservedKey = "__statebox_channel__"

// Descriptor defines a property through Define.
// The zero value describes a plain writable, enumerable, configurable value.
type Descriptor struct {
	// Value is the property value.
	Value any

	// ReadOnly rejects later Writes with ErrReadOnly.
	ReadOnly bool

	// Hidden excludes the property from Keys, Len and Snapshot.Keys.
	// Hidden properties remain readable.
	Hidden bool

	// Locked rejects later Define and Delete calls with ErrLocked.
	Locked bool
}

type attrs uint8

const (
	attrReadOnly attrs = 1 << iota
	attrHidden
	attrLocked
)

func attrsOf(d Descriptor) attrs {
	var a attrs
	if d.ReadOnly {
		a |= attrReadOnly
	}
	if d.Hidden {
		a |= attrHidden
	}
	if d.Locked {
		a |= attrLocked
	}
	return a
}

// Container is a Target bound to interception and notification behavior.
//
// Thread-safety: reads and mutations are guarded by a RWMutex, but the
// ordering guarantees (notification fully delivered before the mutating call
// returns, no interleaving between commits) assume a single mutating
// goroutine. Route mutations through engine.Dispatch when a render loop runs
// on another goroutine.
type Container struct {
	mu        sync.RWMutex
	target    map[string]any
	attrs     map[string]attrs
	notifier  channel.Notifier
	channelID string
	clock     *Clock
	logger    *slog.Logger
}

// Option configures a Container.
type Option func(*Container)

// WithNotifier routes notifications through n instead of a private Channel.
func WithNotifier(n channel.Notifier) Option {
	return func(c *Container) {
		c.notifier = n
	}
}

// WithChannelID records the generated channel identifier.
func WithChannelID(id string) Option {
	return func(c *Container) {
		c.channelID = id
	}
}

// WithClock stamps commits from a shared clock.
func WithClock(clock *Clock) Option {
	return func(c *Container) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger used for mutation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New binds target to a new Container. target is owned, not copied.
//
// Fails with ErrInvalidTarget for a nil map and with ErrReservedKeyViolation
// if target already holds ReservedKey.
//
// Most callers should go through registry.WrapOrGet, which guarantees one
// Container per Target.
func New(target map[string]any, opts ...Option) (*Container, error) {
	if target == nil {
		return nil, NewInvalidTargetError(target)
	}
	if _, exists := target[ReservedKey]; exists {
		return nil, newReservedKeyError("definition")
	}

	c := &Container{
		target: target,
		attrs:  make(map[string]attrs),
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = channel.New(channel.WithLogger(c.logger))
	}
	return c, nil
}

// Read returns the current value of key and whether it exists.
// Fails with ErrReservedKeyViolation for ReservedKey.
func (c *Container) Read(key string) (any, bool, error) {
	if key == ReservedKey {
		return nil, false, newReservedKeyError("read")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.target[key]
	return v, ok, nil
}

// Get implements ir.State. ReservedKey reads as absent.
func (c *Container) Get(key string) (any, bool) {
	v, ok, err := c.Read(key)
	if err != nil {
		return nil, false
	}
	return v, ok
}

// Has reports whether key exists. ReservedKey is never reported.
func (c *Container) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Keys returns the enumerable keys in canonical order.
func (c *Container) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keysLocked()
}

func (c *Container) keysLocked() []string {
	keys := make([]string, 0, len(c.target))
	for k := range c.target {
		if k == ReservedKey || c.attrs[k]&attrHidden != 0 {
			continue
		}
		keys = append(keys, k)
	}
	slices.SortFunc(keys, ir.CompareKeys)
	return keys
}

// Len returns the number of enumerable keys.
func (c *Container) Len() int {
	return len(c.Keys())
}

// Write assigns value to key and notifies listeners with {key, value}.
//
// Writing a value that is Same as the current one commits nothing and does
// not notify. Fails with ErrReservedKeyViolation or ErrReadOnly without
// mutating.
func (c *Container) Write(key string, value any) error {
	if key == ReservedKey {
		return newReservedKeyError("write")
	}

	c.mu.Lock()
	if c.attrs[key]&attrReadOnly != 0 {
		c.mu.Unlock()
		return newReadOnlyError(key)
	}
	if old, exists := c.target[key]; exists && ir.Same(old, value) {
		c.mu.Unlock()
		c.logger.Debug("write skipped: value unchanged", "key", key, "channel", c.channelID)
		return nil
	}
	c.target[key] = value
	seq := c.clock.Next()
	c.mu.Unlock()

	c.logger.Debug("write committed", "key", key, "seq", seq, "channel", c.channelID)
	c.notifier.Publish(ir.Change{
		Op:      ir.OpWrite,
		Key:     key,
		Value:   value,
		Seq:     seq,
		Channel: c.channelID,
	})
	return nil
}

// Delete removes key and reports whether a property was removed.
// Listeners are notified only when it was.
//
// Fails with ErrReservedKeyViolation, or returns false with ErrLocked for a
// locked property.
func (c *Container) Delete(key string) (bool, error) {
	if key == ReservedKey {
		return false, newReservedKeyError("delete")
	}

	c.mu.Lock()
	if _, exists := c.target[key]; !exists {
		c.mu.Unlock()
		return false, nil
	}
	if c.attrs[key]&attrLocked != 0 {
		c.mu.Unlock()
		return false, newLockedError(key, "delete")
	}
	delete(c.target, key)
	delete(c.attrs, key)
	seq := c.clock.Next()
	c.mu.Unlock()

	c.logger.Debug("delete committed", "key", key, "seq", seq, "channel", c.channelID)
	c.notifier.Publish(ir.Change{
		Op:      ir.OpDelete,
		Key:     key,
		Seq:     seq,
		Channel: c.channelID,
	})
	return true, nil
}

// Define applies d to key. Definition is structural and never notifies.
//
// Fails with ErrReservedKeyViolation, or ErrLocked when key was previously
// defined as Locked.
func (c *Container) Define(key string, d Descriptor) error {
	if key == ReservedKey {
		return newReservedKeyError("definition")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attrs[key]&attrLocked != 0 {
		return newLockedError(key, "redefine")
	}
	c.target[key] = d.Value
	if a := attrsOf(d); a != 0 {
		c.attrs[key] = a
	} else {
		delete(c.attrs, key)
	}

	c.logger.Debug("property defined",
		"key", key,
		"read_only", d.ReadOnly,
		"hidden", d.Hidden,
		"locked", d.Locked,
		"channel", c.channelID,
	)
	return nil
}

// Describe returns the current descriptor for key.
func (c *Container) Describe(key string) (Descriptor, bool, error) {
	if key == ReservedKey {
		return Descriptor{}, false, newReservedKeyError("read")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.target[key]
	if !ok {
		return Descriptor{}, false, nil
	}
	a := c.attrs[key]
	return Descriptor{
		Value:    v,
		ReadOnly: a&attrReadOnly != 0,
		Hidden:   a&attrHidden != 0,
		Locked:   a&attrLocked != 0,
	}, true, nil
}

// Snapshot captures an immutable shallow copy of the visible state, stamped
// with the clock position of the last commit.
func (c *Container) Snapshot() *ir.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	values := make(map[string]any, len(c.target))
	var hidden map[string]bool
	for k, v := range c.target {
		if k == ReservedKey {
			continue
		}
		values[k] = v
		if c.attrs[k]&attrHidden != 0 {
			if hidden == nil {
				hidden = make(map[string]bool)
			}
			hidden[k] = true
		}
	}
	return ir.NewSnapshot(values, hidden, c.clock.Current())
}

// Subscribe registers l with the container's notifier.
func (c *Container) Subscribe(l *channel.Listener) *channel.Subscription {
	return c.notifier.Subscribe(l)
}

// Notifier returns the container's listener set.
func (c *Container) Notifier() channel.Notifier {
	return c.notifier
}

// ChannelID returns the generated channel identifier, or "" for a container
// with a private listener set.
func (c *Container) ChannelID() string {
	return c.channelID
}

// Seq returns the clock position of the most recent commit.
func (c *Container) Seq() int64 {
	return c.clock.Current()
}

// Unwrap returns the raw Target. Mutating it bypasses interception.
// The Target never holds ReservedKey, so a collected Container's Target can
// be wrapped again.
func (c *Container) Unwrap() map[string]any {
	return c.target
}
