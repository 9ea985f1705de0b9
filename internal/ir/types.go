package ir

// Target is the raw mutable mapping wrapped by a Container.
type Target = map[string]any

// Op identifies the kind of committed mutation carried by a Change.
type Op string

const (
	// OpWrite is a value assignment.
	OpWrite Op = "write"

	// OpDelete is a property removal.
	OpDelete Op = "delete"

	// OpDefine is a structural property definition. Define never notifies, so
	// OpDefine only appears in journal records, not in delivered changes.
	OpDefine Op = "define"
)

// Change is the payload delivered to listeners after a committed mutation.
type Change struct {
	// Op is the kind of mutation.
	Op Op `json:"op"`

	// Key is the property that changed.
	Key string `json:"key"`

	// Value is the new value (nil for OpDelete).
	Value any `json:"value,omitempty"`

	// Seq is the logical commit sequence number.
	Seq int64 `json:"seq"`

	// Channel is the generated channel identifier of the owning Container.
	// Empty when the Container uses a private listener set.
	Channel string `json:"channel,omitempty"`
}

// State is a read-only view of container state.
//
// Implemented by the live Container and by Snapshot, so selectors can be
// evaluated against either without knowing which one they received.
type State interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (any, bool)

	// Keys returns the enumerable keys in canonical order.
	Keys() []string

	// Len returns the number of enumerable keys.
	Len() int
}

// RenderRecord describes one completed render pass of a mounted component.
type RenderRecord struct {
	Component string `json:"component"`
	Pass      int64  `json:"pass"`
	Value     any    `json:"value,omitempty"`
	Seq       int64  `json:"seq"`
}
