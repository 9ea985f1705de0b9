package harness

// Trace event types.
const (
	EventChange = "change"
	EventDefine = "define"
	EventSignal = "signal"
	EventRender = "render"
	EventRead   = "read"
	EventEnter  = "enter"
	EventCommit = "commit"
	EventUnbind = "unbind"
	EventError  = "error"
)

// TraceEvent is one observable occurrence during a scenario run.
type TraceEvent struct {
	Type      string `json:"type"`
	Op        string `json:"op,omitempty"`
	Key       string `json:"key,omitempty"`
	Value     any    `json:"value,omitempty"`
	Missing   bool   `json:"missing,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Observer  string `json:"observer,omitempty"`
	Component string `json:"component,omitempty"`
	Pass      int64  `json:"pass,omitempty"`
	Code      string `json:"code,omitempty"`
	Step      int    `json:"step,omitempty"`
	Seq       int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as declared and
	// every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every event in the order it happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the container's visible state after the last step.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends an event to the trace.
func (r *Result) AddEvent(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
