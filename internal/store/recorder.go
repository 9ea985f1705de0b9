package store

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/statebox/internal/channel"
	"github.com/roach88/statebox/internal/ir"
)

// Recorder journals delivered changes and completed renders.
//
// Write failures are logged and counted, never returned: a Recorder sits on
// the notification path and must not disturb delivery to other listeners.
type Recorder struct {
	store    *Store
	logger   *slog.Logger
	listener *channel.Listener
	failures atomic.Int64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger for write failures.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.listener = channel.NewListener(r.RecordChange)
	return r
}

// Listener returns the stable listener to subscribe to a container, a
// channel or a bus tap.
func (r *Recorder) Listener() *channel.Listener {
	return r.listener
}

// RecordChange journals one change.
func (r *Recorder) RecordChange(change ir.Change) {
	if err := r.store.WriteChange(context.Background(), change); err != nil {
		r.failures.Add(1)
		r.logger.Log(context.Background(), failureLevel(err), "journal write failed",
			"op", change.Op,
			"key", change.Key,
			"seq", change.Seq,
			"channel", change.Channel,
			"error", err,
		)
	}
}

// RecordRender journals one render. Its signature matches
// engine.WithRenderHook.
func (r *Recorder) RecordRender(render ir.RenderRecord) {
	if err := r.store.WriteRender(context.Background(), render); err != nil {
		r.failures.Add(1)
		r.logger.Log(context.Background(), failureLevel(err), "journal write failed",
			"component", render.Component,
			"pass", render.Pass,
			"seq", render.Seq,
			"error", err,
		)
	}
}

// failureLevel is Warn for a row journaled without its value and Error for a
// row that was not written at all.
func failureLevel(err error) slog.Level {
	if IsEncodeError(err) {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// Failures returns the number of journal writes that failed or lost their
// value.
func (r *Recorder) Failures() int64 {
	return r.failures.Load()
}
