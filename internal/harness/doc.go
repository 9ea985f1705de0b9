// Package harness runs YAML scenarios against a container, its observers and
// the reference render runtime, and records a deterministic trace.
//
// # Scenario Format
//
//	name: counter_lifecycle
//	description: "Observer re-renders once per committed change"
//	topology: private            # or bus
//	state: { count: 0 }          # or state_file: counter.cue
//	observers:
//	  - name: counter
//	    select: count            # expr by default
//	    lang: expr               # expr | cel | js
//	steps:
//	  - write: { key: count, value: 1 }
//	  - flush: true
//	  - expect: { observer: counter, value: 1, signals: 1 }
//	  - unbind: counter
//	  - write: { key: __statebox_channel__, value: x }
//	    error: RESERVED_KEY
//	assertions:
//	  - type: trace_count
//	    event: signal
//	    observer: counter
//	    count: 1
//
// # Step Types
//
//   - write, delete, define: container mutations
//   - read: a read through an observer (render-phase aware) or the container
//   - enter, commit: explicit render phase boundaries for one observer
//   - flush: drain the render runtime
//   - unbind: close an observer and unmount its component
//   - expect: check an observer's value, signal and render counts, or state
//
// A step may name the error code it is expected to fail with.
//
// # Deterministic Testing
//
// Channel identifiers come from a fixed generator and every trace event is
// stamped from the registry's logical clock, so the same scenario produces a
// byte-identical trace on every run. Traces are compared against golden
// files with goldie.
package harness
