// Package engine implements a reference render runtime for observers.
//
// The runtime mounts named components, each pairing a render phase boundary
// (usually an *observer.Observer) with a render function, and drives renders
// from a single-writer event loop.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every render and every dispatched mutation runs on one goroutine, so the
// cooperatively scheduled model holds: a mutation, its notifications and the
// observers' recomputation complete before the next event starts.
//
// Event Processing Flow:
//  1. Schedule(name) enqueues a render (coalesced while one is pending)
//  2. Dispatch(fn) enqueues a mutation
//  3. Run or Flush dequeues events in FIFO order
//  4. A render brackets the render function with EnterRenderPhase and
//     CommitRenderPhase, then reports a RenderRecord
//
// Render functions that write to the state they observe can schedule
// themselves forever. A per-component quota bounds the renders of one drain
// of the queue; exceeding it fails that render with RenderLoopError, which is
// logged, and processing continues.
package engine
