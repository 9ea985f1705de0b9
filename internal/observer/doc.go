// Package observer binds a derived value over a Container to a rendering
// runtime without tearing.
//
// An Observer alternates between two phases. Inside a render phase every read
// resolves against an immutable Snapshot captured when the phase was
// entered, so all reads of one render agree with each other even if a
// mutation commits mid-render. Outside a render phase reads go to the live
// Container.
//
// The Observer subscribes a single stable listener for its whole lifetime.
// On every delivered change it recomputes the derived value from the live
// Container and, when that value differs from the one last seen, invokes the
// rerender callback. If no render is in progress the Observer first captures
// a fresh Snapshot and re-enters the render phase, so the callback already
// sees the new value. A render in progress keeps its Snapshot; the runtime
// captures a fresh one when it enters the next render phase.
//
// Typical lifecycle:
//
//	obs, err := observer.Bind(c, func(s ir.State) any { v, _ := s.Get("count"); return v }, schedule)
//	// render: obs.EnterRenderPhase(); v := obs.Value(); ...; obs.CommitRenderPhase()
//	defer obs.Close()
package observer
