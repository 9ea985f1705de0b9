// Package channel implements synchronous change notification.
//
// A Channel holds a set of Listeners and delivers each committed Change to
// every listener subscribed at the moment Publish is called, on the caller's
// goroutine, before Publish returns.
//
// DELIVERY GUARANTEES:
//   - Single pass: no listener is invoked twice per Publish
//   - Listeners added during a Publish are not invoked by that Publish
//   - Listeners removed during a Publish are not invoked after removal
//   - Unsubscribe is idempotent
//
// LISTENER IDENTITY:
// Go funcs are not comparable, so a Listener is a pointer handle created
// once with NewListener and reused. Subscribing the same handle twice is a
// no-op. Creating a fresh handle on every call subscribes a new listener
// each time; the max-listener warning exists to surface that mistake.
//
// TOPOLOGIES:
// A Container either owns a private Channel, or is given a Topic on a
// shared Bus keyed by a generated channel identifier. Both satisfy Notifier
// and provide the same guarantees. The Bus additionally lets a single
// consumer Tap every topic at once.
package channel
