// Package container implements the mutation interceptor: the sole point
// through which state changes pass.
//
// A Container wraps a caller-supplied Target map and exposes explicit
// Read/Write/Delete/Define accessors. Validation always precedes mutation,
// so a failed call leaves the Target untouched.
//
// NOTIFICATION CONTRACT:
//   - Write notifies once per committed change, carrying {key, value}
//   - Write of a value Same as the current one is a no-op and does not notify
//   - Delete notifies only when a key was actually removed
//   - Define never notifies; Write is not implemented through Define
//   - Rejected calls never notify
//
// Notification is synchronous and happens after the mutation is applied and
// the lock released, so listeners observe the new state and may mutate the
// container re-entrantly.
//
// RESERVED KEY:
// ReservedKey carries the generated channel identifier for containers on a
// shared bus. External Read/Write/Delete/Define of it fails with
// ErrReservedKeyViolation; Get, Keys and Snapshot never expose it.
//
// The Target is owned by the Container once wrapped. Mutating the raw map
// directly bypasses interception and no listener will hear about it.
package container
