// Package store provides a SQLite-backed commit journal for containers and
// render runtimes.
//
// The journal is a diagnostics sink, not container persistence: state is
// never restored from it. It records:
//   - Changes: every committed write/delete (and, when recorded explicitly,
//     define) with its channel and logical sequence number
//   - Renders: every completed render pass of a mounted component
//
// # Ordering
//
// All ordering uses the seq column (the registry's logical clock), never
// timestamps. Queries order by seq ASC, then insertion id, and a merged
// trace puts a change before a render stamped with the same seq.
//
// # Values
//
// Values are stored as RFC 8785 canonical JSON. Values that have no JSON
// form (functions, structs, NaN) are stored as NULL with a %v rendering in
// the repr column.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
