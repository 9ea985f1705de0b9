// Package ir provides the shared value types for statebox.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// data model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Container values are opaque (any); ir never interprets them beyond
//     equality and canonical encoding
//   - Snapshots are immutable once constructed
//   - Logical sequence numbers only, never wall-clock timestamps
//   - All JSON tags use snake_case
package ir
