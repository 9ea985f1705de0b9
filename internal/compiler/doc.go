// Package compiler turns CUE state definitions into initial container state.
//
// A state file declares a top-level `state` struct. Every field must be
// concrete. A field attribute marks structural properties:
//
//	state: {
//		count: 0
//		version: "1.2.0" @prop(readonly, locked)
//		token: "secret" @prop(hidden)
//	}
//
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
package compiler
