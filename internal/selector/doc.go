// Package selector compiles selector expressions that derive a value from
// container state.
//
// Three languages are supported:
//
//	expr  count * 2, state.count > 0          (github.com/expr-lang/expr)
//	cel   count + 1, size(state)              (github.com/google/cel-go)
//	js    s => s.count, state.todos.length    (github.com/dop251/goja)
//
// Every language sees the enumerable keys of the state both as top-level
// variables and under `state`. A js source that evaluates to a function is
// called with the state object, so selectors can be written as arrow
// functions.
//
// Compiled programs are cached per language and source.
package selector
