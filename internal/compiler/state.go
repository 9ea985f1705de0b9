package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Property is one top-level field of a state definition.
type Property struct {
	Key      string
	Value    any
	ReadOnly bool
	Hidden   bool
	Locked   bool
}

// Structural reports whether the property carries any attribute.
func (p Property) Structural() bool {
	return p.ReadOnly || p.Hidden || p.Locked
}

// StateDef is a compiled state definition.
type StateDef struct {
	// Properties in declaration order.
	Properties []Property
}

// Values returns every property value keyed by name.
func (d *StateDef) Values() map[string]any {
	m := make(map[string]any, len(d.Properties))
	for _, p := range d.Properties {
		m[p.Key] = p.Value
	}
	return m
}

// LoadStateFile reads and compiles a CUE state file.
func LoadStateFile(path string) (*StateDef, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return CompileStateSource(path, src)
}

// CompileStateSource compiles CUE source and extracts its `state` struct.
func CompileStateSource(filename string, src []byte) (*StateDef, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	stateVal := v.LookupPath(cue.ParsePath("state"))
	if !stateVal.Exists() {
		return nil, &CompileError{
			Field:   "state",
			Message: "state is required",
			Pos:     v.Pos(),
		}
	}
	return CompileState(stateVal)
}

// CompileState converts a concrete CUE struct into a StateDef.
//
// The CUE value should be the state struct itself, e.g.:
//
//	v := cuecontext.New().CompileString(`state: { count: 0 }`)
//	def, err := CompileState(v.LookupPath(cue.ParsePath("state")))
func CompileState(v cue.Value) (*StateDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   "state",
			Message: fmt.Sprintf("state must be a struct, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	def := &StateDef{}
	for iter.Next() {
		key := iter.Selector().Unquoted()
		field := iter.Value()

		value, err := convert(key, field)
		if err != nil {
			return nil, err
		}
		prop := Property{Key: key, Value: value}
		if err := parseAttributes(field, &prop); err != nil {
			return nil, err
		}
		def.Properties = append(def.Properties, prop)
	}

	return def, nil
}

// parseAttributes applies an @prop(...) field attribute.
func parseAttributes(v cue.Value, prop *Property) error {
	attr := v.Attribute("prop")
	if attr.Err() != nil {
		return nil // no attribute
	}

	for i := 0; i < attr.NumArgs(); i++ {
		flag, _ := attr.Arg(i)
		switch flag {
		case "":
		case "readonly":
			prop.ReadOnly = true
		case "hidden":
			prop.Hidden = true
		case "locked":
			prop.Locked = true
		default:
			return &CompileError{
				Field:   prop.Key,
				Message: fmt.Sprintf("unknown property attribute %q (want readonly, hidden or locked)", flag),
				Pos:     v.Pos(),
			}
		}
	}
	return nil
}

// convert maps a concrete CUE value to its Go representation: int64,
// float64, string, bool, nil, []any or map[string]any.
func convert(path string, v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b, nil

	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return n, nil

	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return f, nil

	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil

	case cue.BytesKind:
		b, err := v.Bytes()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return string(b), nil

	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := []any{}
		for i := 0; list.Next(); i++ {
			item, err := convert(fmt.Sprintf("%s[%d]", path, i), list.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil

	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := map[string]any{}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			item, err := convert(path+"."+key, iter.Value())
			if err != nil {
				return nil, err
			}
			out[key] = item
		}
		return out, nil

	default:
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
