package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/statebox/internal/ir"
)

// marshalValue converts a container value to canonical JSON TEXT. repr
// always holds a %v rendering for diagnostics. A value with no JSON form
// yields a NULL value and the encoding error.
func marshalValue(v any) (sql.NullString, string, error) {
	repr := fmt.Sprintf("%v", v)
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return sql.NullString{}, repr, err
	}
	return sql.NullString{String: string(data), Valid: true}, repr, nil
}

// EncodeError reports a journal row written without its JSON value. The row
// keeps its position in the trace; its value reads back as nil and its
// encode_error column holds Err.
type EncodeError struct {
	Kind EntryKind
	Name string // change key or render component
	Seq  int64
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("journal %s %q at seq %d: value not encodable: %v", e.Kind, e.Name, e.Seq, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// IsEncodeError reports whether err is an *EncodeError.
func IsEncodeError(err error) bool {
	var ee *EncodeError
	return errors.As(err, &ee)
}

func encodeErrorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// unmarshalValue parses canonical JSON TEXT. Integers come back as int64,
// other numbers as float64.
func unmarshalValue(data sql.NullString) (any, error) {
	if !data.Valid {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(data.String))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = normalizeNumbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalizeNumbers(x[k])
		}
		return x
	default:
		return v
	}
}
