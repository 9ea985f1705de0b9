package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/statebox/internal/ir"
)

// EntryKind distinguishes trace entries.
type EntryKind string

const (
	EntryChange EntryKind = "change"
	EntryRender EntryKind = "render"
)

// TraceEntry is one row of the merged journal.
type TraceEntry struct {
	Kind   EntryKind        `json:"kind"`
	Seq    int64            `json:"seq"`
	Change *ir.Change       `json:"change,omitempty"`
	Render *ir.RenderRecord `json:"render,omitempty"`

	// EncodeError is set when the value could not be journaled; the
	// entry's value is then nil.
	EncodeError string `json:"encode_error,omitempty"`
}

// ReadChanges returns change records ordered by seq ASC, id ASC.
// An empty channel returns the changes of every channel.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) ReadChanges(ctx context.Context, channel string) ([]ir.Change, error) {
	query := `
		SELECT seq, channel, op, key, value
		FROM changes
		ORDER BY seq ASC, id ASC
	`
	args := []any{}
	if channel != "" {
		query = `
			SELECT seq, channel, op, key, value
			FROM changes
			WHERE channel = ?
			ORDER BY seq ASC, id ASC
		`
		args = append(args, channel)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []ir.Change{}
	for rows.Next() {
		var (
			c     ir.Change
			op    string
			value sql.NullString
		)
		if err := rows.Scan(&c.Seq, &c.Channel, &op, &c.Key, &value); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.Op = ir.Op(op)
		if c.Value, err = unmarshalValue(value); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}

	return changes, nil
}

// ReadRenders returns render records ordered by seq ASC, id ASC.
// An empty component returns every component's renders.
func (s *Store) ReadRenders(ctx context.Context, component string) ([]ir.RenderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, component, pass, value
		FROM renders
		WHERE ? = '' OR component = ?
		ORDER BY seq ASC, id ASC
	`, component, component)
	if err != nil {
		return nil, fmt.Errorf("query renders: %w", err)
	}
	defer rows.Close()

	renders := []ir.RenderRecord{}
	for rows.Next() {
		var (
			r     ir.RenderRecord
			value sql.NullString
		)
		if err := rows.Scan(&r.Seq, &r.Component, &r.Pass, &value); err != nil {
			return nil, fmt.Errorf("scan render: %w", err)
		}
		if r.Value, err = unmarshalValue(value); err != nil {
			return nil, err
		}
		renders = append(renders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate renders: %w", err)
	}

	return renders, nil
}

// ReadTrace returns changes and renders merged by seq. At equal seq a change
// precedes a render, since a render stamped with seq observed that change.
func (s *Store) ReadTrace(ctx context.Context) ([]TraceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT 0 AS kind, seq, id, channel, op, key, value, encode_error, '' AS component, 0 AS pass
		FROM changes
		UNION ALL
		SELECT 1 AS kind, seq, id, '', '', '', value, encode_error, component, pass
		FROM renders
		ORDER BY seq ASC, kind ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	entries := []TraceEntry{}
	for rows.Next() {
		var (
			kind, id  int64
			seq, pass int64
			channel   string
			op, key   string
			component string
			value     sql.NullString
			encErr    string
		)
		if err := rows.Scan(&kind, &seq, &id, &channel, &op, &key, &value, &encErr, &component, &pass); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		v, err := unmarshalValue(value)
		if err != nil {
			return nil, err
		}

		if kind == 0 {
			entries = append(entries, TraceEntry{
				Kind:        EntryChange,
				Seq:         seq,
				Change:      &ir.Change{Op: ir.Op(op), Key: key, Value: v, Seq: seq, Channel: channel},
				EncodeError: encErr,
			})
			continue
		}
		entries = append(entries, TraceEntry{
			Kind:        EntryRender,
			Seq:         seq,
			Render:      &ir.RenderRecord{Component: component, Pass: pass, Value: v, Seq: seq},
			EncodeError: encErr,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}

	return entries, nil
}
