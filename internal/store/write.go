package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/statebox/internal/ir"
)

// WriteChange appends a change record.
//
// The value is serialized to canonical JSON per RFC 8785; a delete stores
// NULL. A value with no JSON form is still journaled, with NULL value and
// the reason in encode_error, and an *EncodeError is returned.
func (s *Store) WriteChange(ctx context.Context, change ir.Change) error {
	var (
		value  sql.NullString
		repr   string
		encErr error
	)
	if change.Op != ir.OpDelete {
		value, repr, encErr = marshalValue(change.Value)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO changes (seq, channel, op, key, value, repr, encode_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		change.Seq,
		change.Channel,
		string(change.Op),
		change.Key,
		value,
		repr,
		encodeErrorText(encErr),
	)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	if encErr != nil {
		return &EncodeError{Kind: EntryChange, Name: change.Key, Seq: change.Seq, Err: encErr}
	}

	return nil
}

// WriteRender appends a render record.
// Uses ON CONFLICT DO NOTHING so a (component, pass) pair is recorded once.
// An unencodable value is handled as in WriteChange.
func (s *Store) WriteRender(ctx context.Context, render ir.RenderRecord) error {
	value, repr, encErr := marshalValue(render.Value)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO renders (seq, component, pass, value, repr, encode_error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (component, pass) DO NOTHING
	`,
		render.Seq,
		render.Component,
		render.Pass,
		value,
		repr,
		encodeErrorText(encErr),
	)
	if err != nil {
		return fmt.Errorf("write render: %w", err)
	}
	if encErr != nil {
		return &EncodeError{Kind: EntryRender, Name: render.Component, Seq: render.Seq, Err: encErr}
	}

	return nil
}
