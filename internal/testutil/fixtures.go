package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/statebox/internal/container"
	"github.com/roach88/statebox/internal/ir"
	"github.com/roach88/statebox/internal/registry"
)

// NewContainer wraps initial in a fresh registry and fails the test on error.
func NewContainer(t testing.TB, initial map[string]any) *container.Container {
	t.Helper()
	c, err := registry.New().WrapOrGet(initial)
	require.NoError(t, err)
	return c
}

// Key returns a selector that reads one property.
func Key(key string) func(ir.State) any {
	return func(s ir.State) any {
		v, _ := s.Get(key)
		return v
	}
}
