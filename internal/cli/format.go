package cli

import (
	"fmt"
	"slices"

	"github.com/roach88/statebox/internal/ir"
)

// formatValue renders a container value as canonical JSON, falling back to
// %v for values canonical JSON cannot represent.
func formatValue(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// sortedKeys returns the keys of m in canonical order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, ir.CompareKeys)
	return keys
}
