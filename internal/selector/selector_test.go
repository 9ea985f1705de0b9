package selector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statebox/internal/ir"
)

func testState() *ir.Snapshot {
	return ir.NewSnapshot(map[string]any{
		"count":    3,
		"name":     "todo",
		"todos":    []any{"a", "b"},
		"user-id":  "u1",
		"settings": map[string]any{"dark": true},
	}, nil, 7)
}

func TestParseLang(t *testing.T) {
	tests := []struct {
		in      string
		want    Lang
		wantErr bool
	}{
		{"", LangExpr, false},
		{"expr", LangExpr, false},
		{"CEL", LangCEL, false},
		{" js ", LangJS, false},
		{"javascript", LangJS, false},
		{"lua", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLang(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLang)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSet_Eval(t *testing.T) {
	s := NewSet()
	state := testState()

	tests := []struct {
		name   string
		lang   string
		source string
		want   any
	}{
		{"expr top-level key", "expr", "count", 3},
		{"expr arithmetic", "expr", "count * 2", 6},
		{"expr state member", "expr", "state.count > 2", true},
		{"expr len", "expr", "len(todos)", 2},
		{"expr nested", "expr", "settings.dark", true},
		{"expr dashed key via state", "expr", `state["user-id"]`, "u1"},
		{"expr missing key", "expr", "missing", nil},
		{"default lang", "", "name", "todo"},

		{"cel top-level key", "cel", "count + 1", int64(4)},
		{"cel state member", "cel", "state.name", "todo"},
		{"cel size", "cel", "size(todos)", int64(2)},
		{"cel dashed key via state", "cel", `state["user-id"]`, "u1"},
		{"cel comparison", "cel", "count > 1", true},

		{"js member", "js", "state.count", int64(3)},
		{"js arrow", "js", "s => s.count + 1", int64(4)},
		{"js top-level key", "js", "name + '!'", "todo!"},
		{"js length", "js", "state.todos.length", int64(2)},
		{"js missing", "js", "state.missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.Compile(tt.lang, tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.source, p.Source())

			got, err := p.Eval(state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSet_CompileErrors(t *testing.T) {
	s := NewSet()

	for _, tt := range []struct{ lang, source string }{
		{"expr", "count +"},
		{"cel", "count +"},
		{"js", "state.count +"},
		{"expr", "   "},
	} {
		t.Run(tt.lang+" "+tt.source, func(t *testing.T) {
			_, err := s.Compile(tt.lang, tt.source)
			require.Error(t, err)

			var evalErr *EvaluationError
			require.True(t, errors.As(err, &evalErr))
			assert.Equal(t, "compile", evalErr.Phase)
		})
	}

	_, err := s.Compile("lua", "x")
	assert.ErrorIs(t, err, ErrUnknownLang)
}

func TestEval_Errors(t *testing.T) {
	s := NewSet()
	state := testState()

	for _, tt := range []struct{ lang, source string }{
		{"cel", "undeclared + 1"},
		{"js", "state.missing.deeper"},
		{"expr", "name * 2"},
	} {
		t.Run(tt.lang, func(t *testing.T) {
			p, err := s.Compile(tt.lang, tt.source)
			require.NoError(t, err)

			_, err = p.Eval(state)
			var evalErr *EvaluationError
			require.ErrorAs(t, err, &evalErr)
			assert.Equal(t, "eval", evalErr.Phase)
			assert.Equal(t, Lang(tt.lang), evalErr.Lang)
		})
	}
}

func TestFunc_LogsAndReturnsNil(t *testing.T) {
	s := NewSet()
	p, err := s.Compile("js", "state.missing.deeper")
	require.NoError(t, err)

	assert.Nil(t, s.Func(p)(testState()))

	ok, err := s.Compile("expr", "count")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Func(ok)(testState()))
}

func TestCache(t *testing.T) {
	cache := NewMapCache()
	s := NewSet(WithCache(cache))

	_, err := s.Compile("expr", "count")
	require.NoError(t, err)
	_, err = s.Compile("expr", "count")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	_, err = s.Compile("js", "count")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len(), "languages do not share entries")

	p, err := s.Compile("cel", "count")
	require.NoError(t, err)
	_, err = p.Eval(testState())
	require.NoError(t, err)
	_, err = p.Eval(testState())
	require.NoError(t, err)
	assert.Equal(t, 3, cache.Len(), "cel caches one program per key set")

	_, err = p.Eval(ir.NewSnapshot(map[string]any{"count": 1, "extra": 2}, nil, 0))
	require.NoError(t, err)
	assert.Equal(t, 4, cache.Len())
}

func TestEval_HiddenKeys(t *testing.T) {
	s := NewSet()
	p, err := s.Compile("expr", "count")
	require.NoError(t, err)

	hidden := ir.NewSnapshot(map[string]any{"count": 1}, map[string]bool{"count": true}, 0)
	got, err := p.Eval(hidden)
	require.NoError(t, err)
	assert.Nil(t, got, "hidden keys are not exposed to selectors")
}

func TestCELIdent(t *testing.T) {
	assert.True(t, celIdent("count"))
	assert.True(t, celIdent("_x1"))
	assert.False(t, celIdent("1x"))
	assert.False(t, celIdent("user-id"))
	assert.False(t, celIdent("in"))
	assert.False(t, celIdent("state"))
	assert.False(t, celIdent(""))
}
