package statebox

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statebox/internal/channel"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func countOf(s State) any {
	v, _ := s.Get("count")
	return v
}

func TestCounter_RerendersOncePerChange(t *testing.T) {
	rt := New(quiet())
	c, err := rt.CreateContainer(map[string]any{"count": 0})
	require.NoError(t, err)

	renders := 0
	obs, err := BindObserver(rt, c, countOf, func() { renders++ })
	require.NoError(t, err)
	defer obs.Close()

	assert.True(t, obs.InRenderPhase())
	assert.Equal(t, 0, obs.Value())
	CommitRenderPhase(obs)

	require.NoError(t, c.Write("count", 1))
	assert.Equal(t, 1, renders)
	assert.Equal(t, 1, obs.Value())

	require.NoError(t, c.Write("unrelated", "x"))
	assert.Equal(t, 1, renders, "selected value did not change")
}

func TestRenderPhase_ReadsAreStable(t *testing.T) {
	rt := New(quiet())
	c, err := rt.CreateContainer(map[string]any{"count": 0})
	require.NoError(t, err)

	obs, err := BindObserver(rt, c, countOf, nil)
	require.NoError(t, err)
	defer obs.Close()

	require.NoError(t, c.Write("count", 7))

	v, ok, err := obs.Read("count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, 0, obs.Value())

	CommitRenderPhase(obs)
	v, _, err = obs.Read("count")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	EnterRenderPhase(obs)
	require.NoError(t, c.Write("count", 8))
	assert.Equal(t, 7, obs.Value())
	CommitRenderPhase(obs)
	assert.Equal(t, 8, obs.Value())
}

func TestCreateContainer_InvalidTarget(t *testing.T) {
	rt := New(quiet())

	for _, target := range []any{nil, 42, "state", []any{1}} {
		_, err := rt.CreateContainer(target)
		assert.ErrorIs(t, err, ErrInvalidTarget, "target %#v", target)
	}
}

func TestCreateContainer_SameMapSameContainer(t *testing.T) {
	rt := New(quiet())
	target := map[string]any{}

	first, err := rt.CreateContainer(target)
	require.NoError(t, err)
	second, err := rt.CreateContainer(target)
	require.NoError(t, err)
	assert.Same(t, first, second)

	again, err := rt.CreateContainer(first)
	require.NoError(t, err)
	assert.Same(t, first, again)
}

func TestSubscribe(t *testing.T) {
	rt := New(quiet())
	c, err := rt.CreateContainer(map[string]any{})
	require.NoError(t, err)

	var got []Change
	l := NewListener(func(ch Change) { got = append(got, ch) })

	sub, err := rt.Subscribe(c, l)
	require.NoError(t, err)
	require.NoError(t, c.Write("a", 1))
	removed, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, removed)

	sub.Unsubscribe()
	require.NoError(t, c.Write("b", 2))

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key)
	assert.Equal(t, 1, got[0].Value)
	assert.Equal(t, "a", got[1].Key)
	assert.Less(t, got[0].Seq, got[1].Seq)
}

func TestSubscribe_Unmanaged(t *testing.T) {
	rt := New(quiet())
	other := New(quiet())
	foreign, err := other.CreateContainer(map[string]any{})
	require.NoError(t, err)

	l := NewListener(func(Change) {})
	for _, v := range []any{map[string]any{}, nil, foreign} {
		_, err := rt.Subscribe(v, l)
		assert.ErrorIs(t, err, ErrUnmanagedContainer)
	}

	_, err = BindObserver(rt, foreign, countOf, nil)
	assert.ErrorIs(t, err, ErrUnmanagedContainer)
}

func TestReservedKey(t *testing.T) {
	rt := New(quiet())
	c, err := rt.CreateContainer(map[string]any{})
	require.NoError(t, err)

	assert.ErrorIs(t, c.Write(ReservedKey, 1), ErrReservedKeyViolation)
	_, _, err = c.Read(ReservedKey)
	assert.ErrorIs(t, err, ErrReservedKeyViolation)
	assert.NotContains(t, c.Keys(), ReservedKey)
}

func TestSharedBus_StampsChannel(t *testing.T) {
	rt := New(quiet(), WithSharedBus(), WithGenerator(channel.NewFixedGenerator("alpha", "beta")))

	a, err := rt.CreateContainer(map[string]any{})
	require.NoError(t, err)
	b, err := rt.CreateContainer(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "alpha", a.ChannelID())
	assert.Equal(t, "beta", b.ChannelID())

	var got []Change
	_, err = rt.Subscribe(b, NewListener(func(ch Change) { got = append(got, ch) }))
	require.NoError(t, err)

	require.NoError(t, a.Write("k", 1))
	require.NoError(t, b.Write("k", 2))

	require.Len(t, got, 1)
	assert.Equal(t, "beta", got[0].Channel)
}

func TestSelector(t *testing.T) {
	rt := New(quiet())
	c, err := rt.CreateContainer(map[string]any{"count": 1})
	require.NoError(t, err)

	sel, err := rt.Selector("expr", "count * 2")
	require.NoError(t, err)

	obs, err := BindObserver(rt, c, sel, nil)
	require.NoError(t, err)
	defer obs.Close()
	CommitRenderPhase(obs)

	require.NoError(t, c.Write("count", 5))
	assert.Equal(t, 10, obs.Value())

	_, err = rt.Selector("cobol", "count")
	assert.Error(t, err)
}

func TestNewEngine_RendersOnSharedClock(t *testing.T) {
	rt := New(quiet())
	c, err := rt.CreateContainer(map[string]any{"count": 0})
	require.NoError(t, err)

	var records []RenderRecord
	e := rt.NewEngine(WithRenderHook(func(r RenderRecord) { records = append(records, r) }))

	var obs *Observer[any]
	obs, err = BindObserver(rt, c, countOf, func() { e.Schedule("counter") })
	require.NoError(t, err)
	defer obs.Close()

	require.NoError(t, e.Mount("counter", obs, func() (any, error) { return obs.Value(), nil }))
	require.NoError(t, e.Flush(context.Background()))

	require.NoError(t, c.Write("count", 1))
	require.NoError(t, e.Flush(context.Background()))

	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].Value)
	assert.Equal(t, 1, records[1].Value)
	assert.Equal(t, c.Seq(), records[1].Seq)
	assert.Equal(t, int64(2), e.Passes("counter"))
}
