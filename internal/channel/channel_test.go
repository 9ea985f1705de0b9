package channel

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statebox/internal/ir"
)

func collect(into *[]ir.Change) *Listener {
	return NewListener(func(c ir.Change) { *into = append(*into, c) })
}

func TestChannel_PublishDeliversToAllListeners(t *testing.T) {
	ch := New()
	var a, b []ir.Change
	ch.Subscribe(collect(&a))
	ch.Subscribe(collect(&b))

	change := ir.Change{Op: ir.OpWrite, Key: "count", Value: 1, Seq: 1}
	ch.Publish(change)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, change, a[0])
	assert.Equal(t, change, b[0])
}

func TestChannel_SubscribeSameListenerTwiceIsNoop(t *testing.T) {
	ch := New()
	var got []ir.Change
	l := collect(&got)

	first := ch.Subscribe(l)
	second := ch.Subscribe(l)

	assert.Same(t, first, second)
	assert.Equal(t, 1, ch.Len())

	ch.Publish(ir.Change{Key: "k"})
	assert.Len(t, got, 1)
}

func TestChannel_DistinctHandlesForSameFuncAreDistinctListeners(t *testing.T) {
	ch := New()
	calls := 0
	fn := func(ir.Change) { calls++ }

	ch.Subscribe(NewListener(fn))
	ch.Subscribe(NewListener(fn))

	ch.Publish(ir.Change{Key: "k"})
	assert.Equal(t, 2, calls)
}

func TestChannel_UnsubscribeStopsDelivery(t *testing.T) {
	ch := New()
	var got []ir.Change
	sub := ch.Subscribe(collect(&got))

	ch.Publish(ir.Change{Key: "a"})
	sub.Unsubscribe()
	ch.Publish(ir.Change{Key: "b"})

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Key)
	assert.False(t, sub.Active())
	assert.Equal(t, 0, ch.Len())
}

func TestChannel_UnsubscribeIsIdempotent(t *testing.T) {
	ch := New()
	var got []ir.Change
	l := collect(&got)
	sub := ch.Subscribe(l)

	sub.Unsubscribe()
	sub.Unsubscribe()

	// A later re-subscription of the same handle must not be undone by a
	// stale handle.
	again := ch.Subscribe(l)
	sub.Unsubscribe()
	assert.True(t, again.Active())
	assert.Equal(t, 1, ch.Len())

	var nilSub *Subscription
	assert.NotPanics(t, func() { nilSub.Unsubscribe() })
}

func TestChannel_ListenerRemovedMidPublishIsSkipped(t *testing.T) {
	ch := New()
	var second *Subscription
	secondCalls := 0

	ch.Subscribe(NewListener(func(ir.Change) {
		second.Unsubscribe()
	}))
	second = ch.Subscribe(NewListener(func(ir.Change) {
		secondCalls++
	}))

	ch.Publish(ir.Change{Key: "k"})
	assert.Equal(t, 0, secondCalls)
}

func TestChannel_ListenerAddedMidPublishWaitsForNextPublish(t *testing.T) {
	ch := New()
	lateCalls := 0
	late := NewListener(func(ir.Change) { lateCalls++ })

	ch.Subscribe(NewListener(func(ir.Change) {
		ch.Subscribe(late)
	}))

	ch.Publish(ir.Change{Key: "first"})
	assert.Equal(t, 0, lateCalls)

	ch.Publish(ir.Change{Key: "second"})
	assert.Equal(t, 1, lateCalls)
}

func TestChannel_ReentrantPublish(t *testing.T) {
	ch := New()
	var keys []string
	ch.Subscribe(NewListener(func(c ir.Change) {
		keys = append(keys, c.Key)
		if c.Key == "outer" {
			ch.Publish(ir.Change{Key: "inner"})
		}
	}))

	ch.Publish(ir.Change{Key: "outer"})
	assert.Equal(t, []string{"outer", "inner"}, keys)
}

func TestChannel_MaxListenersWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ch := New(WithMaxListeners(2), WithLogger(logger), WithName("test"))

	for i := 0; i < 4; i++ {
		ch.Subscribe(NewListener(nil))
	}

	out := buf.String()
	assert.Contains(t, out, "possible listener leak")
	assert.Contains(t, out, "channel=test")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("possible listener leak")))
}

func TestChannel_NilListener(t *testing.T) {
	ch := New()
	assert.Nil(t, ch.Subscribe(nil))

	ch.Subscribe(NewListener(nil))
	assert.NotPanics(t, func() { ch.Publish(ir.Change{Key: "k"}) })
}

func TestChannel_Clear(t *testing.T) {
	ch := New()
	var got []ir.Change
	sub := ch.Subscribe(collect(&got))

	ch.Clear()
	ch.Publish(ir.Change{Key: "k"})

	assert.Empty(t, got)
	assert.False(t, sub.Active())
	assert.Equal(t, 0, ch.Len())
}
