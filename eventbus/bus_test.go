package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
			if ev == Finished {
				return out
			}
		case <-time.After(timeout):
			return out
		}
	}
}

func TestPublishOrderAndFinish(t *testing.T) {
	b := NewBus(8)
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(TaskEvent{ID: "t1"})
	b.Publish(StatusUpdateEvent{TaskID: "t1", Status: Status{State: "working"}})
	b.Finish()

	events := drain(t, ch, time.Second)
	require.Len(t, events, 3)
	assert.Equal(t, "task", events[0].Kind())
	assert.Equal(t, "status-update", events[1].Kind())
	assert.Equal(t, Finished, events[2])

	_, stillOpen := <-ch
	assert.False(t, stillOpen)
}

func TestMultipleSubscribersSeeSameSequence(t *testing.T) {
	b := NewBus(8)
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(TaskEvent{ID: "t1"})
	b.Finish()

	e1 := drain(t, ch1, time.Second)
	e2 := drain(t, ch2, time.Second)
	require.Len(t, e1, 2)
	require.Len(t, e2, 2)
	assert.Equal(t, e1[0].Kind(), e2[0].Kind())
}

func TestFinishIsIdempotent(t *testing.T) {
	b := NewBus(4)
	ch, unsub := b.Subscribe()
	defer unsub()
	b.Finish()
	b.Finish()
	events := drain(t, ch, time.Second)
	assert.Len(t, events, 1)
	assert.True(t, b.IsFinished())
}

func TestManagerRefCounting(t *testing.T) {
	m := NewManager(4)
	b1 := m.GetOrCreate("t1")
	b2 := m.GetOrCreate("t1")
	assert.Same(t, b1, b2)
	assert.Equal(t, 1, m.Count())

	m.Release("t1")
	assert.Equal(t, 1, m.Count())
	assert.False(t, b1.IsFinished())

	m.Release("t1")
	assert.Equal(t, 0, m.Count())
	assert.True(t, b1.IsFinished())
}

func TestManagerLookupMissing(t *testing.T) {
	m := NewManager(4)
	assert.Nil(t, m.Lookup("nope"))
}
