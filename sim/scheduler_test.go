package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tag string

func (tag) Execute(*Engine) error { return nil }

func drain(q *EventQueue) []string {
	var out []string
	for {
		r, ok := q.PopNext()
		if !ok {
			return out
		}
		out = append(out, string(r.Payload.(tag)))
	}
}

func TestEventQueue_OrdersByDueThenInsertion(t *testing.T) {
	// GIVEN records scheduled out of time order, with ties
	q := NewEventQueue()
	require.NoError(t, q.Schedule(5, tag("c")))
	require.NoError(t, q.Schedule(1, tag("a")))
	require.NoError(t, q.Schedule(5, tag("d")))
	require.NoError(t, q.Schedule(1, tag("b")))
	require.NoError(t, q.Schedule(3, tag("x")))

	// WHEN drained
	// THEN earlier due first, ties in insertion order
	assert.Equal(t, []string{"a", "b", "x", "c", "d"}, drain(q))
	assert.Equal(t, 5.0, q.Now())
}

func TestEventQueue_Empty(t *testing.T) {
	q := NewEventQueue()
	_, ok := q.PopNext()
	assert.False(t, ok)
	_, ok = q.Peek()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_ScheduleInPast_InvalidTimeError(t *testing.T) {
	// GIVEN a queue that already popped a record at t=10
	q := NewEventQueue()
	require.NoError(t, q.Schedule(10, tag("a")))
	_, _ = q.PopNext()

	// WHEN scheduling before 10
	err := q.Schedule(9.99, tag("late"))

	// THEN it is rejected, while t=10 itself is allowed
	var ite *InvalidTimeError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, 9.99, ite.Due)
	assert.Equal(t, 10.0, ite.Now)
	assert.NoError(t, q.Schedule(10, tag("same time")))

	assert.Error(t, q.Schedule(math.NaN(), tag("nan")))
}

func TestEventQueue_PeekDoesNotRemove(t *testing.T) {
	q := NewEventQueue()
	require.NoError(t, q.Schedule(2, tag("a")))
	r, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 2.0, r.Due)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 0.0, q.Now(), "peek does not advance time")
}
