package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingChannel_DropsOldestWhenFull(t *testing.T) {
	rc := NewRingChannel[int](3)

	for i := 1; i <= 3; i++ {
		_, dropped, ok := rc.Send(i)
		assert.True(t, ok)
		assert.False(t, dropped)
	}

	old, dropped, ok := rc.Send(4)
	assert.True(t, ok)
	assert.True(t, dropped, "full buffer MUST drop an element")
	assert.Equal(t, 1, old, "the oldest element MUST be the one dropped")

	rc.Close()
	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 3, 4}, got)

	m := rc.GetMetrics()
	assert.EqualValues(t, 4, m.Written)
	assert.EqualValues(t, 1, m.Overwritten)
}

func TestRingChannel_SendAfterClose(t *testing.T) {
	rc := NewRingChannel[string](1)
	rc.Close()
	rc.Close()

	_, _, ok := rc.Send("late")
	assert.False(t, ok, "send after close MUST be rejected, not panic")
}

func TestRingChannel_InvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { NewRingChannel[int](0) })
}

func TestRingChannel_LenCap(t *testing.T) {
	rc := NewRingChannel[int](2)
	rc.Send(1)
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 2, rc.Cap())
}
