package taskqueue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_OrdersTasksFIFO(t *testing.T) {
	q := New()
	defer q.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		q.Post(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}
	<-done
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueue_Call_BlocksUntilExecuted(t *testing.T) {
	q := New()
	defer q.Stop()

	var executed atomic.Bool
	q.Call(func() { executed.Store(true) })
	assert.True(t, executed.Load())
}

func TestQueue_PostAfter_Delays(t *testing.T) {
	q := New()
	defer q.Stop()

	start := time.Now()
	done := make(chan time.Time, 1)
	q.PostAfter(20*time.Millisecond, func() { done <- time.Now() })

	fired := <-done
	require.GreaterOrEqual(t, fired.Sub(start), 15*time.Millisecond)
}

func TestQueue_StopDrainsPendingThenExits(t *testing.T) {
	q := New()
	var ran atomic.Int32
	q.Post(func() { ran.Add(1) })
	q.Post(func() { ran.Add(1) })
	q.Stop()
	assert.Equal(t, int32(2), ran.Load())

	// Posting after Stop is a silent no-op; the worker is gone.
	q.Post(func() { ran.Add(1) })
	assert.Equal(t, int32(2), ran.Load())
}
