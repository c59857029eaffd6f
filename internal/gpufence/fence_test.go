package gpufence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollFence_WaitBlocksUntilSignal(t *testing.T) {
	f := New()
	done := make(chan error, 1)
	go func() { done <- f.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned before Signal")
	case <-time.After(20 * time.Millisecond):
	}

	f.Signal()
	require.NoError(t, <-done)
}

func TestPollFence_CloseWithoutSignalReturnsErrClosed(t *testing.T) {
	f := New()
	f.Close()
	assert.ErrorIs(t, f.Wait(context.Background()), ErrClosed)
}

func TestPool_GetSelfSignalsAfterDelay(t *testing.T) {
	p := NewPool(10 * time.Millisecond)
	fence := p.Get(1)

	require.Error(t, WaitTimeout(fence, 0))

	err := fence.Wait(context.Background())
	require.NoError(t, err, "fence should self-signal once its delay elapses")
}

func TestPool_ReleaseClosesOutstandingFence(t *testing.T) {
	p := NewPool(time.Hour)
	fence := p.Get(2)
	p.Release(2)

	assert.ErrorIs(t, fence.Wait(context.Background()), ErrClosed)
}
