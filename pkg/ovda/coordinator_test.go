package ovda

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/igel-oss/chromium-renesas-vda/internal/gpufence"
	"github.com/igel-oss/chromium-renesas-vda/internal/omxil"
	"github.com/igel-oss/chromium-renesas-vda/pkg/ovdaconfig"
)

// recordingClient implements Client and records every notification it
// receives, for assertion from the test goroutine. All access is
// mutex-guarded since deliveries happen on the coordinator's own
// control-thread goroutine.
type recordingClient struct {
	mu sync.Mutex

	initialized    []bool
	providedCounts []int
	dismissed      []int32
	pictures       []Picture
	bitstreamDone  []int32
	flushDoneCount int
	resetDoneCount int
	errors         []ErrorKind

	notify chan struct{}
}

func newRecordingClient() *recordingClient {
	return &recordingClient{notify: make(chan struct{}, 256)}
}

func (c *recordingClient) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *recordingClient) NotifyInitializationComplete(ok bool) {
	c.mu.Lock()
	c.initialized = append(c.initialized, ok)
	c.mu.Unlock()
	c.signal()
}

func (c *recordingClient) ProvidePictureBuffers(count int, format PixelFormat, size Size) {
	c.mu.Lock()
	c.providedCounts = append(c.providedCounts, count)
	c.mu.Unlock()
	c.signal()
}

func (c *recordingClient) DismissPictureBuffer(id int32) {
	c.mu.Lock()
	c.dismissed = append(c.dismissed, id)
	c.mu.Unlock()
	c.signal()
}

func (c *recordingClient) PictureReady(pic Picture) {
	c.mu.Lock()
	c.pictures = append(c.pictures, pic)
	c.mu.Unlock()
	c.signal()
}

func (c *recordingClient) NotifyEndOfBitstreamBuffer(id int32) {
	c.mu.Lock()
	c.bitstreamDone = append(c.bitstreamDone, id)
	c.mu.Unlock()
	c.signal()
}

func (c *recordingClient) NotifyFlushDone() {
	c.mu.Lock()
	c.flushDoneCount++
	c.mu.Unlock()
	c.signal()
}

func (c *recordingClient) NotifyResetDone() {
	c.mu.Lock()
	c.resetDoneCount++
	c.mu.Unlock()
	c.signal()
}

func (c *recordingClient) NotifyError(kind ErrorKind) {
	c.mu.Lock()
	c.errors = append(c.errors, kind)
	c.mu.Unlock()
	c.signal()
}

func (c *recordingClient) waitUntil(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		ok := pred()
		c.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatal("timed out waiting for client notification")
		}
	}
}

type passthroughTranslator struct{}

func (passthroughTranslator) Translate(ref uintptr, w, h int) (gpufence.ExternalImage, error) {
	return gpufence.ExternalImage{Width: w, Height: h}, nil
}

func newTestCoordinator() (*Coordinator, *recordingClient, *omxil.FakeComponent) {
	client := newRecordingClient()
	component := omxil.NewFakeComponent()
	component.PortSettingsChangedAfterFills = kNumPictureBuffers
	coord := New(ovdaconfig.Defaults(), component, passthroughTranslator{}, client, nil)
	return coord, client, component
}

func assignDefaultPictureBuffers(coord *Coordinator) {
	buffers := make([]PictureBuffer, kNumPictureBuffers)
	for i := range buffers {
		buffers[i] = PictureBuffer{PictureBufferID: int32(i), TextureRef: uintptr(i + 1)}
	}
	coord.AssignPictureBuffers(buffers)
}

func TestCoordinator_InitializeReachesExecutingAndRequestsPictureBuffers(t *testing.T) {
	coord, client, _ := newTestCoordinator()

	require.NoError(t, coord.Initialize(ProfileH264Baseline))
	client.waitUntil(t, func() bool { return len(client.initialized) > 0 })

	client.mu.Lock()
	require.True(t, client.initialized[0])
	client.mu.Unlock()

	client.waitUntil(t, func() bool { return len(client.providedCounts) > 0 })
	client.mu.Lock()
	require.Equal(t, kNumPictureBuffers, client.providedCounts[0])
	client.mu.Unlock()
}

func TestCoordinator_HappyPathDeliversPicturesInOrder(t *testing.T) {
	coord, client, _ := newTestCoordinator()
	require.NoError(t, coord.Initialize(ProfileH264Baseline))
	client.waitUntil(t, func() bool { return len(client.providedCounts) > 0 })

	assignDefaultPictureBuffers(coord)

	coord.Decode(BitstreamBuffer{ID: 10, Data: []byte{1}})
	client.waitUntil(t, func() bool { return len(client.pictures) >= 1 })

	coord.Decode(BitstreamBuffer{ID: 11, Data: []byte{2}})
	client.waitUntil(t, func() bool { return len(client.pictures) >= 2 })

	client.mu.Lock()
	require.Len(t, client.pictures, 2)
	require.Equal(t, int32(10), client.pictures[0].BitstreamID)
	require.Equal(t, int32(11), client.pictures[1].BitstreamID)
	client.mu.Unlock()
}

func TestCoordinator_FlushSignalsNotifyFlushDoneOnce(t *testing.T) {
	coord, client, _ := newTestCoordinator()
	require.NoError(t, coord.Initialize(ProfileH264Baseline))
	client.waitUntil(t, func() bool { return len(client.providedCounts) > 0 })
	assignDefaultPictureBuffers(coord)

	require.NoError(t, coord.Flush())
	client.waitUntil(t, func() bool { return client.flushDoneCount > 0 })

	client.mu.Lock()
	require.Equal(t, 1, client.flushDoneCount)
	client.mu.Unlock()
}

func TestCoordinator_FlushTwiceReturnsToQuiescentBetweenFlushes(t *testing.T) {
	coord, client, _ := newTestCoordinator()
	require.NoError(t, coord.Initialize(ProfileH264Baseline))
	client.waitUntil(t, func() bool { return len(client.providedCounts) > 0 })
	assignDefaultPictureBuffers(coord)

	require.NoError(t, coord.Flush())
	client.waitUntil(t, func() bool { return client.flushDoneCount >= 1 })

	// A second Flush must not see a stale TransitionFlushing left over
	// from the first one completing.
	require.NoError(t, coord.Flush())
	client.waitUntil(t, func() bool { return client.flushDoneCount >= 2 })

	client.mu.Lock()
	require.Equal(t, 2, client.flushDoneCount)
	client.mu.Unlock()
}

func TestCoordinator_ReusePictureBufferReturnsPictureToComponent(t *testing.T) {
	coord, client, _ := newTestCoordinator()
	require.NoError(t, coord.Initialize(ProfileH264Baseline))
	client.waitUntil(t, func() bool { return len(client.providedCounts) > 0 })
	assignDefaultPictureBuffers(coord)

	coord.Decode(BitstreamBuffer{ID: 50, Data: []byte{1}})
	client.waitUntil(t, func() bool { return len(client.pictures) >= 1 })

	client.mu.Lock()
	reused := client.pictures[0].PictureBufferID
	client.mu.Unlock()

	coord.ReusePictureBuffer(reused)

	coord.Decode(BitstreamBuffer{ID: 51, Data: []byte{2}})
	client.waitUntil(t, func() bool {
		for _, p := range client.pictures {
			if p.BitstreamID == 51 {
				return true
			}
		}
		return false
	})
}

func TestCoordinator_ResetSignalsNotifyResetDoneOnceAndAcceptsFurtherDecode(t *testing.T) {
	coord, client, _ := newTestCoordinator()
	require.NoError(t, coord.Initialize(ProfileH264Baseline))
	client.waitUntil(t, func() bool { return len(client.providedCounts) > 0 })
	assignDefaultPictureBuffers(coord)

	coord.Decode(BitstreamBuffer{ID: 20, Data: []byte{1}})
	client.waitUntil(t, func() bool { return len(client.pictures) >= 1 })

	require.NoError(t, coord.Reset())
	client.waitUntil(t, func() bool { return client.resetDoneCount > 0 })

	client.mu.Lock()
	require.Equal(t, 1, client.resetDoneCount)
	client.mu.Unlock()

	coord.Decode(BitstreamBuffer{ID: 30, Data: []byte{1}})
	client.waitUntil(t, func() bool {
		for _, p := range client.pictures {
			if p.BitstreamID == 30 {
				return true
			}
		}
		return false
	})
}

func TestCoordinator_UnsupportedVariantProfileMapsToHigh444(t *testing.T) {
	coord, client, _ := newTestCoordinator()
	require.NoError(t, coord.Initialize(ProfileH264StereoHigh))
	client.waitUntil(t, func() bool { return len(client.initialized) > 0 })
	require.Equal(t, ProfileH264High444, coord.profile)

	for _, p := range GetSupportedProfiles() {
		require.NotEqual(t, ProfileH264StereoHigh, p)
	}
}

func TestCoordinator_ComponentErrorNotifiesPlatformFailureOnce(t *testing.T) {
	coord, client, component := newTestCoordinator()
	require.NoError(t, coord.Initialize(ProfileH264Baseline))
	client.waitUntil(t, func() bool { return len(client.providedCounts) > 0 })

	component.InjectError(1)
	client.waitUntil(t, func() bool { return len(client.errors) > 0 })

	client.mu.Lock()
	require.Equal(t, []ErrorKind{ErrorKindPlatformFailure}, client.errors)
	client.mu.Unlock()

	// Destroy still completes cleanly after an error.
	coord.Destroy()
}

func TestCoordinator_DestroyInvalidatesClientBeforeTeardownCompletes(t *testing.T) {
	coord, client, _ := newTestCoordinator()
	require.NoError(t, coord.Initialize(ProfileH264Baseline))
	client.waitUntil(t, func() bool { return len(client.providedCounts) > 0 })
	assignDefaultPictureBuffers(coord)

	coord.Destroy()
	coord.waitForControlThread()

	countBefore := 0
	client.mu.Lock()
	countBefore = len(client.pictures) + client.flushDoneCount + client.resetDoneCount
	client.mu.Unlock()

	coord.Decode(BitstreamBuffer{ID: 99, Data: []byte{1}})
	time.Sleep(20 * time.Millisecond)

	client.mu.Lock()
	countAfter := len(client.pictures) + client.flushDoneCount + client.resetDoneCount
	client.mu.Unlock()
	require.Equal(t, countBefore, countAfter, "no client callback should fire after Destroy")
}
