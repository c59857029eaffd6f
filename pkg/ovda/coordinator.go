package ovda

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/igel-oss/chromium-renesas-vda/internal/gpufence"
	"github.com/igel-oss/chromium-renesas-vda/internal/omxil"
	"github.com/igel-oss/chromium-renesas-vda/internal/taskqueue"
	"github.com/igel-oss/chromium-renesas-vda/pkg/ovdaconfig"
)

// pictureSyncPollInterval is the cadence ReusePictureBuffer reschedules
// itself at while waiting on a GPU fence. It never blocks the control
// thread; it reschedules a task instead.
const pictureSyncPollInterval = 5 * time.Millisecond

// Coordinator owns one decode session end to end: lifecycle, buffer
// bookkeeping, and the asynchronous handshakes that move the
// component between states. Every method is safe to call from any
// goroutine — each hops onto the coordinator's own control-thread
// queue before touching any field below inputPort.
type Coordinator struct {
	cfg        ovdaconfig.Config
	component  omxil.Component
	translator gpufence.Translator
	fences     *gpufence.Pool
	log        *slog.Logger

	queue  *taskqueue.Queue
	client *clientRef

	componentState ComponentState
	transition     Transition
	profile        Profile

	inputPort  int
	outputPort int

	handleOpen bool

	bk *bookkeeper
}

// New constructs a Coordinator. The component must not yet have an open
// handle; Initialize opens it. AssignPictureBuffers stops the session with
// PlatformFailure on the first translator error, so with
// gpufence.NewNullTranslator() no picture buffer can be assigned.
//
// Every log line the coordinator emits carries a session_id, generated
// once here, so multiple decode sessions in the same process can be
// told apart in aggregated logs.
func New(cfg ovdaconfig.Config, component omxil.Component, translator gpufence.Translator, client Client, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session_id", uuid.NewString())
	return &Coordinator{
		cfg:        cfg,
		component:  component,
		translator: translator,
		fences:     gpufence.NewPool(cfg.PictureFenceDelay),
		log:        log,
		queue:      taskqueue.New(),
		client:     newClientRef(client),
		bk:         newBookkeeper(),
	}
}

// Initialize begins the asynchronous startup handshake. It returns once
// the request has been validated and accepted, not once the component
// reaches Executing — that completion is reported to the client via
// NotifyInitializationComplete.
func (c *Coordinator) Initialize(profile Profile) error {
	if !profileSupported(profile) {
		return newError("Initialize", ErrorKindInvalidArgument, nil)
	}
	var initErr error
	c.queue.Call(func() {
		initErr = c.initializeOnControlThread(profile)
	})
	return initErr
}

func profileSupported(p Profile) bool {
	for _, sp := range supportedProfiles {
		if sp == p {
			return true
		}
	}
	// Scalable/Stereo/Multiview are accepted but silently remapped,
	// per the component's documented fallback behavior.
	switch p {
	case ProfileH264ScalableBaseline, ProfileH264ScalableHigh,
		ProfileH264StereoHigh, ProfileH264MultiviewHigh:
		return true
	default:
		return false
	}
}

func (c *Coordinator) initializeOnControlThread(profile Profile) error {
	if c.transition != TransitionNone || c.componentState != StateUnloaded {
		return newError("Initialize", ErrorKindIllegalState, nil)
	}

	role := roleForProfile(profile)
	cb := omxil.Callbacks{
		EventHandler:    func(event omxil.EventType, d1, d2 uint32) { c.queue.Post(func() { c.onEvent(event, d1, d2) }) },
		EmptyBufferDone: func(h *omxil.BufferHeader) { c.queue.Post(func() { c.onEmptyBufferDone(h) }) },
		FillBufferDone:  func(h *omxil.BufferHeader) { c.queue.Post(func() { c.onFillBufferDone(h) }) },
	}
	if err := c.component.GetHandle(role, cb); err != nil {
		return newError("Initialize", ErrorKindPlatformFailure, err)
	}
	c.handleOpen = true
	c.profile = mapToComponentProfile(profile)

	inDef, err := c.component.GetPortDefinition(0)
	if err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
		return newError("Initialize", ErrorKindPlatformFailure, err)
	}
	outDef, err := c.component.GetPortDefinition(1)
	if err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
		return newError("Initialize", ErrorKindPlatformFailure, err)
	}
	c.inputPort = inDef.Port
	c.outputPort = outDef.Port

	// Seed an impossible output geometry so the component is forced to
	// emit PortSettingsChanged once it learns the stream's real size.
	outDef.FrameWidth, outDef.FrameHeight = 0, 0
	if err := c.component.SetPortDefinition(outDef); err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
		return newError("Initialize", ErrorKindPlatformFailure, err)
	}

	if err := c.allocateInputBuffers(inDef); err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
		return newError("Initialize", ErrorKindPlatformFailure, err)
	}
	if err := c.allocateFakeOutputBuffers(); err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
		return newError("Initialize", ErrorKindPlatformFailure, err)
	}

	c.transition = TransitionInitializing
	if err := c.component.SendCommand(omxil.CommandStateSet, uint32(omxil.StateIdle)); err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
		return newError("Initialize", ErrorKindPlatformFailure, err)
	}
	return nil
}

// allocateInputBuffers wraps placeholder memory as input headers. The
// original component accepted a sentinel address here and rewrote it on
// first submission; this binding passes a one-byte placeholder slice
// for the same reason (see DESIGN.md's note on this open question) and
// overwrites BufferHeader.Data with the client's real bytes in Decode.
func (c *Coordinator) allocateInputBuffers(def omxil.PortDefinition) error {
	headers := make([]*omxil.BufferHeader, 0, def.BufferCount)
	for i := 0; i < def.BufferCount; i++ {
		h, err := c.component.UseBuffer(c.inputPort, make([]byte, 1))
		if err != nil {
			return err
		}
		headers = append(headers, h)
	}
	c.bk.seedFreeInput(headers)
	return nil
}

// allocateFakeOutputBuffers always asks for kNumPictureBuffers, ignoring
// any larger minimum the component's port definition might report -
// a known source of under-allocation the original also carries; see
// DESIGN.md.
func (c *Coordinator) allocateFakeOutputBuffers() error {
	for i := 0; i < kNumPictureBuffers; i++ {
		h, err := c.component.AllocateBuffer(c.outputPort, 0)
		if err != nil {
			return err
		}
		h.Private = c.bk.outputSide.Put(outputPrivate{isFake: true})
		c.bk.addFakeOutput(h)
	}
	return nil
}

// Decode submits or queues one bitstream buffer. An EOS sentinel
// (ID == -1, no data) marks the end of the stream.
func (c *Coordinator) Decode(buf BitstreamBuffer) {
	c.queue.Post(func() { c.decodeOnControlThread(buf) })
}

func (c *Coordinator) decodeOnControlThread(buf BitstreamBuffer) {
	if c.transition == TransitionResetting || c.transition == TransitionInitializing ||
		c.bk.hasQueuedBitstream() {
		c.bk.enqueueBitstream(buf)
		return
	}
	header, ok := c.bk.takeFreeInput()
	if !ok {
		c.bk.enqueueBitstream(buf)
		return
	}
	c.submitInput(header, buf)
}

func (c *Coordinator) submitInput(header *omxil.BufferHeader, buf BitstreamBuffer) {
	if buf.isEndOfStream() {
		header.Flags = omxil.BufferFlagEOS
		header.Filled = 0
		header.Timestamp = endOfStreamTimestamp
		header.Private = c.bk.inputSide.Put(inputSideChannel{isEOS: true})
	} else {
		header.Data = buf.Data
		header.Filled = len(buf.Data)
		header.Flags = 0
		header.Timestamp = int64(buf.ID)
		header.Private = c.bk.inputSide.Put(inputSideChannel{bitstreamID: buf.ID})
	}
	if err := c.component.EmptyThisBuffer(header); err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
	}
}

// drainQueuedBitstream dispatches as many queued submissions as there
// are free input headers, preserving FIFO order.
func (c *Coordinator) drainQueuedBitstream() {
	for c.bk.hasQueuedBitstream() {
		header, ok := c.bk.takeFreeInput()
		if !ok {
			return
		}
		buf, _ := c.bk.dequeueBitstream()
		c.submitInput(header, buf)
	}
}

// AssignPictureBuffers binds client-supplied picture buffers to output
// headers and requests the output port be enabled. It is a silent
// no-op during Resetting, Destroying, or Erroring.
func (c *Coordinator) AssignPictureBuffers(buffers []PictureBuffer) {
	c.queue.Post(func() { c.assignPictureBuffersOnControlThread(buffers) })
}

func (c *Coordinator) assignPictureBuffersOnControlThread(buffers []PictureBuffer) {
	switch c.transition {
	case TransitionResetting, TransitionDestroying, TransitionErroring:
		return
	}
	if len(buffers) != kNumPictureBuffers {
		c.stopOnError(ErrorKindInvalidArgument, nil)
		return
	}
	outDef, err := c.component.GetPortDefinition(c.outputPort)
	if err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
		return
	}
	for _, pb := range buffers {
		image, err := c.translator.Translate(pb.TextureRef, int(outDef.FrameWidth), int(outDef.FrameHeight))
		if err != nil {
			c.stopOnError(ErrorKindPlatformFailure, err)
			return
		}
		header, err := c.component.AllocateBuffer(c.outputPort, 0)
		if err != nil {
			c.stopOnError(ErrorKindPlatformFailure, err)
			return
		}
		header.Private = c.bk.outputSide.Put(outputPrivate{pictureBufferID: pb.PictureBufferID})
		c.bk.addRealPicture(pb.PictureBufferID, pb, header)
		c.bk.pictureImages[pb.PictureBufferID] = image
	}
	if err := c.component.SendCommand(omxil.CommandPortEnable, uint32(c.outputPort)); err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
	}
}

// ReusePictureBuffer returns a picture the client is done displaying
// back to the component once its GPU fence signals.
func (c *Coordinator) ReusePictureBuffer(pictureBufferID int32) {
	c.queue.Post(func() {
		fence := c.fences.Get(int(pictureBufferID))
		c.pollReuseFence(pictureBufferID, fence)
	})
}

func (c *Coordinator) pollReuseFence(id int32, fence gpufence.Fence) {
	if err := gpufence.WaitTimeout(fence, 0); err != nil {
		c.queue.PostAfter(pictureSyncPollInterval, func() { c.pollReuseFence(id, fence) })
		return
	}
	c.fences.Release(int(id))
	c.queue.Post(func() { c.resubmitPicture(id) })
}

func (c *Coordinator) resubmitPicture(id int32) {
	entry, ok := c.bk.realPicture(id)
	if !ok {
		return
	}
	if err := c.component.FillThisBuffer(entry.header); err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
	}
}

// Flush drains the pipeline to the end of the current stream. It
// requires the session be quiescent and Executing.
func (c *Coordinator) Flush() error {
	var callErr error
	c.queue.Call(func() {
		if c.transition != TransitionNone || c.componentState != StateExecuting {
			callErr = newError("Flush", ErrorKindIllegalState, nil)
			return
		}
		c.transition = TransitionFlushing
		c.decodeOnControlThread(BitstreamBuffer{ID: -1})
	})
	return callErr
}

// Reset drains in-flight work without ending the stream, returning the
// component to Executing ready for further Decode calls.
func (c *Coordinator) Reset() error {
	var callErr error
	c.queue.Call(func() {
		if c.transition != TransitionNone || c.componentState != StateExecuting {
			callErr = newError("Reset", ErrorKindIllegalState, nil)
			return
		}
		c.transition = TransitionResetting
		if err := c.component.SendCommand(omxil.CommandStateSet, uint32(omxil.StatePause)); err != nil {
			c.stopOnError(ErrorKindPlatformFailure, err)
		}
	})
	return callErr
}

// Destroy tears the session down. It is fire-and-forget: the handshake
// with the component continues asynchronously, driven entirely by the
// component's own callbacks (see dispatchStateReached's Destroying row)
// rather than by any self-rescheduling poll.
func (c *Coordinator) Destroy() {
	c.queue.Post(func() { c.destroyOnControlThread() })
}

func (c *Coordinator) destroyOnControlThread() {
	if c.transition == TransitionErroring || c.transition == TransitionDestroying {
		return
	}
	if c.componentState == StateUnloaded {
		c.componentState = StateTerminated
		go c.queue.Stop()
		return
	}
	c.client.Invalidate()
	if c.componentState == StateLoaded || c.componentState == StateInvalid {
		c.freeBuffersAndReleaseHandle()
		c.componentState = StateTerminated
		go c.queue.Stop()
		return
	}
	c.transition = TransitionDestroying
	if err := c.component.SendCommand(omxil.CommandStateSet, uint32(omxil.StateIdle)); err != nil {
		// The component is already unreachable; finish the teardown
		// locally rather than waiting for a callback that won't come.
		c.freeBuffersAndReleaseHandle()
		c.componentState = StateTerminated
		go c.queue.Stop()
	}
}

// freeBuffers releases every buffer the coordinator holds against the
// component without touching the component handle itself. This is the
// Idle-state half of teardown: the handle stays open until the
// component actually reaches Loaded (see dispatchStateReached's
// Destroying row), matching OMX-IL's Executing->Idle->Loaded->FreeHandle
// sequence instead of closing the handle before Loaded is requested.
func (c *Coordinator) freeBuffers() {
	for h := range c.bk.fakeOutputs {
		if err := c.component.FreeBuffer(h); err != nil {
			c.log.Warn("omxil: free fake output buffer failed during teardown", "err", err)
		}
	}
	c.bk.fakeOutputs = map[*omxil.BufferHeader]struct{}{}

	for id, entry := range c.bk.realPictures {
		if err := c.component.FreeBuffer(entry.header); err != nil {
			c.log.Warn("omxil: free picture buffer failed during teardown", "picture_id", id, "err", err)
		}
		c.client.deliver(func(cl Client) { cl.DismissPictureBuffer(id) })
	}
	c.bk.realPictures = map[int32]*outputPictureEntry{}
	c.bk.pictureImages = map[int32]gpufence.ExternalImage{}

	for _, h := range c.bk.freeInput {
		if err := c.component.FreeBuffer(h); err != nil {
			c.log.Warn("omxil: free input buffer failed during teardown", "err", err)
		}
	}
	c.bk.freeInput = nil
}

// releaseHandle closes the component handle. Buffers must already be
// free; call freeBuffers first.
func (c *Coordinator) releaseHandle() {
	if !c.handleOpen {
		return
	}
	if err := c.component.FreeHandle(); err != nil {
		c.log.Warn("omxil: free handle failed during teardown", "err", err)
	}
	c.handleOpen = false
}

// freeBuffersAndReleaseHandle does both steps at once, for the teardown
// paths that skip the Idle->Loaded handshake entirely (the component is
// already stopped, unreachable, or invalid).
func (c *Coordinator) freeBuffersAndReleaseHandle() {
	if !c.handleOpen {
		return
	}
	c.freeBuffers()
	c.releaseHandle()
}

// stopOnError is the single path by which an internal failure becomes a
// client-visible error and, if the session hadn't already reached a
// terminal state, forces the component to Invalid for a clean teardown.
func (c *Coordinator) stopOnError(kind ErrorKind, cause error) {
	if cause != nil {
		c.log.Error("ovda: stopping on error", "kind", kind, "err", cause)
	}
	if c.transition == TransitionErroring {
		return
	}
	wasInitialized := c.componentState != StateUnloaded
	if wasInitialized {
		c.client.deliver(func(cl Client) { cl.NotifyError(kind) })
		c.client.Invalidate()
	}
	if c.componentState == StateInvalid || c.componentState == StateTerminated {
		return
	}
	c.transition = TransitionErroring
	if err := c.component.SendCommand(omxil.CommandStateSet, uint32(omxil.StateInvalid)); err != nil {
		c.freeBuffersAndReleaseHandle()
		c.componentState = StateInvalid
	}
}

func (c *Coordinator) onEvent(event omxil.EventType, d1, d2 uint32) {
	switch event {
	case omxil.EventCmdComplete:
		c.onCommandComplete(omxil.Command(d1), d2)
	case omxil.EventPortSettingsChanged:
		c.onPortSettingsChanged(int(d1))
	case omxil.EventError:
		c.stopOnError(ErrorKindPlatformFailure, nil)
	case omxil.EventBufferFlag:
		// End-of-stream is detected via the BufferHeader flag on
		// FillBufferDone instead; this event carries no extra
		// information this coordinator needs.
	}
}

func (c *Coordinator) onCommandComplete(cmd omxil.Command, param uint32) {
	switch cmd {
	case omxil.CommandStateSet:
		c.dispatchStateReached(componentStateFromOMX(omxil.State(param)))
	case omxil.CommandFlush:
		c.onPortFlushComplete(int(param))
	case omxil.CommandPortEnable:
		c.onPortEnableComplete(int(param))
	case omxil.CommandPortDisable:
		c.onPortDisableComplete(int(param))
	}
}

func componentStateFromOMX(s omxil.State) ComponentState {
	switch s {
	case omxil.StateLoaded:
		return StateLoaded
	case omxil.StateIdle:
		return StateIdle
	case omxil.StateExecuting:
		return StateExecuting
	case omxil.StatePause:
		return StatePaused
	case omxil.StateInvalid:
		return StateInvalid
	default:
		return StateInvalid
	}
}

// dispatchStateReached is the table from the design: on every confirmed
// component state arrival, behavior depends only on (transition, reached).
// Any combination not listed here is a protocol violation.
func (c *Coordinator) dispatchStateReached(reached ComponentState) {
	c.componentState = reached

	switch {
	case c.transition == TransitionInitializing && reached == StateIdle:
		if err := c.component.SendCommand(omxil.CommandStateSet, uint32(omxil.StateExecuting)); err != nil {
			c.stopOnError(ErrorKindPlatformFailure, err)
		}
	case c.transition == TransitionInitializing && reached == StateExecuting:
		c.transition = TransitionNone
		c.client.deliver(func(cl Client) { cl.NotifyInitializationComplete(true) })
		c.submitFakeOutputs()

	case c.transition == TransitionResetting && reached == StatePaused:
		if err := c.component.SendCommand(omxil.CommandFlush, uint32(c.inputPort)); err != nil {
			c.stopOnError(ErrorKindPlatformFailure, err)
		}
	case c.transition == TransitionResetting && reached == StateExecuting:
		c.transition = TransitionNone
		c.drainQueuedBitstream()
		for {
			id, ok := c.bk.dequeuePictureID()
			if !ok {
				break
			}
			c.resubmitPicture(id)
		}
		c.client.deliver(func(cl Client) { cl.NotifyResetDone() })

	case c.transition == TransitionDestroying && reached == StateIdle:
		c.freeBuffers()
		if err := c.component.SendCommand(omxil.CommandStateSet, uint32(omxil.StateLoaded)); err != nil {
			c.releaseHandle()
			c.componentState = StateTerminated
			go c.queue.Stop()
		}
	case c.transition == TransitionDestroying && reached == StateLoaded:
		c.releaseHandle()
		c.componentState = StateTerminated
		go c.queue.Stop()
	case c.transition == TransitionDestroying && (reached == StateExecuting || reached == StatePaused):
		// Stale arrival racing the teardown's own Idle request; ignore.

	case c.transition == TransitionErroring && reached == StateInvalid:
		c.freeBuffersAndReleaseHandle()

	default:
		c.stopOnError(ErrorKindIllegalState, nil)
	}
}

func (c *Coordinator) submitFakeOutputs() {
	for h := range c.bk.fakeOutputs {
		if err := c.component.FillThisBuffer(h); err != nil {
			c.stopOnError(ErrorKindPlatformFailure, err)
			return
		}
	}
}

func (c *Coordinator) onPortFlushComplete(port int) {
	if c.transition != TransitionResetting {
		return
	}
	if port == c.inputPort {
		if c.bk.inputAtComponent != 0 {
			c.stopOnError(ErrorKindIllegalState, nil)
			return
		}
		if err := c.component.SendCommand(omxil.CommandFlush, uint32(c.outputPort)); err != nil {
			c.stopOnError(ErrorKindPlatformFailure, err)
		}
		return
	}
	if port == c.outputPort {
		if err := c.component.SendCommand(omxil.CommandStateSet, uint32(omxil.StateExecuting)); err != nil {
			c.stopOnError(ErrorKindPlatformFailure, err)
		}
	}
}

func (c *Coordinator) onPortEnableComplete(port int) {
	if port != c.outputPort {
		return
	}
	for _, id := range c.bk.allRealPictureIDs() {
		entry, _ := c.bk.realPicture(id)
		if err := c.component.FillThisBuffer(entry.header); err != nil {
			c.stopOnError(ErrorKindPlatformFailure, err)
			return
		}
	}
}

func (c *Coordinator) onPortDisableComplete(port int) {
	if port != c.outputPort {
		return
	}
	outDef, err := c.component.GetPortDefinition(c.outputPort)
	if err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
		return
	}
	c.client.deliver(func(cl Client) {
		cl.ProvidePictureBuffers(kNumPictureBuffers, PixelFormatNV12, Size{Width: outDef.FrameWidth, Height: outDef.FrameHeight})
	})
}

func (c *Coordinator) onPortSettingsChanged(port int) {
	// A change after picture buffers are already assigned is not supported.
	if c.bk.realPictureCount() > 0 {
		c.stopOnError(ErrorKindPlatformFailure, nil)
		return
	}
	if err := c.component.SendCommand(omxil.CommandPortDisable, uint32(port)); err != nil {
		c.stopOnError(ErrorKindPlatformFailure, err)
	}
}

func (c *Coordinator) onEmptyBufferDone(h *omxil.BufferHeader) {
	side, ok := c.bk.inputSide.Take(h.Private)
	c.bk.returnFreeInput(h)
	if ok && !side.isEOS {
		c.client.deliver(func(cl Client) { cl.NotifyEndOfBitstreamBuffer(side.bitstreamID) })
	}
	c.drainQueuedBitstream()
}

func (c *Coordinator) onFillBufferDone(h *omxil.BufferHeader) {
	if c.transition == TransitionDestroying || c.transition == TransitionErroring {
		return
	}

	if c.bk.takeFakeOutput(h) {
		if err := c.component.FreeBuffer(h); err != nil {
			c.log.Warn("omxil: free retired fake output buffer failed", "err", err)
		}
		return
	}

	priv, _ := c.bk.outputSide.Get(h.Private)

	if h.Flags&omxil.BufferFlagEOS != 0 {
		// Mirrors the original's OnReachedEOSInFlushing: the transition
		// clears before NotifyFlushDone, so a second Flush/Reset issued
		// from the client's callback doesn't see a stale Flushing state.
		c.transition = TransitionNone
		c.client.deliver(func(cl Client) { cl.NotifyFlushDone() })
		c.ReusePictureBuffer(priv.pictureBufferID)
		return
	}

	if c.transition == TransitionResetting {
		c.bk.enqueuePictureID(priv.pictureBufferID)
		return
	}

	image := c.bk.pictureImages[priv.pictureBufferID]
	c.client.deliver(func(cl Client) {
		cl.PictureReady(Picture{
			PictureBufferID: priv.pictureBufferID,
			BitstreamID:     int32(h.Timestamp),
			Image:           image,
		})
	})
}

// waitForControlThread blocks until every task posted before this call
// has run, for tests that need to observe post-dispatch state.
func (c *Coordinator) waitForControlThread() {
	c.queue.Call(func() {})
}
