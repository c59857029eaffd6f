package omxil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FakeComponent is an in-process Component that simulates an OMX-IL video
// decoder's observable protocol without touching any shared library. It
// exists so the coordinator's scenario tests can drive every transition
// (including ones a real component on a dev box rarely reaches, like
// mid-flush errors) deterministically and without hardware.
//
// Every callback is delivered from a dedicated goroutine, the same way a
// real component's callbacks arrive on a thread the coordinator doesn't
// control — callers must not assume FakeComponent calls are synchronous
// with the command that provoked them.
type FakeComponent struct {
	mu    sync.Mutex
	state State
	ports map[int]PortDefinition
	cb    Callbacks

	buffers    map[int]*BufferHeader
	nextBuffer atomic.Int64

	lastEmptyTimestamp atomic.Int64
	lastEmptyFlags     atomic.Int32

	// CallbackDelay controls how long the simulation waits before firing
	// each async callback. Tests that don't care about ordering races
	// leave it at its zero value.
	CallbackDelay time.Duration

	// FillBehavior lets a test script what FillThisBuffer does to the
	// buffer before it's handed back as FillBufferDone. The default
	// (nil) fills nothing and reports zero bytes, stamped with the
	// timestamp of the most recent non-EOS input; it sets the EOS flag
	// when the most recent input carried EOS and clears the flags
	// otherwise.
	FillBehavior func(h *BufferHeader)

	// PortSettingsChangedAfterFills, when non-zero, makes the simulation
	// emit a single OMX_EventPortSettingsChanged for the output port
	// after that many FillThisBuffer calls have been accepted. This
	// mirrors the real decoder's behavior of learning the stream's
	// picture geometry only after decoding has begun.
	PortSettingsChangedAfterFills int
	fillsAccepted                 int

	closed bool
}

// NewFakeComponent returns a FakeComponent with input port 0 and output
// port 1 pre-populated with plausible defaults, matching the two-port
// layout every OMX-IL video decoder role exposes.
func NewFakeComponent() *FakeComponent {
	return &FakeComponent{
		state: StateLoaded,
		ports: map[int]PortDefinition{
			0: {Port: 0, IsInput: true, BufferCount: 4, BufferCountMin: 2, BufferSize: 64 * 1024},
			1: {Port: 1, IsInput: false, BufferCount: 8, BufferCountMin: 4, BufferSize: 0, FrameWidth: 1920, FrameHeight: 1080},
		},
		buffers: map[int]*BufferHeader{},
	}
}

func (f *FakeComponent) GetHandle(role Role, cb Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
	return nil
}

func (f *FakeComponent) FreeHandle() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeComponent) GetPortDefinition(port int) (PortDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.ports[port]
	if !ok {
		return PortDefinition{}, ErrInvalidPort
	}
	return def, nil
}

func (f *FakeComponent) SetPortDefinition(def PortDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ports[def.Port]; !ok {
		return ErrInvalidPort
	}
	f.ports[def.Port] = def
	return nil
}

func (f *FakeComponent) SendCommand(cmd Command, param uint32) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrHandleNotOpen
	}
	if cmd == CommandStateSet {
		f.state = State(param)
	}
	cb := f.cb
	f.mu.Unlock()

	f.asyncEvent(cb, func() {
		cb.EventHandler(EventCmdComplete, uint32(cmd), param)
	})
	return nil
}

func (f *FakeComponent) UseBuffer(port int, data []byte) (*BufferHeader, error) {
	return f.newBuffer(port, data)
}

func (f *FakeComponent) AllocateBuffer(port int, size int) (*BufferHeader, error) {
	return f.newBuffer(port, make([]byte, size))
}

func (f *FakeComponent) newBuffer(port int, data []byte) (*BufferHeader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ports[port]; !ok {
		return nil, ErrInvalidPort
	}
	id := int(f.nextBuffer.Add(1))
	h := &BufferHeader{Port: port, Data: data, nativeHandle: uintptr(id)}
	f.buffers[id] = h
	return h, nil
}

func (f *FakeComponent) FreeBuffer(header *BufferHeader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.buffers, int(header.nativeHandle))
	return nil
}

func (f *FakeComponent) EmptyThisBuffer(header *BufferHeader) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrHandleNotOpen
	}
	cb := f.cb
	f.mu.Unlock()

	if header.Flags&BufferFlagEOS == 0 {
		f.lastEmptyTimestamp.Store(header.Timestamp)
	}
	f.lastEmptyFlags.Store(int32(header.Flags))

	f.asyncEvent(cb, func() {
		cb.EmptyBufferDone(header)
	})
	return nil
}

func (f *FakeComponent) FillThisBuffer(header *BufferHeader) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrHandleNotOpen
	}
	cb := f.cb
	behavior := f.FillBehavior
	f.fillsAccepted++
	firePortSettingsChanged := f.PortSettingsChangedAfterFills > 0 && f.fillsAccepted == f.PortSettingsChangedAfterFills
	f.mu.Unlock()

	if behavior != nil {
		behavior(header)
	} else if BufferFlag(f.lastEmptyFlags.Load())&BufferFlagEOS != 0 {
		header.Flags = BufferFlagEOS
		header.Timestamp = f.lastEmptyTimestamp.Load()
	} else {
		header.Flags = 0
		header.Timestamp = f.lastEmptyTimestamp.Load()
	}

	f.asyncEvent(cb, func() {
		if firePortSettingsChanged {
			cb.EventHandler(EventPortSettingsChanged, uint32(header.Port), 0)
		}
		cb.FillBufferDone(header)
	})
	return nil
}

// InjectError delivers an OMX_EventError as if the simulated component
// had failed on its own, for scenario tests that need to exercise the
// error-handling transition without a real hardware fault.
func (f *FakeComponent) InjectError(code uint32) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	f.asyncEvent(cb, func() {
		cb.EventHandler(EventError, code, 0)
	})
}

func (f *FakeComponent) asyncEvent(cb Callbacks, fire func()) {
	go func() {
		if f.CallbackDelay > 0 {
			time.Sleep(f.CallbackDelay)
		}
		safeCallback("fake-component-event", fire)
	}()
}

var _ fmt.Stringer = State(0)
