package omxil

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// componentFuncs holds the per-component entry points resolved off the
// OMX_COMPONENTTYPE vtable that OMX_GetHandle hands back. The real OMX-IL
// core lays these out as a C struct of function pointers; purego.NewProc
// plus manual offset arithmetic would be one way to reach them, but every
// R-Car core this package has shipped against also exports flattened
// OMX_* wrappers taking the handle as their first argument, so this binds
// those instead of walking the vtable by hand.
type componentFuncs struct {
	SendCommand       func(handle uintptr, cmd int32, param uint32, data uintptr) int32
	GetParameter      func(handle uintptr, index int32, out uintptr) int32
	SetParameter      func(handle uintptr, index int32, in uintptr) int32
	UseBuffer         func(handle uintptr, out *uintptr, port uint32, appPrivate uintptr, size uint32, data uintptr) int32
	AllocateBuffer    func(handle uintptr, out *uintptr, port uint32, appPrivate uintptr, size uint32) int32
	FreeBuffer        func(handle uintptr, port uint32, buffer uintptr) int32
	EmptyThisBuffer   func(handle uintptr, buffer uintptr) int32
	FillThisBuffer    func(handle uintptr, buffer uintptr) int32
}

var (
	componentFuncsOnce sync.Once
	cfuncs             componentFuncs
)

func ensureComponentFuncs() {
	componentFuncsOnce.Do(func() {
		libMu.Lock()
		handle := libHandle
		libMu.Unlock()

		purego.RegisterLibFunc(&cfuncs.SendCommand, handle, "OMX_SendCommand")
		purego.RegisterLibFunc(&cfuncs.GetParameter, handle, "OMX_GetParameter")
		purego.RegisterLibFunc(&cfuncs.SetParameter, handle, "OMX_SetParameter")
		purego.RegisterLibFunc(&cfuncs.UseBuffer, handle, "OMX_UseBuffer")
		purego.RegisterLibFunc(&cfuncs.AllocateBuffer, handle, "OMX_AllocateBuffer")
		purego.RegisterLibFunc(&cfuncs.FreeBuffer, handle, "OMX_FreeBuffer")
		purego.RegisterLibFunc(&cfuncs.EmptyThisBuffer, handle, "OMX_EmptyThisBuffer")
		purego.RegisterLibFunc(&cfuncs.FillThisBuffer, handle, "OMX_FillThisBuffer")
	})
}

// realComponent is the Component implementation backed by the dlopen'd
// shared library. It is the only implementation the production binary
// constructs; tests construct a FakeComponent instead (see fake.go).
type realComponent struct {
	handle uintptr

	mu      sync.Mutex
	buffers map[uintptr]*BufferHeader // native pBufferHdr -> our wrapper
}

// NewComponent returns a Component bound to the dlopen'd OMX-IL core.
// LoadLibrary must have already succeeded.
func NewComponent() (Component, error) {
	if !IsLoaded() {
		return nil, ErrLibraryNotLoaded
	}
	ensureComponentFuncs()
	return &realComponent{buffers: map[uintptr]*BufferHeader{}}, nil
}

func (c *realComponent) GetHandle(role Role, cb Callbacks) error {
	var numComponents uint32 = 1
	var names [1]uintptr
	if rc := lib.GetComponentsOfRole(string(role), &numComponents, uintptr(unsafe.Pointer(&names[0]))); rc != 0 || numComponents == 0 {
		return fmt.Errorf("%w: role=%s rc=%d", ErrNoSuchRole, role, rc)
	}

	tr := ensureTrampolines()
	callbackStruct := packCallbackStruct(tr)

	var handle uintptr
	componentName := componentNameFromRole(role)
	if rc := lib.GetHandle(&handle, componentName, 0, uintptr(unsafe.Pointer(&callbackStruct[0]))); rc != 0 {
		return fmt.Errorf("%w: OMX_GetHandle rc=%d", ErrCommandFailed, rc)
	}

	c.handle = handle
	registerComponent(handle, c)
	registerCallbacks(handle, cb)
	return nil
}

func (c *realComponent) FreeHandle() error {
	if c.handle == 0 {
		return ErrHandleNotOpen
	}
	unregisterCallbacks(c.handle)
	unregisterComponent(c.handle)
	rc := lib.FreeHandle(c.handle)
	c.handle = 0
	if rc != 0 {
		return fmt.Errorf("%w: OMX_FreeHandle rc=%d", ErrCommandFailed, rc)
	}
	return nil
}

func (c *realComponent) GetPortDefinition(port int) (PortDefinition, error) {
	if c.handle == 0 {
		return PortDefinition{}, ErrHandleNotOpen
	}
	raw := newOMXPortDefinition(port)
	if rc := cfuncs.GetParameter(c.handle, indexParamPortDefinition, uintptr(unsafe.Pointer(&raw[0]))); rc != 0 {
		return PortDefinition{}, fmt.Errorf("%w: GetParameter(port) rc=%d", ErrCommandFailed, rc)
	}
	return decodeOMXPortDefinition(raw), nil
}

func (c *realComponent) SetPortDefinition(def PortDefinition) error {
	if c.handle == 0 {
		return ErrHandleNotOpen
	}
	raw := encodeOMXPortDefinition(def)
	if rc := cfuncs.SetParameter(c.handle, indexParamPortDefinition, uintptr(unsafe.Pointer(&raw[0]))); rc != 0 {
		return fmt.Errorf("%w: SetParameter(port) rc=%d", ErrCommandFailed, rc)
	}
	return nil
}

func (c *realComponent) SendCommand(cmd Command, param uint32) error {
	if c.handle == 0 {
		return ErrHandleNotOpen
	}
	if rc := cfuncs.SendCommand(c.handle, omxCommandCode(cmd), param, 0); rc != 0 {
		return fmt.Errorf("%w: SendCommand(%v,%d) rc=%d", ErrCommandFailed, cmd, param, rc)
	}
	return nil
}

func (c *realComponent) UseBuffer(port int, data []byte) (*BufferHeader, error) {
	if c.handle == 0 {
		return nil, ErrHandleNotOpen
	}
	var dataPtr uintptr
	if len(data) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&data[0]))
	}
	var native uintptr
	if rc := cfuncs.UseBuffer(c.handle, &native, uint32(port), 0, uint32(len(data)), dataPtr); rc != 0 {
		return nil, fmt.Errorf("%w: OMX_UseBuffer rc=%d", ErrCommandFailed, rc)
	}
	header := &BufferHeader{Port: port, Data: data, nativeHandle: native}
	c.mu.Lock()
	c.buffers[native] = header
	c.mu.Unlock()
	return header, nil
}

func (c *realComponent) AllocateBuffer(port int, size int) (*BufferHeader, error) {
	if c.handle == 0 {
		return nil, ErrHandleNotOpen
	}
	var native uintptr
	if rc := cfuncs.AllocateBuffer(c.handle, &native, uint32(port), 0, uint32(size)); rc != 0 {
		return nil, fmt.Errorf("%w: OMX_AllocateBuffer rc=%d", ErrCommandFailed, rc)
	}
	header := &BufferHeader{Port: port, Data: make([]byte, size), nativeHandle: native}
	c.mu.Lock()
	c.buffers[native] = header
	c.mu.Unlock()
	return header, nil
}

func (c *realComponent) FreeBuffer(header *BufferHeader) error {
	if c.handle == 0 {
		return ErrHandleNotOpen
	}
	c.mu.Lock()
	delete(c.buffers, header.nativeHandle)
	c.mu.Unlock()
	if rc := cfuncs.FreeBuffer(c.handle, uint32(header.Port), header.nativeHandle); rc != 0 {
		return fmt.Errorf("%w: OMX_FreeBuffer rc=%d", ErrCommandFailed, rc)
	}
	return nil
}

func (c *realComponent) EmptyThisBuffer(header *BufferHeader) error {
	if c.handle == 0 {
		return ErrHandleNotOpen
	}
	writeOMXBufferFields(header)
	if rc := cfuncs.EmptyThisBuffer(c.handle, header.nativeHandle); rc != 0 {
		return fmt.Errorf("%w: OMX_EmptyThisBuffer rc=%d", ErrCommandFailed, rc)
	}
	return nil
}

func (c *realComponent) FillThisBuffer(header *BufferHeader) error {
	if c.handle == 0 {
		return ErrHandleNotOpen
	}
	if rc := cfuncs.FillThisBuffer(c.handle, header.nativeHandle); rc != 0 {
		return fmt.Errorf("%w: OMX_FillThisBuffer rc=%d", ErrCommandFailed, rc)
	}
	return nil
}

func headerFromNative(hComponent, pBufferHdr uintptr) *BufferHeader {
	comp, ok := lookupComponent(hComponent)
	if !ok {
		return &BufferHeader{nativeHandle: pBufferHdr}
	}
	comp.mu.Lock()
	defer comp.mu.Unlock()
	if h, ok := comp.buffers[pBufferHdr]; ok {
		readOMXBufferFields(h)
		return h
	}
	return &BufferHeader{nativeHandle: pBufferHdr}
}

var (
	componentRegistryMu sync.RWMutex
	componentRegistry   = map[uintptr]*realComponent{}
)

func registerComponent(handle uintptr, c *realComponent) {
	componentRegistryMu.Lock()
	defer componentRegistryMu.Unlock()
	componentRegistry[handle] = c
}

func unregisterComponent(handle uintptr) {
	componentRegistryMu.Lock()
	defer componentRegistryMu.Unlock()
	delete(componentRegistry, handle)
}

func lookupComponent(handle uintptr) (*realComponent, bool) {
	componentRegistryMu.RLock()
	defer componentRegistryMu.RUnlock()
	c, ok := componentRegistry[handle]
	return c, ok
}
