// Package omxil binds the coordinator to an OpenMAX-IL–shaped video decode
// component. It exposes the narrow slice of the OMX-IL command surface the
// coordinator needs (§6 of the design spec this package implements against)
// behind a Component interface, so the coordinator can be exercised against
// either the real shared-library binding (LoadLibrary + NewComponent) or an
// in-process simulation (NewFakeComponent) without changing a line of
// coordinator code.
package omxil

import "fmt"

// State mirrors OMX_STATETYPE, restricted to the values this package's
// caller ever requests or observes.
type State int32

const (
	StateInvalid State = iota
	StateLoaded
	StateIdle
	StateExecuting
	StatePause
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "Invalid"
	case StateLoaded:
		return "Loaded"
	case StateIdle:
		return "Idle"
	case StateExecuting:
		return "Executing"
	case StatePause:
		return "Pause"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Command mirrors the subset of OMX_COMMANDTYPE the coordinator issues.
type Command int32

const (
	CommandStateSet Command = iota
	CommandPortEnable
	CommandPortDisable
	CommandFlush
)

// EventType mirrors the subset of OMX_EVENTTYPE the coordinator observes.
type EventType int32

const (
	EventCmdComplete EventType = iota
	EventError
	EventPortSettingsChanged
	EventBufferFlag
)

// Role identifies the OMX-IL component role to request by name, matching
// OMX_GetComponentsOfRole's role-name convention.
type Role string

const (
	RoleH264Decoder Role = "video_decoder.avc"
	RoleVP8Decoder  Role = "video_decoder.vpx"
)

// BufferFlag mirrors the OMX_BUFFERFLAG_* bits this package's caller sets
// or inspects.
type BufferFlag uint32

const (
	BufferFlagEOS BufferFlag = 1 << 0
)

// BufferHeader mirrors OMX_BUFFERHEADERTYPE. Private is a coordinator-owned
// slot index (never a raw pointer — see privateTable in pkg/ovda/privatetable.go)
// that the component is required to leave untouched and return verbatim on
// EmptyBufferDone/FillBufferDone.
type BufferHeader struct {
	Port      int
	Data      []byte
	Filled    int
	Flags     BufferFlag
	Timestamp int64
	Private   int

	nativeHandle uintptr // opaque; only realComponent/FakeComponent touch this
}

// PortDefinition mirrors the fields of OMX_PARAM_PORTDEFINITIONTYPE the
// coordinator reads or writes.
type PortDefinition struct {
	Port           int
	IsInput        bool
	BufferCount    int
	BufferCountMin int
	BufferSize     int
	FrameWidth     int32
	FrameHeight    int32
}

// Callbacks are invoked from the component's own thread (the real
// shared-library binding) or from a dedicated simulation goroutine (the
// fake). Implementations MUST do nothing but hand their arguments to a
// control-thread task queue — see ovda's wiring in coordinator.go.
type Callbacks struct {
	EventHandler    func(event EventType, data1, data2 uint32)
	EmptyBufferDone func(header *BufferHeader)
	FillBufferDone  func(header *BufferHeader)
}

// Component is the narrow OMX-IL command surface the coordinator drives.
type Component interface {
	// GetHandle resolves role to a component name and opens it, wiring cb
	// to receive this component's callbacks from here on.
	GetHandle(role Role, cb Callbacks) error
	FreeHandle() error

	GetPortDefinition(port int) (PortDefinition, error)
	SetPortDefinition(def PortDefinition) error

	SendCommand(cmd Command, param uint32) error

	// UseBuffer wraps caller-owned memory (data) as an input buffer header.
	// data may be a placeholder slice — see DESIGN.md's note on the
	// AllocateInputBuffers sentinel-pointer open question this mirrors.
	UseBuffer(port int, data []byte) (*BufferHeader, error)
	// AllocateBuffer asks the component to allocate and own size bytes on
	// the given port, returning a header bound to that component memory.
	AllocateBuffer(port int, size int) (*BufferHeader, error)
	FreeBuffer(header *BufferHeader) error

	EmptyThisBuffer(header *BufferHeader) error
	FillThisBuffer(header *BufferHeader) error
}
