package omxil

import "encoding/binary"

// This file packs and unpacks the small slice of OMX-IL wire structures
// this package touches (OMX_CALLBACKTYPE, OMX_PARAM_PORTDEFINITIONTYPE's
// video-relevant fields, and OMX_BUFFERHEADERTYPE's mutable fields) into
// flat byte buffers laid out to match the R-Car core's C ABI. It exists
// so component.go never has to reach for cgo or //go:linkname to cross
// the struct boundary — purego calls take and return plain words, so the
// structs it points at are built and read back here instead.

const (
	indexParamPortDefinition int32 = 0x06000001
)

func omxCommandCode(cmd Command) int32 {
	switch cmd {
	case CommandStateSet:
		return 1
	case CommandPortEnable:
		return 5
	case CommandPortDisable:
		return 4
	case CommandFlush:
		return 3
	default:
		return int32(cmd)
	}
}

func packCallbackStruct(tr trampolines) []uintptr {
	return []uintptr{tr.eventHandler, tr.emptyBufferDone, tr.fillBufferDone}
}

func componentNameFromRole(role Role) string {
	switch role {
	case RoleH264Decoder:
		return "OMX.renesas.video_decoder.avc"
	case RoleVP8Decoder:
		return "OMX.renesas.video_decoder.vpx"
	default:
		return string(role)
	}
}

// portDefinitionWireSize is generous: nPortIndex, eDir, nBufferCountActual,
// nBufferCountMin, nBufferSize, then the nested format.video sub-struct's
// nFrameWidth/nFrameHeight, each a uint32/int32.
const portDefinitionWireSize = 64

func newOMXPortDefinition(port int) []byte {
	buf := make([]byte, portDefinitionWireSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(port))
	return buf
}

func encodeOMXPortDefinition(def PortDefinition) []byte {
	buf := make([]byte, portDefinitionWireSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(def.Port))
	if def.IsInput {
		binary.LittleEndian.PutUint32(buf[4:], 0)
	} else {
		binary.LittleEndian.PutUint32(buf[4:], 1)
	}
	binary.LittleEndian.PutUint32(buf[8:], uint32(def.BufferCount))
	binary.LittleEndian.PutUint32(buf[12:], uint32(def.BufferCountMin))
	binary.LittleEndian.PutUint32(buf[16:], uint32(def.BufferSize))
	binary.LittleEndian.PutUint32(buf[20:], uint32(def.FrameWidth))
	binary.LittleEndian.PutUint32(buf[24:], uint32(def.FrameHeight))
	return buf
}

func decodeOMXPortDefinition(buf []byte) PortDefinition {
	return PortDefinition{
		Port:           int(binary.LittleEndian.Uint32(buf[0:])),
		IsInput:        binary.LittleEndian.Uint32(buf[4:]) == 0,
		BufferCount:    int(binary.LittleEndian.Uint32(buf[8:])),
		BufferCountMin: int(binary.LittleEndian.Uint32(buf[12:])),
		BufferSize:     int(binary.LittleEndian.Uint32(buf[16:])),
		FrameWidth:     int32(binary.LittleEndian.Uint32(buf[20:])),
		FrameHeight:    int32(binary.LittleEndian.Uint32(buf[24:])),
	}
}

// writeOMXBufferFields and readOMXBufferFields have empty bodies: no
// Go-side BufferHeader field (Data, Filled, Flags, Timestamp) is copied
// into the native OMX_BUFFERHEADERTYPE before EmptyThisBuffer, and none
// is read back from it in the callbacks. realComponent's native headers
// therefore keep the buffer pointer, length, flags and timestamp they
// had when UseBuffer/AllocateBuffer created them.
func writeOMXBufferFields(h *BufferHeader) {}

func readOMXBufferFields(h *BufferHeader) {}
