// Package ovda implements the asynchronous coordinator that sits between
// a video-decode client and an OpenMAX-IL-shaped hardware decoder
// component. It owns the decoder's lifecycle, serializes every
// component callback onto a single control thread, and reconciles
// input/output buffer bookkeeping across initialization, flush, reset,
// and teardown.
package ovda

import "github.com/igel-oss/chromium-renesas-vda/internal/gpufence"

// PixelFormat names the layout of a decoded picture's planes, as
// reported to the client alongside ProvidePictureBuffers.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatNV12
	PixelFormatI420
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  int32
	Height int32
}

// BitstreamBuffer is one client-submitted unit of compressed input. An
// ID of -1 with a nil/empty Data is the end-of-stream sentinel; the
// coordinator recognizes it by exactly this shape and never by a
// separate flag, matching the contract the component expects.
type BitstreamBuffer struct {
	ID   int32
	Data []byte
}

func (b BitstreamBuffer) isEndOfStream() bool {
	return b.ID == -1 && len(b.Data) == 0
}

// endOfStreamTimestamp is stashed in the header's timestamp field for
// the EOS sentinel, distinguishing it from any real bitstream id a
// client could legitimately use.
const endOfStreamTimestamp = -2

// PictureBuffer is a client-supplied output buffer descriptor, handed
// to AssignPictureBuffers in response to ProvidePictureBuffers.
type PictureBuffer struct {
	PictureBufferID int32
	TextureRef      uintptr
}

// Picture is a decoded frame ready for the client, carrying both the
// picture buffer it landed in and the bitstream buffer it was decoded
// from.
type Picture struct {
	PictureBufferID int32
	BitstreamID     int32
	Image           gpufence.ExternalImage
}

// Client receives the coordinator's asynchronous notifications. Every
// method is invoked from the coordinator's control thread, never from
// the component's own callback thread, and never after StopOnError or
// Destroy has run — see clientRef for how that's enforced.
type Client interface {
	NotifyInitializationComplete(ok bool)
	ProvidePictureBuffers(count int, format PixelFormat, size Size)
	DismissPictureBuffer(id int32)
	PictureReady(pic Picture)
	NotifyEndOfBitstreamBuffer(id int32)
	NotifyFlushDone()
	NotifyResetDone()
	NotifyError(kind ErrorKind)
}

// inputSideChannel is the metadata the coordinator attaches to an
// in-flight input buffer header for the interval between submission
// and EmptyBufferDone. In the original design this rode along on the
// header's opaque private pointer; here it's just the value stored at
// BufferHeader.Private's slot, see privatetable.go.
type inputSideChannel struct {
	bitstreamID int32
	isEOS       bool
}

// outputPrivate is the metadata attached to an output buffer header's
// private slot: which kind of output it is, and if it's a real
// picture, which one.
type outputPrivate struct {
	isFake          bool
	pictureBufferID int32
}
