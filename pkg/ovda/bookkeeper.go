package ovda

import (
	"github.com/igel-oss/chromium-renesas-vda/internal/gpufence"
	"github.com/igel-oss/chromium-renesas-vda/internal/omxil"
)

// kNumPictureBuffers is the fixed count of real picture buffers the
// client must supply in response to ProvidePictureBuffers.
const kNumPictureBuffers = 8

// bookkeeper owns the two buffer populations the coordinator tracks:
// input-side free/at-component accounting, and output-side fake vs.
// real picture populations. Every method is only ever called from the
// coordinator's control thread.
type bookkeeper struct {
	freeInput        []*omxil.BufferHeader
	inputAtComponent int
	inputBufferCount int

	fakeOutputs map[*omxil.BufferHeader]struct{}

	realPictures  map[int32]*outputPictureEntry
	pictureImages map[int32]gpufence.ExternalImage

	queuedBitstream  []BitstreamBuffer
	queuedPictureIDs []int32

	inputSide  *privateTable[inputSideChannel]
	outputSide *privateTable[outputPrivate]
}

// outputPictureEntry is what the bookkeeper stores per real picture.
type outputPictureEntry struct {
	buffer PictureBuffer
	header *omxil.BufferHeader
}

func newBookkeeper() *bookkeeper {
	return &bookkeeper{
		fakeOutputs:   map[*omxil.BufferHeader]struct{}{},
		realPictures:  map[int32]*outputPictureEntry{},
		pictureImages: map[int32]gpufence.ExternalImage{},
		inputSide:     newPrivateTable[inputSideChannel](),
		outputSide:    newPrivateTable[outputPrivate](),
	}
}

// invariant #1: free + at_component == input_buffer_count.
func (b *bookkeeper) inputInvariantHolds() bool {
	return len(b.freeInput)+b.inputAtComponent == b.inputBufferCount
}

func (b *bookkeeper) seedFreeInput(headers []*omxil.BufferHeader) {
	b.freeInput = append(b.freeInput, headers...)
	b.inputBufferCount = len(headers)
}

// takeFreeInput pops the front of the free input queue.
func (b *bookkeeper) takeFreeInput() (*omxil.BufferHeader, bool) {
	if len(b.freeInput) == 0 {
		return nil, false
	}
	h := b.freeInput[0]
	b.freeInput = b.freeInput[1:]
	b.inputAtComponent++
	return h, true
}

// returnFreeInput reinserts a header EmptyBufferDone handed back.
func (b *bookkeeper) returnFreeInput(h *omxil.BufferHeader) {
	b.inputAtComponent--
	b.freeInput = append(b.freeInput, h)
}

func (b *bookkeeper) enqueueBitstream(buf BitstreamBuffer) {
	b.queuedBitstream = append(b.queuedBitstream, buf)
}

func (b *bookkeeper) dequeueBitstream() (BitstreamBuffer, bool) {
	if len(b.queuedBitstream) == 0 {
		return BitstreamBuffer{}, false
	}
	buf := b.queuedBitstream[0]
	b.queuedBitstream = b.queuedBitstream[1:]
	return buf, true
}

func (b *bookkeeper) hasQueuedBitstream() bool { return len(b.queuedBitstream) > 0 }

func (b *bookkeeper) addFakeOutput(h *omxil.BufferHeader) {
	b.fakeOutputs[h] = struct{}{}
}

// takeFakeOutput removes h from the fake set if present, reporting
// whether it was there. A fake buffer is retired the instant it's
// removed: it's never re-enqueued.
func (b *bookkeeper) takeFakeOutput(h *omxil.BufferHeader) bool {
	if _, ok := b.fakeOutputs[h]; !ok {
		return false
	}
	delete(b.fakeOutputs, h)
	return true
}

func (b *bookkeeper) fakeOutputCount() int { return len(b.fakeOutputs) }

func (b *bookkeeper) addRealPicture(id int32, buf PictureBuffer, header *omxil.BufferHeader) {
	b.realPictures[id] = &outputPictureEntry{buffer: buf, header: header}
}

func (b *bookkeeper) realPicture(id int32) (*outputPictureEntry, bool) {
	e, ok := b.realPictures[id]
	return e, ok
}

func (b *bookkeeper) removeRealPicture(id int32) {
	delete(b.realPictures, id)
	delete(b.pictureImages, id)
}

func (b *bookkeeper) realPictureCount() int { return len(b.realPictures) }

func (b *bookkeeper) allRealPictureIDs() []int32 {
	ids := make([]int32, 0, len(b.realPictures))
	for id := range b.realPictures {
		ids = append(ids, id)
	}
	return ids
}

func (b *bookkeeper) enqueuePictureID(id int32) {
	b.queuedPictureIDs = append(b.queuedPictureIDs, id)
}

func (b *bookkeeper) dequeuePictureID() (int32, bool) {
	if len(b.queuedPictureIDs) == 0 {
		return 0, false
	}
	id := b.queuedPictureIDs[0]
	b.queuedPictureIDs = b.queuedPictureIDs[1:]
	return id, true
}

func (b *bookkeeper) hasQueuedPictureIDs() bool { return len(b.queuedPictureIDs) > 0 }
