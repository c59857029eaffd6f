package ovda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igel-oss/chromium-renesas-vda/internal/omxil"
)

func TestBookkeeper_InputInvariantHoldsAcrossTakeAndReturn(t *testing.T) {
	bk := newBookkeeper()
	headers := []*omxil.BufferHeader{{}, {}, {}}
	bk.seedFreeInput(headers)
	require.True(t, bk.inputInvariantHolds())

	h1, ok := bk.takeFreeInput()
	require.True(t, ok)
	assert.True(t, bk.inputInvariantHolds())

	h2, ok := bk.takeFreeInput()
	require.True(t, ok)
	assert.True(t, bk.inputInvariantHolds())

	bk.returnFreeInput(h1)
	assert.True(t, bk.inputInvariantHolds())
	bk.returnFreeInput(h2)
	assert.True(t, bk.inputInvariantHolds())
	assert.Equal(t, 3, len(bk.freeInput))
}

func TestBookkeeper_TakeFreeInput_EmptyReturnsFalse(t *testing.T) {
	bk := newBookkeeper()
	_, ok := bk.takeFreeInput()
	assert.False(t, ok)
}

func TestBookkeeper_FakeOutputs_RetiredOnceTaken(t *testing.T) {
	bk := newBookkeeper()
	h := &omxil.BufferHeader{}
	bk.addFakeOutput(h)
	assert.Equal(t, 1, bk.fakeOutputCount())

	assert.True(t, bk.takeFakeOutput(h))
	assert.Equal(t, 0, bk.fakeOutputCount())
	assert.False(t, bk.takeFakeOutput(h), "a fake output is never re-enqueued")
}

func TestBookkeeper_QueuedBitstreamIsFIFO(t *testing.T) {
	bk := newBookkeeper()
	bk.enqueueBitstream(BitstreamBuffer{ID: 1})
	bk.enqueueBitstream(BitstreamBuffer{ID: 2})

	first, ok := bk.dequeueBitstream()
	require.True(t, ok)
	assert.Equal(t, int32(1), first.ID)

	second, ok := bk.dequeueBitstream()
	require.True(t, ok)
	assert.Equal(t, int32(2), second.ID)

	assert.False(t, bk.hasQueuedBitstream())
}

func TestBookkeeper_QueuedPictureIDsIsFIFO(t *testing.T) {
	bk := newBookkeeper()
	bk.enqueuePictureID(5)
	bk.enqueuePictureID(6)

	id, ok := bk.dequeuePictureID()
	require.True(t, ok)
	assert.Equal(t, int32(5), id)
	assert.True(t, bk.hasQueuedPictureIDs())
}

func TestPrivateTable_PutGetTakeRelease(t *testing.T) {
	tbl := newPrivateTable[int]()
	idx := tbl.Put(42)

	v, ok := tbl.Get(idx)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	v, ok = tbl.Take(idx)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = tbl.Get(idx)
	assert.False(t, ok, "Take releases the slot")

	// The freed slot is reused rather than growing the table.
	idx2 := tbl.Put(7)
	assert.Equal(t, idx, idx2)
}

func TestPrivateTable_GetOnUnknownIndex(t *testing.T) {
	tbl := newPrivateTable[string]()
	_, ok := tbl.Get(3)
	assert.False(t, ok)
}
