package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLedgerWalkUpTo(t *testing.T) {
	t.Parallel()

	var l requestLedger
	for _, f := range []uint32{3, 4, 5, 7} {
		l.add(&pendingRequest{frameNumber: f})
	}

	var visited []uint32
	n := l.walkUpTo(5, func(r *pendingRequest) { visited = append(visited, r.frameNumber) })

	assert.Equal(t, 3, n)
	assert.Equal(t, []uint32{3, 4, 5}, visited)
	front, ok := l.front()
	require.True(t, ok)
	assert.Equal(t, uint32(7), front)

	assert.Zero(t, l.walkUpTo(6, func(*pendingRequest) { t.Fatal("nothing at or below 6 remains") }))
	assert.Equal(t, 1, l.len())
}

func TestRequestLedgerRemoveAndDepth(t *testing.T) {
	t.Parallel()

	var l requestLedger
	l.add(&pendingRequest{frameNumber: 1})
	l.add(&pendingRequest{frameNumber: 2, pipelineDepth: 254})

	l.incrementDepth()
	l.incrementDepth()
	assert.Equal(t, uint8(2), l.find(1).pipelineDepth)
	assert.Equal(t, uint8(255), l.find(2).pipelineDepth, "depth saturates")

	assert.True(t, l.removeFrame(1))
	assert.False(t, l.removeFrame(1))
	assert.Nil(t, l.find(1))

	l.reset()
	_, ok := l.front()
	assert.False(t, ok)
}

func TestPendingRequestSlots(t *testing.T) {
	t.Parallel()

	preview, bidi := previewStream(1), zslStream(2)
	r := &pendingRequest{buffers: []requestedBuffer{{stream: preview}, {stream: bidi}}}

	assert.Nil(t, r.slot(blobStream(3)))
	assert.Equal(t, NullBuffer, r.filledBidirectional())

	r.slot(preview).buffer = &StreamBuffer{Stream: preview, Buffer: 5}
	assert.Equal(t, NullBuffer, r.filledBidirectional())

	r.slot(bidi).buffer = &StreamBuffer{Stream: bidi, Buffer: 9}
	assert.Equal(t, BufferHandle(9), r.filledBidirectional())
}

func TestBufferLedgerPartition(t *testing.T) {
	t.Parallel()

	a, b := previewStream(1), blobStream(2)
	var l bufferLedger
	l.add(4, a, 40)
	l.add(6, a, 60)
	l.add(4, b, 41)
	l.add(5, a, 50)

	older, rest := l.partition(5, true)
	require.Len(t, older, 1)
	assert.Equal(t, uint32(4), older[0].frameNumber)
	assert.Len(t, older[0].buffers, 2)

	require.Len(t, rest, 2)
	assert.Equal(t, uint32(6), rest[0].frameNumber, "groups keep first appearance order")
	assert.Equal(t, uint32(5), rest[1].frameNumber)

	older, rest = l.partition(0, false)
	assert.Len(t, older, 3)
	assert.Empty(t, rest)

	assert.Equal(t, 3, l.countByStream(a))
	assert.True(t, l.remove(60))
	assert.False(t, l.remove(60))
	l.removeFrame(4)
	assert.Equal(t, 1, l.len())
}
