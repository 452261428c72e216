package hal

import "slices"

// requestedBuffer is one output slot of a pending request. buffer stays nil
// until the channel returns the filled buffer.
type requestedBuffer struct {
	stream *Stream
	buffer *StreamBuffer
}

// pendingRequest tracks an admitted frame until its metadata arrives
type pendingRequest struct {
	frameNumber    uint32
	requestID      int32
	buffers        []requestedBuffer
	blobRequested  bool
	bidirectional  bool
	hasInputBuffer bool
	inputBuffer    *StreamBuffer
	pipelineDepth  uint8
	aeTrigger      AeTrigger
}

func (r *pendingRequest) slot(stream *Stream) *requestedBuffer {
	for i := range r.buffers {
		if r.buffers[i].stream == stream {
			return &r.buffers[i]
		}
	}
	return nil
}

// filledBidirectional returns the handle of a filled bidirectional slot
func (r *pendingRequest) filledBidirectional() BufferHandle {
	for _, b := range r.buffers {
		if b.buffer != nil && b.stream.Direction == StreamBidirectional {
			return b.buffer.Buffer
		}
	}
	return NullBuffer
}

// requestLedger holds pending requests in ascending frame order
type requestLedger struct {
	entries []*pendingRequest
}

func (l *requestLedger) add(r *pendingRequest) {
	l.entries = append(l.entries, r)
}

func (l *requestLedger) len() int { return len(l.entries) }

func (l *requestLedger) reset() { l.entries = nil }

// front returns the oldest pending frame number
func (l *requestLedger) front() (uint32, bool) {
	if len(l.entries) == 0 {
		return 0, false
	}
	return l.entries[0].frameNumber, true
}

func (l *requestLedger) find(frameNumber uint32) *pendingRequest {
	for _, r := range l.entries {
		if r.frameNumber == frameNumber {
			return r
		}
	}
	return nil
}

// walkUpTo visits every entry with a frame number not above frameNumber,
// front to back, and removes the visited prefix once traversal is done.
// It returns the number of entries visited.
func (l *requestLedger) walkUpTo(frameNumber uint32, visit func(*pendingRequest)) int {
	n := 0
	for n < len(l.entries) && l.entries[n].frameNumber <= frameNumber {
		visit(l.entries[n])
		n++
	}
	if n > 0 {
		clear(l.entries[:n])
		l.entries = l.entries[n:]
	}
	return n
}

func (l *requestLedger) removeFrame(frameNumber uint32) bool {
	i := slices.IndexFunc(l.entries, func(r *pendingRequest) bool {
		return r.frameNumber == frameNumber
	})
	if i < 0 {
		return false
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	return true
}

func (l *requestLedger) incrementDepth() {
	for _, r := range l.entries {
		if r.pipelineDepth < 255 {
			r.pipelineDepth++
		}
	}
}

// pendingBuffer is an output buffer handed to a channel and not yet
// returned to the framework
type pendingBuffer struct {
	frameNumber uint32
	stream      *Stream
	handle      BufferHandle
}

// frameBuffers groups pending buffers of one frame
type frameBuffers struct {
	frameNumber uint32
	buffers     []pendingBuffer
}

// bufferLedger holds every buffer currently owned by a channel
type bufferLedger struct {
	entries []pendingBuffer
}

func (l *bufferLedger) add(frameNumber uint32, stream *Stream, handle BufferHandle) {
	l.entries = append(l.entries, pendingBuffer{frameNumber: frameNumber, stream: stream, handle: handle})
}

func (l *bufferLedger) len() int { return len(l.entries) }

func (l *bufferLedger) reset() { l.entries = nil }

// remove drops the entry for handle. Handles are unique while pending.
func (l *bufferLedger) remove(handle BufferHandle) bool {
	i := slices.IndexFunc(l.entries, func(b pendingBuffer) bool { return b.handle == handle })
	if i < 0 {
		return false
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	return true
}

func (l *bufferLedger) removeFrame(frameNumber uint32) {
	l.entries = slices.DeleteFunc(l.entries, func(b pendingBuffer) bool {
		return b.frameNumber == frameNumber
	})
}

func (l *bufferLedger) countByStream(stream *Stream) int {
	n := 0
	for _, b := range l.entries {
		if b.stream == stream {
			n++
		}
	}
	return n
}

// partition splits pending buffers by frame into frames strictly older than
// oldest and the rest. Groups keep the order of first appearance. Without an
// oldest frame every buffer counts as older.
func (l *bufferLedger) partition(oldest uint32, hasOldest bool) (older, rest []frameBuffers) {
	index := make(map[uint32]int)
	var groups []frameBuffers
	for _, b := range l.entries {
		i, ok := index[b.frameNumber]
		if !ok {
			i = len(groups)
			index[b.frameNumber] = i
			groups = append(groups, frameBuffers{frameNumber: b.frameNumber})
		}
		groups[i].buffers = append(groups[i].buffers, b)
	}
	for _, g := range groups {
		if !hasOldest || g.frameNumber < oldest {
			older = append(older, g)
		} else {
			rest = append(rest, g)
		}
	}
	return older, rest
}
