package simulator

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tphakala/camhal/internal/hal"
	"github.com/tphakala/camhal/internal/logger"
)

// streamChannel returns every requested buffer filled after a latency
type streamChannel struct {
	factory    *Factory
	stream     *hal.Stream
	kind       hal.PipelineKind
	worker     *worker
	onComplete hal.CompletionFunc

	mu         sync.Mutex
	registered map[hal.BufferHandle]struct{}
}

func (c *streamChannel) Initialize() error {
	c.worker.start()
	return nil
}

func (c *streamChannel) RegisterBuffer(h hal.BufferHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered[h] = struct{}{}
	return nil
}

func (c *streamChannel) Request(req hal.ChannelRequest) error {
	c.mu.Lock()
	_, known := c.registered[req.Buffer.Buffer]
	c.mu.Unlock()
	if !known {
		return fmt.Errorf("buffer %d was never registered on %s", req.Buffer.Buffer, c.stream)
	}

	buf := req.Buffer
	buf.AcquireFence = nil
	frame := req.FrameNumber
	ok := c.worker.enqueue(task{
		delay: c.factory.delay(c.factory.opts.BufferLatency),
		run: func() {
			c.factory.stats.buffers.Add(1)
			c.onComplete(hal.BufferCompletion{Buffer: buf, FrameNumber: frame})
		},
	})
	if !ok {
		return fmt.Errorf("%s channel for %s is not running", c.kind, c.stream)
	}
	return nil
}

func (c *streamChannel) Stop() {
	c.worker.stop()
}

func (c *streamChannel) MaxBuffers() uint32 {
	return c.factory.opts.MaxBuffers
}

// pictureChannel is a blob stream channel with a JPEG encoder stage that
// consumes metadata tokens
type pictureChannel struct {
	*streamChannel
	encoder *worker
}

func (p *pictureChannel) Initialize() error {
	p.encoder.start()
	return p.streamChannel.Initialize()
}

func (p *pictureChannel) Stop() {
	p.streamChannel.Stop()
	p.encoder.stop()
}

func (p *pictureChannel) QueueMetadata(token *hal.MetadataBuffer, owner hal.MetadataChannel) {
	p.encode(token, owner, &p.factory.stats.encoded)
}

func (p *pictureChannel) QueueReprocess(token *hal.MetadataBuffer, owner hal.MetadataChannel, input hal.StreamBuffer) {
	getLogger().Trace("reprocess queued",
		logger.Uint32("frame", token.FrameNumber),
		logger.Uint64("input", uint64(input.Buffer)))
	p.encode(token, owner, &p.factory.stats.reprocessed)
}

// encode holds token until the encoder stage has run, then returns it to
// owner. Tokens are returned even when the encoder is stopped.
func (p *pictureChannel) encode(token *hal.MetadataBuffer, owner hal.MetadataChannel, counter *atomic.Int64) {
	release := func() {
		owner.BufDone(token)
		p.factory.stats.encoding.Add(-1)
	}
	p.factory.stats.encoding.Add(1)
	ok := p.encoder.enqueue(task{
		delay: p.factory.delay(p.factory.opts.EncodeLatency),
		run: func() {
			counter.Add(1)
			release()
		},
		discard: release,
	})
	if !ok {
		release()
	}
}

// metadataChannel emits one metadata token per requested frame. Every Nth
// token is dropped when a later frame is already queued, so the next token
// covers the dropped frame.
type metadataChannel struct {
	factory    *Factory
	worker     *worker
	onComplete hal.CompletionFunc
	seq        atomic.Int64
}

func (m *metadataChannel) Initialize() error {
	m.worker.start()
	return nil
}

func (m *metadataChannel) Request(frame uint32) error {
	ok := m.worker.enqueue(task{
		delay: m.factory.delay(m.factory.opts.MetadataLatency),
		run:   func() { m.emit(frame) },
	})
	if !ok {
		return fmt.Errorf("metadata channel is not running")
	}
	return nil
}

func (m *metadataChannel) emit(frame uint32) {
	opts := m.factory.opts
	n := m.seq.Add(1)
	pending := m.worker.pending()

	if opts.MetadataDropEvery > 0 && n%int64(opts.MetadataDropEvery) == 0 && pending > 0 {
		m.factory.stats.dropped.Add(1)
		getLogger().Debug("metadata dropped", logger.Uint32("frame", frame))
		return
	}

	token := &hal.MetadataBuffer{
		FrameNumberValid: true,
		FrameNumber:      frame,
		PendingRequests:  uint32(pending),
		Timestamp:        int64(frame) * int64(opts.FrameInterval),
		Payload: hal.Settings{
			hal.TagAeMode:             uint8(1),
			hal.TagSensorSensitivity:  int32(100),
			hal.TagSensorExposureTime: int64(opts.FrameInterval / 2),
		},
	}
	m.factory.stats.delivered.Add(1)
	m.onComplete(hal.MetadataCompletion{Token: token})
}

func (m *metadataChannel) Stop() {
	m.worker.stop()
}

func (m *metadataChannel) BufDone(token *hal.MetadataBuffer) {
	if token == nil {
		return
	}
	m.factory.stats.released.Add(1)
}

// Backend records parameter batches pushed by the device
type Backend struct {
	mu      sync.Mutex
	batches int
	last    []hal.BatchEntry
}

var _ hal.Backend = (*Backend)(nil)

func (b *Backend) SetParameters(batch *hal.ParameterBatch) error {
	entries := batch.Entries()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches++
	b.last = entries
	return nil
}

// Batches returns the number of batches received
func (b *Backend) Batches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches
}

// Last returns the most recent batch
func (b *Backend) Last() []hal.BatchEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}
