package hal

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeChannel records everything the device asks of a stream channel.
// Completions are injected by tests through Device.OnCompletion.
type fakeChannel struct {
	mu          sync.Mutex
	stream      *Stream
	kind        PipelineKind
	maxBuffers  uint32
	initialized int
	stopped     int
	registered  []BufferHandle
	requests    []ChannelRequest
	requestErr  error
	dispatched  chan ChannelRequest

	// picture channel side
	metadata  []*MetadataBuffer
	reprocess []*MetadataBuffer
}

func (c *fakeChannel) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized++
	return nil
}

func (c *fakeChannel) RegisterBuffer(h BufferHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = append(c.registered, h)
	return nil
}

func (c *fakeChannel) Request(req ChannelRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requestErr != nil {
		return c.requestErr
	}
	c.requests = append(c.requests, req)
	if c.dispatched != nil {
		c.dispatched <- req
	}
	return nil
}

func (c *fakeChannel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
}

func (c *fakeChannel) MaxBuffers() uint32 { return c.maxBuffers }

func (c *fakeChannel) QueueMetadata(token *MetadataBuffer, _ MetadataChannel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = append(c.metadata, token)
}

func (c *fakeChannel) QueueReprocess(token *MetadataBuffer, _ MetadataChannel, _ StreamBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reprocess = append(c.reprocess, token)
}

func (c *fakeChannel) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type fakeMetadataChannel struct {
	mu          sync.Mutex
	initialized int
	stopped     int
	frames      []uint32
	released    []*MetadataBuffer
	requestErr  error
	dispatched  chan uint32
}

func (m *fakeMetadataChannel) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized++
	return nil
}

func (m *fakeMetadataChannel) Request(frame uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requestErr != nil {
		return m.requestErr
	}
	m.frames = append(m.frames, frame)
	if m.dispatched != nil {
		m.dispatched <- frame
	}
	return nil
}

func (m *fakeMetadataChannel) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
}

func (m *fakeMetadataChannel) BufDone(token *MetadataBuffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, token)
}

func (m *fakeMetadataChannel) releasedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.released)
}

type fakeFactory struct {
	mu         sync.Mutex
	maxBuffers uint32
	streams    map[*Stream]*fakeChannel
	created    []*fakeChannel
	metadata   []*fakeMetadataChannel
	failStream *Stream
	dispatched chan ChannelRequest
	metaFrames chan uint32
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{maxBuffers: 4, streams: make(map[*Stream]*fakeChannel)}
}

func (f *fakeFactory) NewMetadataChannel(CompletionFunc) (MetadataChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &fakeMetadataChannel{dispatched: f.metaFrames}
	f.metadata = append(f.metadata, m)
	return m, nil
}

func (f *fakeFactory) NewStreamChannel(s *Stream, kind PipelineKind, _ CompletionFunc) (Channel, error) {
	return f.newChannel(s, kind)
}

func (f *fakeFactory) NewPictureChannel(s *Stream, _ CompletionFunc) (PictureChannel, error) {
	return f.newChannel(s, PipelineNonZSLSnapshot)
}

func (f *fakeFactory) newChannel(s *Stream, kind PipelineKind) (*fakeChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s == f.failStream {
		return nil, fmt.Errorf("no hardware for %s", s)
	}
	c := &fakeChannel{stream: s, kind: kind, maxBuffers: f.maxBuffers, dispatched: f.dispatched}
	f.streams[s] = c
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeFactory) channel(s *Stream) *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[s]
}

func (f *fakeFactory) currentMetadata() *fakeMetadataChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata[len(f.metadata)-1]
}

type fakeBackend struct {
	mu      sync.Mutex
	batches [][]BatchEntry
	err     error
}

func (b *fakeBackend) SetParameters(batch *ParameterBatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.batches = append(b.batches, batch.Entries())
	return nil
}

type shutterEvent struct {
	frame     uint32
	timestamp int64
}

type errorEvent struct {
	frame  uint32
	code   ErrorCode
	stream *Stream
}

// recordingSink captures every framework callback in order
type recordingSink struct {
	mu       sync.Mutex
	shutters []shutterEvent
	errors   []errorEvent
	results  []CaptureResult
	order    []string
}

func (s *recordingSink) NotifyShutter(frame uint32, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutters = append(s.shutters, shutterEvent{frame, ts})
	s.order = append(s.order, fmt.Sprintf("shutter:%d", frame))
}

func (s *recordingSink) NotifyError(frame uint32, code ErrorCode, stream *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, errorEvent{frame, code, stream})
	s.order = append(s.order, fmt.Sprintf("error:%d:%s", frame, code))
}

func (s *recordingSink) DeliverResult(r CaptureResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	s.order = append(s.order, fmt.Sprintf("result:%d", r.FrameNumber))
}

func (s *recordingSink) resultsFor(frame uint32) []CaptureResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CaptureResult
	for _, r := range s.results {
		if r.FrameNumber == frame {
			out = append(out, r)
		}
	}
	return out
}

func (s *recordingSink) shutterList() []shutterEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shutterEvent(nil), s.shutters...)
}

type fakeFence struct {
	err error
}

func (f fakeFence) Wait(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	return ctx.Err()
}

// blockingFence never signals; Wait returns when ctx ends
type blockingFence struct{}

func (blockingFence) Wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type testDevice struct {
	*Device
	factory *fakeFactory
	backend *fakeBackend
	sink    *recordingSink
}

func newTestDevice(t *testing.T, cfg Config, streams ...*Stream) *testDevice {
	t.Helper()
	td := &testDevice{
		factory: newFakeFactory(),
		backend: &fakeBackend{},
		sink:    &recordingSink{},
	}
	d, err := New(Deps{Channels: td.factory, Backend: td.backend, Sink: td.sink}, cfg)
	require.NoError(t, err)
	td.Device = d
	t.Cleanup(func() { _ = d.Close() })

	if len(streams) > 0 {
		require.NoError(t, d.ConfigureStreams(context.Background(), streams))
	}
	return td
}

func previewStream(id int) *Stream {
	return &Stream{ID: id, Direction: StreamOutput, Format: FormatImplementationDefined, Width: 1920, Height: 1080, Usage: UsageHWTexture}
}

func blobStream(id int) *Stream {
	return &Stream{ID: id, Direction: StreamOutput, Format: FormatBlob, Width: 4032, Height: 3024}
}

func zslStream(id int) *Stream {
	return &Stream{ID: id, Direction: StreamBidirectional, Format: FormatImplementationDefined, Width: 4032, Height: 3024}
}

func request(frame uint32, settings Settings, outputs ...StreamBuffer) *CaptureRequest {
	return &CaptureRequest{FrameNumber: frame, Settings: settings, OutputBuffers: outputs}
}

func withID(id int32) Settings {
	return Settings{TagRequestID: id}
}

func out(s *Stream, h BufferHandle) StreamBuffer {
	return StreamBuffer{Stream: s, Buffer: h}
}

func metadataFor(frame uint32, ts int64) MetadataCompletion {
	return MetadataCompletion{Token: &MetadataBuffer{
		FrameNumberValid: true,
		FrameNumber:      frame,
		Timestamp:        ts,
		Payload:          Settings{TagAeMode: aeModeOn},
	}}
}

func bufferFor(s *Stream, h BufferHandle, frame uint32) BufferCompletion {
	return BufferCompletion{Buffer: StreamBuffer{Stream: s, Buffer: h}, FrameNumber: frame}
}
