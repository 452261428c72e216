// Package simulator provides goroutine-driven channels that stand in for
// camera pipelines, plus scenario files and a runner that drives a
// hal.Device end to end.
package simulator

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/camhal/internal/conf"
	"github.com/tphakala/camhal/internal/hal"
)

// Simulation defaults
const (
	DefaultMaxBuffers      = 8
	DefaultBufferLatency   = 2 * time.Millisecond
	DefaultMetadataLatency = 3 * time.Millisecond
	DefaultEncodeLatency   = 4 * time.Millisecond
	DefaultFrameInterval   = 33 * time.Millisecond
)

// Options tune the simulated pipelines
type Options struct {
	MaxBuffers        uint32
	BufferLatency     time.Duration
	MetadataLatency   time.Duration
	EncodeLatency     time.Duration
	FrameInterval     time.Duration // spacing of sensor timestamps
	Jitter            time.Duration // random extra latency per task
	MetadataDropEvery int           // drop every Nth metadata, 0 disables
	Seed              int64
}

// OptionsFromSettings maps simulator settings onto Options
func OptionsFromSettings(s *conf.Settings) Options {
	return Options{
		BufferLatency:     s.Simulator.BufferLatency,
		MetadataLatency:   s.Simulator.MetadataLatency,
		FrameInterval:     s.HAL.FrameDuration,
		MetadataDropEvery: s.Simulator.MetadataDropEvery,
		Seed:              s.Simulator.Seed,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxBuffers == 0 {
		o.MaxBuffers = DefaultMaxBuffers
	}
	if o.BufferLatency == 0 {
		o.BufferLatency = DefaultBufferLatency
	}
	if o.MetadataLatency == 0 {
		o.MetadataLatency = DefaultMetadataLatency
	}
	if o.EncodeLatency == 0 {
		o.EncodeLatency = DefaultEncodeLatency
	}
	if o.FrameInterval == 0 {
		o.FrameInterval = DefaultFrameInterval
	}
	return o
}

// Stats counts simulated pipeline activity
type Stats struct {
	BuffersCompleted  int64
	MetadataDelivered int64
	MetadataDropped   int64
	TokensReleased    int64
	JpegEncoded       int64
	Reprocessed       int64
}

// TokensOutstanding is the number of delivered tokens never returned
func (s Stats) TokensOutstanding() int64 {
	return s.MetadataDelivered - s.TokensReleased
}

type counters struct {
	buffers, delivered, dropped, released, encoded, reprocessed atomic.Int64

	// tokens held by encoders
	encoding atomic.Int64
}

// Factory creates simulated channels. It implements hal.ChannelFactory.
type Factory struct {
	opts  Options
	stats counters

	mu  sync.Mutex
	rng *rand.Rand
}

var _ hal.ChannelFactory = (*Factory)(nil)

// NewFactory returns a Factory using opts
func NewFactory(opts Options) *Factory {
	opts = opts.withDefaults()
	seed := uint64(opts.Seed)
	return &Factory{
		opts: opts,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Stats returns the counters accumulated over every channel
func (f *Factory) Stats() Stats {
	return Stats{
		BuffersCompleted:  f.stats.buffers.Load(),
		MetadataDelivered: f.stats.delivered.Load(),
		MetadataDropped:   f.stats.dropped.Load(),
		TokensReleased:    f.stats.released.Load(),
		JpegEncoded:       f.stats.encoded.Load(),
		Reprocessed:       f.stats.reprocessed.Load(),
	}
}

// Busy reports whether an encoder still holds a metadata token
func (f *Factory) Busy() bool {
	return f.stats.encoding.Load() > 0
}

// delay returns base plus a random share of the configured jitter
func (f *Factory) delay(base time.Duration) time.Duration {
	if f.opts.Jitter <= 0 {
		return base
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return base + time.Duration(f.rng.Int64N(int64(f.opts.Jitter)))
}

func (f *Factory) NewMetadataChannel(onComplete hal.CompletionFunc) (hal.MetadataChannel, error) {
	if onComplete == nil {
		return nil, fmt.Errorf("metadata channel needs a completion callback")
	}
	return &metadataChannel{
		factory:    f,
		worker:     newWorker("metadata"),
		onComplete: onComplete,
	}, nil
}

func (f *Factory) NewStreamChannel(stream *hal.Stream, kind hal.PipelineKind, onComplete hal.CompletionFunc) (hal.Channel, error) {
	return f.newStreamChannel(stream, kind, onComplete)
}

func (f *Factory) NewPictureChannel(stream *hal.Stream, onComplete hal.CompletionFunc) (hal.PictureChannel, error) {
	sc, err := f.newStreamChannel(stream, hal.PipelineNonZSLSnapshot, onComplete)
	if err != nil {
		return nil, err
	}
	return &pictureChannel{
		streamChannel: sc,
		encoder:       newWorker(fmt.Sprintf("jpeg-%d", stream.ID)),
	}, nil
}

func (f *Factory) newStreamChannel(stream *hal.Stream, kind hal.PipelineKind, onComplete hal.CompletionFunc) (*streamChannel, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream channel needs a stream")
	}
	if onComplete == nil {
		return nil, fmt.Errorf("%s channel needs a completion callback", kind)
	}
	return &streamChannel{
		factory:    f,
		stream:     stream,
		kind:       kind,
		worker:     newWorker(fmt.Sprintf("%s-%d", kind, stream.ID)),
		onComplete: onComplete,
		registered: make(map[hal.BufferHandle]struct{}),
	}, nil
}
