// Package hal implements the capture request lifecycle of a camera HAL.
//
// A Device accepts per-frame capture requests, fans them out to one channel
// per output stream plus a metadata channel, and correlates the asynchronous
// completions of those channels back into shutter notifications and capture
// results. Submission blocks while the configured number of frames is in
// flight. All device state is guarded by one mutex; channel completions,
// submission and flush serialize on it.
package hal

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tphakala/camhal/internal/errors"
	"github.com/tphakala/camhal/internal/logger"
	"github.com/tphakala/camhal/internal/observability/metrics"
)

// Defaults for Config fields left at zero
const (
	DefaultMaxInFlight   = 5
	DefaultFrameDuration = 33 * time.Millisecond
)

// Config holds device tunables
type Config struct {
	CameraID      string
	MaxInFlight   int
	FrameDuration time.Duration // nominal interval used to back-date dropped frames
	FenceTimeout  time.Duration // 0 waits without bound
	ZSLMaxStored  int
}

func (c Config) withDefaults() Config {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	if c.ZSLMaxStored <= 0 {
		c.ZSLMaxStored = DefaultZSLMaxStored
	}
	return c
}

// Deps are the collaborators a Device cannot run without
type Deps struct {
	Channels ChannelFactory
	Backend  Backend
	Sink     ResultSink
}

// Option configures a Device
type Option func(*Device)

// WithLogger sets the device logger
func WithLogger(l logger.Logger) Option {
	return func(d *Device) {
		d.log = l
	}
}

// WithMetrics sets the metrics sink. A nil value disables metrics.
func WithMetrics(m *metrics.CameraMetrics) Option {
	return func(d *Device) {
		d.metrics = m
	}
}

// WithParameterTranslator replaces DefaultParameterTranslator
func WithParameterTranslator(t ParameterTranslator) Option {
	return func(d *Device) {
		d.params = t
	}
}

// WithResultTranslator replaces DefaultResultTranslator
func WithResultTranslator(t ResultTranslator) Option {
	return func(d *Device) {
		d.results = t
	}
}

// WithCamera sets the static camera info used by the default templates
func WithCamera(info CameraInfo) Option {
	return func(d *Device) {
		d.camera = info
	}
}

type deviceState int

const (
	stateUnconfigured deviceState = iota
	stateActive
	stateFlushing
	stateClosed
)

func (s deviceState) String() string {
	switch s {
	case stateUnconfigured:
		return "unconfigured"
	case stateActive:
		return "active"
	case stateFlushing:
		return "flushing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Device is one open camera
type Device struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg      Config
	camera   CameraInfo
	factory  ChannelFactory
	backend  Backend
	sink     ResultSink
	params   ParameterTranslator
	results  ResultTranslator
	log      logger.Logger
	metrics  *metrics.CameraMetrics
	session  *Session
	defaults *cache.Cache
	anomaly  *rate.Limiter

	state       deviceState
	streams     []*streamInfo
	metadata    MetadataChannel
	inputStream *Stream
	jpegStream  *Stream
	zslMode     bool

	requests requestLedger
	buffers  bufferLedger
	zsl      *zslStore
	batch    *ParameterBatch

	inFlight         int
	firstRequest     bool
	hasRequestID     bool
	currentRequestID int32
	frameDuration    time.Duration
	precaptureID     int32
}

// New creates an unconfigured Device
func New(deps Deps, cfg Config, opts ...Option) (*Device, error) {
	if deps.Channels == nil || deps.Backend == nil || deps.Sink == nil {
		return nil, errors.Newf("device requires a channel factory, a backend and a result sink").
			Component(componentHAL).
			Category(errors.CategoryValidation).
			Build()
	}

	cfg = cfg.withDefaults()
	d := &Device{
		cfg:           cfg,
		camera:        CameraInfo{ID: cfg.CameraID},
		factory:       deps.Channels,
		backend:       deps.Backend,
		sink:          deps.Sink,
		params:        DefaultParameterTranslator{},
		results:       DefaultResultTranslator{},
		defaults:      cache.New(cache.NoExpiration, 0),
		anomaly:       rate.NewLimiter(rate.Every(time.Second), 5),
		zsl:           newZSLStore(cfg.ZSLMaxStored),
		batch:         NewParameterBatch(),
		frameDuration: cfg.FrameDuration,
		firstRequest:  true,
	}
	d.cond = sync.NewCond(&d.mu)

	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = getLogger().With(logger.String("camera", cfg.CameraID))
	}

	return d, nil
}

// Open acquires a session on cfg.CameraID and creates a Device that
// releases it on Close.
func Open(registry *SessionRegistry, deps Deps, cfg Config, opts ...Option) (*Device, error) {
	session, err := registry.TryAcquire(cfg.CameraID)
	if err != nil {
		return nil, err
	}

	opts = append([]Option{WithCamera(session.Camera)}, opts...)
	d, err := New(deps, cfg, opts...)
	if err != nil {
		session.Release()
		return nil, err
	}
	d.session = session
	d.log.Info("camera session opened", logger.String("session_id", session.ID.String()))
	return d, nil
}

// Close stops every channel, returns stored metadata and releases the
// session. Blocked submitters return. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.state == stateClosed {
		d.mu.Unlock()
		return nil
	}
	d.state = stateClosed
	channels := d.activeChannels()
	d.cond.Broadcast()
	d.mu.Unlock()

	stopChannels(context.Background(), channels)

	d.mu.Lock()
	d.releaseStored()
	d.requests.reset()
	d.buffers.reset()
	d.streams = nil
	d.metadata = nil
	d.inFlight = 0
	d.updateGauges()
	d.mu.Unlock()

	d.session.Release()
	d.log.Info("camera closed")
	return nil
}

// DefaultSettings returns the default controls of a template. Each call
// returns a private copy.
func (d *Device) DefaultSettings(t TemplateType) (Settings, error) {
	key := t.String()
	if cached, ok := d.defaults.Get(key); ok {
		return cached.(Settings).Clone(), nil
	}

	s, err := buildTemplate(t, d.camera)
	if err != nil {
		return nil, err
	}
	d.defaults.Set(key, s, cache.NoExpiration)
	return s.Clone(), nil
}

// stopper is the part of a channel needed for teardown
type stopper interface {
	Stop()
}

// stopChannels stops all channels concurrently. It must be called without
// the device lock; channels may be draining completions that need it.
func stopChannels(ctx context.Context, channels []stopper) {
	g, _ := errgroup.WithContext(ctx)
	for _, ch := range channels {
		g.Go(func() error {
			ch.Stop()
			return nil
		})
	}
	_ = g.Wait()
}

// releaseStored returns every stored ZSL token to the metadata channel
func (d *Device) releaseStored() {
	for _, token := range d.zsl.drain() {
		if d.metadata != nil {
			d.metadata.BufDone(token)
		}
	}
}

func (d *Device) updateGauges() {
	d.metrics.SetInFlight(d.cfg.CameraID, d.inFlight)
	d.metrics.SetPendingBuffers(d.cfg.CameraID, d.buffers.len())
	d.metrics.SetZSLStored(d.cfg.CameraID, d.zsl.len())
}

// reportAnomaly counts a correlation anomaly and logs it, rate limited
func (d *Device) reportAnomaly(kind string, fields ...logger.Field) {
	d.metrics.RecordAnomaly(d.cfg.CameraID, kind)
	if !d.anomaly.Allow() {
		return
	}
	d.log.Warn("correlation anomaly", append([]logger.Field{logger.String("kind", kind)}, fields...)...)
}
