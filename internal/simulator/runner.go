package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/camhal/internal/hal"
	"github.com/tphakala/camhal/internal/logger"
)

// DefaultDrainTimeout bounds the wait for outstanding completions after the
// last step
const DefaultDrainTimeout = 2 * time.Second

// Summary reports the outcome of one scenario run
type Summary struct {
	RunID    uuid.UUID
	Scenario string
	Duration time.Duration

	Submitted int
	Rejected  int
	Skipped   int
	Flushes   int

	Shutters        int
	Results         int
	BuffersReturned int
	BufferErrors    int
	RequestErrors   int

	// Correlation checks; both are zero for a healthy run
	OutOfOrderShutters int
	DuplicateBuffers   int

	Pipeline Stats
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithDeviceConfig overrides the hal configuration. Scenario values for the
// camera id and in-flight cap take precedence when set.
func WithDeviceConfig(cfg hal.Config) RunnerOption {
	return func(r *Runner) { r.cfg = cfg }
}

// WithDeviceOptions passes options through to hal.New
func WithDeviceOptions(opts ...hal.Option) RunnerOption {
	return func(r *Runner) { r.deviceOpts = append(r.deviceOpts, opts...) }
}

// WithSinkDecorator wraps the runner's result sink, e.g. to record a trace
func WithSinkDecorator(wrap func(hal.ResultSink) hal.ResultSink) RunnerOption {
	return func(r *Runner) { r.wrapSink = wrap }
}

// WithDeviceHook is called with the device once streams are configured
func WithDeviceHook(hook func(*hal.Device)) RunnerOption {
	return func(r *Runner) { r.hook = hook }
}

// WithDrainTimeout sets how long Run waits for in-flight frames to complete
func WithDrainTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.drainTimeout = d }
}

// WithRunID sets the id reported in the Summary instead of a random one
func WithRunID(id uuid.UUID) RunnerOption {
	return func(r *Runner) { r.runID = id }
}

// WithRegistry runs against an existing session registry
func WithRegistry(reg *hal.SessionRegistry) RunnerOption {
	return func(r *Runner) { r.registry = reg }
}

// Runner drives a hal.Device through a Scenario using simulated channels
type Runner struct {
	scenario     *Scenario
	factory      *Factory
	backend      *Backend
	cfg          hal.Config
	deviceOpts   []hal.Option
	wrapSink     func(hal.ResultSink) hal.ResultSink
	hook         func(*hal.Device)
	drainTimeout time.Duration
	registry     *hal.SessionRegistry
	runID        uuid.UUID
}

// NewRunner returns a runner for scenario
func NewRunner(scenario *Scenario, factory *Factory, opts ...RunnerOption) *Runner {
	r := &Runner{
		scenario:     scenario,
		factory:      factory,
		backend:      &Backend{},
		drainTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend returns the simulated parameter backend
func (r *Runner) Backend() *Backend { return r.backend }

// Run executes the scenario. The device is always closed before Run
// returns; cancelling ctx closes it immediately.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	sc := r.scenario
	summary := &Summary{RunID: r.runID, Scenario: sc.Name}
	if summary.RunID == uuid.Nil {
		summary.RunID = uuid.New()
	}
	runLog := getLogger().With(logger.String("run_id", summary.RunID.String()), logger.String("scenario", sc.Name))
	start := time.Now()

	byID, streams, err := sc.BuildStreams()
	if err != nil {
		return nil, err
	}

	cfg := r.cfg
	if sc.Camera != "" {
		cfg.CameraID = sc.Camera
	}
	if cfg.CameraID == "" {
		cfg.CameraID = "0"
	}
	if sc.MaxInFlight > 0 {
		cfg.MaxInFlight = sc.MaxInFlight
	}

	registry := r.registry
	if registry == nil {
		registry = hal.NewSessionRegistry(hal.CameraInfo{ID: cfg.CameraID, Facing: "back", MaxFps: 30})
	}

	col := newCollector()
	var sink hal.ResultSink = col
	if r.wrapSink != nil {
		sink = r.wrapSink(col)
	}

	dev, err := hal.Open(registry, hal.Deps{Channels: r.factory, Backend: r.backend, Sink: sink}, cfg, r.deviceOpts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dev.Close() }()

	if err := dev.ConfigureStreams(ctx, streams); err != nil {
		return nil, err
	}
	if r.hook != nil {
		r.hook(dev)
	}

	base := hal.Settings{}
	if sc.Template != "" {
		tmpl, err := hal.ParseTemplate(sc.Template)
		if err != nil {
			return nil, err
		}
		if base, err = dev.DefaultSettings(tmpl); err != nil {
			return nil, err
		}
	}

	runLog.Info("scenario started",
		logger.Int("streams", len(streams)),
		logger.Int("steps", len(sc.Steps)))

	finished := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(finished)
		return r.submit(gctx, dev, byID, base, col, summary)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			// Wakes a submitter blocked on the in-flight cap
			_ = dev.Close()
		case <-finished:
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := r.drain(ctx, dev); err != nil {
		runLog.Warn("frames still pending after drain timeout", logger.Error(err))
	}
	if err := dev.Flush(ctx); err != nil {
		return nil, err
	}
	_ = dev.Close()

	col.fill(summary)
	summary.Pipeline = r.factory.Stats()
	summary.Duration = time.Since(start)

	runLog.Info("scenario finished",
		logger.Int("submitted", summary.Submitted),
		logger.Int("shutters", summary.Shutters),
		logger.Int("buffer_errors", summary.BufferErrors),
		logger.Int("request_errors", summary.RequestErrors),
		logger.Int64("metadata_dropped", summary.Pipeline.MetadataDropped),
		logger.Duration("duration", summary.Duration))
	return summary, nil
}

func (r *Runner) submit(ctx context.Context, dev *hal.Device, byID map[int]*hal.Stream, base hal.Settings, col *collector, summary *Summary) error {
	var frame uint32
	var handle hal.BufferHandle

	for i, step := range r.scenario.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if step.Flush {
			if err := dev.Flush(ctx); err != nil {
				return fmt.Errorf("step %d flush: %w", i, err)
			}
			summary.Flushes++
			continue
		}

		overrides, err := hal.SettingsFromNamed(step.Settings)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		for n := range step.Repeat {
			if err := ctx.Err(); err != nil {
				return err
			}
			frame++
			req := &hal.CaptureRequest{FrameNumber: frame}

			if n == 0 {
				settings := base.Clone()
				if settings == nil {
					settings = hal.Settings{}
				}
				for tag, v := range overrides {
					settings[tag] = v
				}
				settings[hal.TagRequestID] = int32(i + 1)
				req.Settings = settings
			}

			if step.Reprocess {
				input, ok := col.takeZSLBuffer()
				if !ok {
					summary.Skipped++
					getLogger().Debug("no zsl buffer available for reprocess", logger.Uint32("frame", frame))
					frame--
					continue
				}
				req.InputBuffer = &input
			}

			for _, id := range step.Outputs {
				handle++
				req.OutputBuffers = append(req.OutputBuffers, hal.StreamBuffer{Stream: byID[id], Buffer: handle})
			}

			if err := dev.ProcessCaptureRequest(ctx, req); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				summary.Rejected++
				getLogger().Warn("capture request rejected", logger.Uint32("frame", frame), logger.Error(err))
				continue
			}
			summary.Submitted++
		}

		if step.Pause > 0 {
			select {
			case <-time.After(step.Pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// drain waits until no request, buffer or encode is pending
func (r *Runner) drain(ctx context.Context, dev *hal.Device) error {
	ctx, cancel := context.WithTimeout(ctx, r.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		s := dev.Snapshot()
		if len(s.Requests) == 0 && s.PendingBuffers == 0 && !r.factory.Busy() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%d requests and %d buffers pending: %w", len(s.Requests), s.PendingBuffers, ctx.Err())
		}
	}
}

// collector is the terminal result sink of a run
type collector struct {
	mu          sync.Mutex
	lastShutter uint32
	shutters    int
	outOfOrder  int
	results     int
	returned    map[hal.BufferHandle]int
	bufErrors   int
	reqErrors   int
	zslBuffers  []hal.StreamBuffer
}

func newCollector() *collector {
	return &collector{returned: make(map[hal.BufferHandle]int)}
}

func (c *collector) NotifyShutter(frame uint32, _ int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutters > 0 && frame <= c.lastShutter {
		c.outOfOrder++
	}
	c.lastShutter = frame
	c.shutters++
}

func (c *collector) NotifyError(_ uint32, code hal.ErrorCode, _ *hal.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch code {
	case hal.ErrorBuffer:
		c.bufErrors++
	case hal.ErrorRequest:
		c.reqErrors++
	}
}

func (c *collector) DeliverResult(result hal.CaptureResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results++
	for _, b := range result.Buffers {
		c.returned[b.Buffer]++
		if b.Status == hal.BufferStatusOK && b.Stream != nil && b.Stream.Direction == hal.StreamBidirectional {
			c.zslBuffers = append(c.zslBuffers, b)
		}
	}
}

// takeZSLBuffer returns the most recently filled bidirectional buffer
func (c *collector) takeZSLBuffer() (hal.StreamBuffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.zslBuffers) == 0 {
		return hal.StreamBuffer{}, false
	}
	b := c.zslBuffers[len(c.zslBuffers)-1]
	c.zslBuffers = c.zslBuffers[:len(c.zslBuffers)-1]
	return hal.StreamBuffer{Stream: b.Stream, Buffer: b.Buffer}, true
}

func (c *collector) fill(s *Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.Shutters = c.shutters
	s.OutOfOrderShutters = c.outOfOrder
	s.Results = c.results
	s.BufferErrors = c.bufErrors
	s.RequestErrors = c.reqErrors
	for _, n := range c.returned {
		s.BuffersReturned++
		if n > 1 {
			s.DuplicateBuffers += n - 1
		}
	}
}
