package hal

import (
	"context"

	"github.com/tphakala/camhal/internal/errors"
	"github.com/tphakala/camhal/internal/logger"
	"github.com/tphakala/camhal/internal/observability/metrics"
)

// Flush stops every channel and force-completes all outstanding frames with
// error results. Buffers of frames whose shutter already fired are reported
// as buffer errors; every other frame is reported as a failed request.
// Blocked submitters are released.
func (d *Device) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.New(err).Component(componentHAL).Category(errors.CategoryCancellation).Build()
	}

	d.mu.Lock()
	switch d.state {
	case stateClosed:
		d.mu.Unlock()
		return ErrClosed
	case stateFlushing:
		d.mu.Unlock()
		return halError(errors.CategoryFlushing, "flush already in progress").Build()
	case stateUnconfigured:
		d.mu.Unlock()
		return nil
	}
	d.state = stateFlushing
	channels := d.activeChannels()
	d.mu.Unlock()

	stopChannels(ctx, channels)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.inFlight = 0
	d.cond.Broadcast()

	oldest, hasOldest := d.requests.front()
	older, rest := d.buffers.partition(oldest, hasOldest)

	for _, g := range older {
		for _, b := range g.buffers {
			d.sink.NotifyError(g.frameNumber, ErrorBuffer, b.stream)
			d.metrics.RecordFlushError(d.cfg.CameraID, metrics.FlushErrorBuffer)
		}
		d.deliverError(g)
	}
	for _, g := range rest {
		d.sink.NotifyError(g.frameNumber, ErrorRequest, nil)
		d.metrics.RecordFlushError(d.cfg.CameraID, metrics.FlushErrorRequest)
		d.deliverError(g)
	}

	pendingFrames := d.requests.len()
	d.requests.reset()
	d.buffers.reset()
	d.releaseStored()

	d.firstRequest = true
	d.hasRequestID = false
	for _, si := range d.streams {
		si.registered = nil
	}
	d.state = stateActive
	d.updateGauges()
	d.metrics.RecordFlush(d.cfg.CameraID)

	d.log.Info("flush complete",
		logger.Int("buffer_error_frames", len(older)),
		logger.Int("request_error_frames", len(rest)),
		logger.Int("pending_requests", pendingFrames))
	return nil
}

func (d *Device) deliverError(g frameBuffers) {
	result := CaptureResult{FrameNumber: g.frameNumber}
	for _, b := range g.buffers {
		result.Buffers = append(result.Buffers, StreamBuffer{
			Stream: b.stream,
			Buffer: b.handle,
			Status: BufferStatusError,
		})
	}
	d.sink.DeliverResult(result)
	d.metrics.RecordResult(d.cfg.CameraID, metrics.ResultError)
}
