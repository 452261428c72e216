package hal

import (
	"context"
	"time"

	"github.com/tphakala/camhal/internal/errors"
	"github.com/tphakala/camhal/internal/logger"
)

// ProcessCaptureRequest admits one frame. It validates the request, waits on
// the output acquire fences, pushes the frame's parameters to the backend,
// registers the frame in the ledgers and dispatches it to every channel.
// It then blocks until fewer than MaxInFlight frames are in flight.
//
// A request that fails dispatch is rolled back: its ledger entry and the
// buffers no channel accepted are removed, and it does not count as in
// flight. Buffers already accepted stay pending until they return.
func (d *Device) ProcessCaptureRequest(ctx context.Context, req *CaptureRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.admitLocked(ctx, req); err != nil {
		d.metrics.RecordRequest(d.cfg.CameraID, errorStatus(err))
		return err
	}
	d.metrics.RecordRequest(d.cfg.CameraID, "ok")

	d.inFlight++
	d.updateGauges()

	start := time.Now()
	for d.inFlight >= d.cfg.MaxInFlight && d.state != stateClosed {
		d.cond.Wait()
	}
	d.metrics.ObserveAdmissionWait(d.cfg.CameraID, time.Since(start))
	return nil
}

func (d *Device) admitLocked(ctx context.Context, req *CaptureRequest) error {
	switch d.state {
	case stateUnconfigured, stateClosed:
		return halError(errors.CategoryNotConfigured, "device is %s", d.state).Build()
	case stateFlushing:
		return halError(errors.CategoryFlushing, "flush in progress").FrameContext(req.frameNumber()).Build()
	}

	if err := d.validateRequest(req); err != nil {
		return err
	}
	frame := req.FrameNumber

	if err := d.prepareChannels(req); err != nil {
		return err
	}

	requestID, err := d.resolveRequestID(req)
	if err != nil {
		return err
	}

	var jpeg *JpegSettings
	blobRequested := false
	bidirectional := false
	for _, out := range req.OutputBuffers {
		if out.Stream.isBlob() {
			blobRequested = true
			jpeg = newJpegSettings(req.Settings)
		}
		if out.Stream.Direction == StreamBidirectional {
			bidirectional = true
		}
	}

	if err := d.waitFences(ctx, req); err != nil {
		return err
	}

	trigger, err := d.pushParameters(req)
	if err != nil {
		return err
	}

	entry := &pendingRequest{
		frameNumber:    frame,
		requestID:      requestID,
		blobRequested:  blobRequested,
		bidirectional:  bidirectional,
		hasInputBuffer: req.InputBuffer != nil,
		inputBuffer:    req.InputBuffer,
		aeTrigger:      trigger,
	}
	for _, out := range req.OutputBuffers {
		entry.buffers = append(entry.buffers, requestedBuffer{stream: out.Stream})
		d.buffers.add(frame, out.Stream, out.Buffer)
	}
	d.requests.add(entry)

	if dispatched, err := d.dispatch(req, jpeg); err != nil {
		// Buffers already handed to a channel stay pending until they return
		d.requests.removeFrame(frame)
		for _, out := range req.OutputBuffers[dispatched:] {
			d.buffers.remove(out.Buffer)
		}
		d.updateGauges()
		return err
	}

	d.log.Trace("capture request admitted",
		logger.Uint32("frame", frame),
		logger.Int("outputs", len(req.OutputBuffers)),
		logger.Bool("reprocess", req.InputBuffer != nil))
	return nil
}

func (r *CaptureRequest) frameNumber() uint32 {
	if r == nil {
		return 0
	}
	return r.FrameNumber
}

// validateRequest checks req against the configured streams without
// touching device state
func (d *Device) validateRequest(req *CaptureRequest) error {
	if req == nil {
		return halError(errors.CategoryInvalidRequest, "nil capture request").Build()
	}
	frame := req.FrameNumber
	invalid := func(format string, args ...any) error {
		return halError(errors.CategoryInvalidRequest, format, args...).FrameContext(frame).Build()
	}

	if len(req.OutputBuffers) == 0 {
		return invalid("frame %d has no output buffers", frame)
	}

	if in := req.InputBuffer; in != nil {
		if in.Stream == nil || in.Stream != d.inputStream {
			return invalid("frame %d input buffer is not on the configured input stream", frame)
		}
		if err := checkBuffer(in); err != nil {
			return invalid("frame %d input buffer: %v", frame, err)
		}
	}

	for i := range req.OutputBuffers {
		out := &req.OutputBuffers[i]
		if out.Stream == nil {
			return invalid("frame %d output %d has no stream", frame, i)
		}
		si := d.lookupStream(out.Stream)
		if si == nil || si.status != streamValid || si.channel == nil {
			return invalid("frame %d output %d targets unconfigured %s", frame, i, out.Stream)
		}
		if err := checkBuffer(out); err != nil {
			return invalid("frame %d output %d: %v", frame, i, err)
		}
	}
	return nil
}

func checkBuffer(b *StreamBuffer) error {
	switch {
	case b.Status != BufferStatusOK:
		return errors.NewStd("buffer has error status")
	case b.ReleaseFence != nil:
		return errors.NewStd("buffer has a release fence")
	case b.Buffer == NullBuffer:
		return errors.NewStd("buffer handle is null")
	}
	return nil
}

// prepareChannels registers unseen buffers and, on the first request of a
// configuration, initializes every channel.
func (d *Device) prepareChannels(req *CaptureRequest) error {
	for _, out := range req.OutputBuffers {
		si := d.lookupStream(out.Stream)
		if si.isRegistered(out.Buffer) {
			continue
		}
		if err := si.channel.RegisterBuffer(out.Buffer); err != nil {
			return halError(errors.CategoryDispatch, "register buffer %d on %s: %w", out.Buffer, out.Stream, err).
				FrameContext(req.FrameNumber).
				Build()
		}
		si.markRegistered(out.Buffer)
	}

	if !d.firstRequest {
		return nil
	}
	for _, si := range d.streams {
		if si.channel == nil {
			continue
		}
		if err := si.channel.Initialize(); err != nil {
			return halError(errors.CategoryDispatch, "initialize %s channel: %w", si.kind, err).
				FrameContext(req.FrameNumber).
				Context("stream_id", si.stream.ID).
				Build()
		}
	}
	if err := d.metadata.Initialize(); err != nil {
		return halError(errors.CategoryDispatch, "initialize metadata channel: %w", err).
			FrameContext(req.FrameNumber).
			Build()
	}
	d.firstRequest = false
	return nil
}

func (d *Device) resolveRequestID(req *CaptureRequest) (int32, error) {
	if id, ok := req.Settings.Int32(TagRequestID); ok {
		d.currentRequestID = id
		d.hasRequestID = true
		return id, nil
	}
	if !d.hasRequestID {
		return 0, halError(errors.CategoryMissingRequestID, "frame %d carries no request id and none is known", req.FrameNumber).
			FrameContext(req.FrameNumber).
			Build()
	}
	return d.currentRequestID, nil
}

func (d *Device) waitFences(ctx context.Context, req *CaptureRequest) error {
	if d.cfg.FenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.FenceTimeout)
		defer cancel()
	}

	for i := range req.OutputBuffers {
		out := &req.OutputBuffers[i]
		if out.AcquireFence == nil {
			continue
		}
		start := time.Now()
		if err := out.AcquireFence.Wait(ctx); err != nil {
			return halError(errors.CategoryFence, "acquire fence of buffer %d on %s: %w", out.Buffer, out.Stream, err).
				FrameContext(req.FrameNumber).
				Timing("fence_wait", time.Since(start)).
				Build()
		}
	}
	return nil
}

// pushParameters builds the frame's parameter batch and sends it to the
// backend. It returns the precapture trigger to attach to the frame.
func (d *Device) pushParameters(req *CaptureRequest) (AeTrigger, error) {
	var mask uint32
	for _, out := range req.OutputBuffers {
		mask |= d.lookupStream(out.Stream).kind.typeMask()
	}

	d.batch.Reset()
	d.batch.Set(ParamHALVersion, HALVersion)
	d.batch.Set(ParamFrameNumber, req.FrameNumber)
	d.batch.Set(ParamStreamTypeMask, mask)

	trigger := AeTrigger{Trigger: PrecaptureTriggerIdle, ID: d.precaptureID}
	if s := req.Settings; s != nil {
		if err := d.params.Translate(s, d.batch); err != nil {
			return trigger, halError(errors.CategoryParameter, "translate frame %d settings: %w", req.FrameNumber, err).
				FrameContext(req.FrameNumber).
				Build()
		}
		t, hasTrigger := s.Uint8(TagAePrecaptureTrigger)
		id, hasID := s.Int32(TagAePrecaptureID)
		if hasTrigger && hasID {
			trigger = AeTrigger{Trigger: t, ID: id}
			d.precaptureID = id
		}
	}

	if err := d.backend.SetParameters(d.batch); err != nil {
		return trigger, halError(errors.CategoryParameter, "backend rejected frame %d parameters: %w", req.FrameNumber, err).
			FrameContext(req.FrameNumber).
			Context("parameters", d.batch.Len()).
			Build()
	}

	if fps, ok := req.Settings.Int32s(TagAeTargetFpsRange); ok && len(fps) == 2 && fps[1] > 0 {
		d.frameDuration = time.Second / time.Duration(fps[1])
	}
	return trigger, nil
}

// dispatch hands the frame to the metadata channel and every output channel.
// It returns how many outputs were accepted by their channels.
func (d *Device) dispatch(req *CaptureRequest, jpeg *JpegSettings) (int, error) {
	frame := req.FrameNumber
	if err := d.metadata.Request(frame); err != nil {
		return 0, halError(errors.CategoryDispatch, "metadata request for frame %d: %w", frame, err).
			FrameContext(frame).
			Priority(errors.PriorityHigh).
			Build()
	}

	var reprocess *streamInfo
	for i, out := range req.OutputBuffers {
		si := d.lookupStream(out.Stream)
		cr := ChannelRequest{Buffer: out, FrameNumber: frame}

		if out.Stream.isBlob() {
			cr.Jpeg = jpeg
			if in := req.InputBuffer; in != nil {
				reprocess = si
				cr.Input = in
				cr.InputStream = d.inputStream
			}
		}

		if out.Stream.Direction == StreamBidirectional {
			// The framework recycled this buffer; its stored frame is stale
			if stale := d.zsl.takeByHandle(out.Buffer); stale != nil && stale.token != nil {
				d.metadata.BufDone(stale.token)
			}
		}

		if err := si.channel.Request(cr); err != nil {
			return i, halError(errors.CategoryDispatch, "%s request for frame %d: %w", out.Stream, frame, err).
				FrameContext(frame).
				Priority(errors.PriorityHigh).
				Context("stream_id", out.Stream.ID).
				Build()
		}
	}

	// The stored frame is consumed only once every output was accepted
	if reprocess != nil {
		if stored := d.zsl.takeReprocess(req.InputBuffer.Buffer); stored != nil {
			if reprocess.picture != nil {
				reprocess.picture.QueueReprocess(stored.token, d.metadata, *req.InputBuffer)
			} else {
				d.metadata.BufDone(stored.token)
			}
		}
	}
	d.updateGauges()
	return len(req.OutputBuffers), nil
}
