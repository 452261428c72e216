package hal

import (
	"github.com/tphakala/camhal/internal/logger"
	"github.com/tphakala/camhal/internal/observability/metrics"
)

// Anomaly kinds counted by the correlation engine
const (
	anomalyNilToken        = "nil_token"
	anomalyUnknownMetadata = "metadata_unknown_frame"
	anomalyDuplicateBuffer = "duplicate_buffer"
	anomalyUnknownStream   = "buffer_unknown_stream"
	anomalyTranslateFailed = "result_translation_failed"
	anomalyLateCompletion  = "late_completion"
	anomalyNotPending      = "buffer_not_pending"
)

// OnCompletion correlates one channel completion with the pending ledgers.
// Channels call it from their own goroutines.
func (d *Device) OnCompletion(c Completion) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == stateClosed {
		d.reportAnomaly(anomalyLateCompletion)
		return
	}

	switch c := c.(type) {
	case MetadataCompletion:
		d.handleMetadata(c.Token)
	case BufferCompletion:
		d.handleBuffer(c.Buffer, c.FrameNumber)
	}
	d.updateGauges()
}

func (d *Device) handleMetadata(token *MetadataBuffer) {
	if token == nil {
		d.reportAnomaly(anomalyNilToken)
		return
	}

	if token.FrameNumberValid {
		d.correlateMetadata(token)
	} else {
		d.metadata.BufDone(token)
	}

	d.requests.incrementDepth()
	if token.PendingRequests == 0 {
		d.unblockIfNecessary()
	}
}

// correlateMetadata completes every pending frame up to the token's frame.
// Older frames never got their own metadata and receive a synthesized
// result back-dated by the active frame duration.
func (d *Device) correlateMetadata(token *MetadataBuffer) {
	frame := token.FrameNumber
	matched := false

	walked := d.requests.walkUpTo(frame, func(e *pendingRequest) {
		timestamp := token.Timestamp - int64(frame-e.frameNumber)*int64(d.frameDuration)

		d.sink.NotifyShutter(e.frameNumber, timestamp)
		d.metrics.RecordShutter(d.cfg.CameraID)
		if d.inFlight > 0 {
			d.inFlight--
		}

		result := CaptureResult{FrameNumber: e.frameNumber}
		kind := metrics.ResultFull
		if e.frameNumber != frame {
			result.Metadata = droppedResult(timestamp, e.requestID)
			kind = metrics.ResultDroppedMeta
			d.log.Debug("metadata dropped for frame",
				logger.Uint32("frame", e.frameNumber),
				logger.Uint32("reported_frame", frame))
		} else {
			matched = true
			result.Metadata = d.translate(e, token, timestamp)
			d.metrics.ObservePipelineDepth(d.cfg.CameraID, e.pipelineDepth)
			d.routeToken(e, token)
		}

		result.Buffers = d.collectFilled(e)
		d.sink.DeliverResult(result)
		d.metrics.RecordResult(d.cfg.CameraID, kind)
	})

	if !matched {
		d.metadata.BufDone(token)
		d.reportAnomaly(anomalyUnknownMetadata,
			logger.Uint32("frame", frame),
			logger.Int("walked", walked))
	}
}

func (d *Device) translate(e *pendingRequest, token *MetadataBuffer, timestamp int64) Settings {
	rc := ResultContext{
		FrameNumber:   e.frameNumber,
		RequestID:     e.requestID,
		Timestamp:     timestamp,
		PipelineDepth: e.pipelineDepth,
		AeTrigger:     e.aeTrigger,
		Metadata:      token,
	}
	md, err := d.results.Translate(rc)
	if err != nil || md == nil {
		d.reportAnomaly(anomalyTranslateFailed,
			logger.Uint32("frame", e.frameNumber),
			logger.Error(err))
		md = make(Settings)
		stampResult(md, rc)
	}
	return md
}

// routeToken passes ownership of a matched metadata token on
func (d *Device) routeToken(e *pendingRequest, token *MetadataBuffer) {
	if d.zslMode {
		if e.bidirectional {
			replaced, evicted := d.zsl.storeToken(e.frameNumber, token)
			if replaced != nil {
				d.metadata.BufDone(replaced)
			}
			d.releaseEvicted(evicted)
			// The buffer may have come back before the metadata
			if h := e.filledBidirectional(); h != NullBuffer {
				d.zsl.find(e.frameNumber).zslHandle = h
			}
			return
		}
		if e.blobRequested && !e.hasInputBuffer {
			d.queueJpegMetadata(token)
			return
		}
		d.metadata.BufDone(token)
		return
	}

	if e.blobRequested {
		d.queueJpegMetadata(token)
		return
	}
	d.metadata.BufDone(token)
}

func (d *Device) queueJpegMetadata(token *MetadataBuffer) {
	if pic := d.jpegPicture(); pic != nil {
		pic.QueueMetadata(token, d.metadata)
		return
	}
	d.metadata.BufDone(token)
}

func (d *Device) releaseEvicted(evicted *storedMetadata) {
	if evicted == nil {
		return
	}
	if evicted.token != nil {
		d.metadata.BufDone(evicted.token)
	}
	d.log.Debug("zsl store full, evicted oldest frame",
		logger.Uint32("frame", evicted.frameNumber))
}

// collectFilled returns the filled buffers of e and removes them from the
// pending buffer ledger
func (d *Device) collectFilled(e *pendingRequest) []StreamBuffer {
	var out []StreamBuffer
	for _, b := range e.buffers {
		if b.buffer == nil {
			continue
		}
		out = append(out, *b.buffer)
		d.buffers.remove(b.buffer.Buffer)
	}
	return out
}

func (d *Device) handleBuffer(buf StreamBuffer, frame uint32) {
	e := d.requests.find(frame)
	if e == nil {
		// Metadata for this frame was already delivered
		if !d.deliverBufferOnly(buf, frame) {
			return
		}
		if d.zslMode && buf.Stream != nil && buf.Stream.Direction == StreamBidirectional {
			d.releaseEvicted(d.zsl.storeHandle(frame, buf.Buffer))
		}
		d.unblockIfNecessary()
		return
	}

	slot := e.slot(buf.Stream)
	if slot == nil {
		d.reportAnomaly(anomalyUnknownStream,
			logger.Uint32("frame", frame),
			logger.String("stream", buf.Stream.String()))
		d.deliverBufferOnly(buf, frame)
		return
	}
	if slot.buffer != nil {
		d.reportAnomaly(anomalyDuplicateBuffer,
			logger.Uint32("frame", frame),
			logger.String("stream", buf.Stream.String()))
		return
	}
	b := buf
	slot.buffer = &b
}

// deliverBufferOnly returns a buffer without metadata. Buffers that are not
// pending were already returned and are dropped.
func (d *Device) deliverBufferOnly(buf StreamBuffer, frame uint32) bool {
	if !d.buffers.remove(buf.Buffer) {
		d.reportAnomaly(anomalyNotPending,
			logger.Uint32("frame", frame),
			logger.Uint64("buffer", uint64(buf.Buffer)))
		return false
	}
	d.sink.DeliverResult(CaptureResult{
		FrameNumber: frame,
		Buffers:     []StreamBuffer{buf},
	})
	d.metrics.RecordResult(d.cfg.CameraID, metrics.ResultBufferOnly)
	return true
}
