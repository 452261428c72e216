package hal

import (
	"context"

	"github.com/tphakala/camhal/internal/errors"
	"github.com/tphakala/camhal/internal/logger"
)

func validateStreamList(streams []*Stream) error {
	if len(streams) == 0 {
		return halError(errors.CategoryNoStreams, "stream list is empty").Build()
	}
	inputs := 0
	for i, s := range streams {
		if s == nil {
			return halError(errors.CategoryInvalidConfiguration, "stream %d is nil", i).Build()
		}
		if s.Width == 0 || s.Height == 0 {
			return halError(errors.CategoryInvalidConfiguration, "stream %d has zero size %dx%d", s.ID, s.Width, s.Height).
				Context("stream_id", s.ID).
				Build()
		}
		if s.Direction == StreamInput || s.Direction == StreamBidirectional {
			inputs++
		}
	}
	if inputs > 1 {
		return halError(errors.CategoryMultipleInputStreams, "%d input streams requested, at most one is supported", inputs).
			Context("input_streams", inputs).
			Build()
	}
	return nil
}

// ConfigureStreams replaces the active stream configuration. Channels of
// streams whose layout is unchanged are kept; every ledger is reset and the
// next request is treated as the first.
func (d *Device) ConfigureStreams(ctx context.Context, streams []*Stream) error {
	if err := validateStreamList(streams); err != nil {
		d.metrics.RecordConfiguration(d.cfg.CameraID, errorStatus(err))
		return err
	}

	d.mu.Lock()
	if d.state == stateClosed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.state == stateFlushing {
		d.mu.Unlock()
		return halError(errors.CategoryFlushing, "configure during flush").Build()
	}
	channels := d.activeChannels()
	d.state = stateUnconfigured
	d.mu.Unlock()

	stopChannels(ctx, channels)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reconfigureLocked(streams); err != nil {
		d.metrics.RecordConfiguration(d.cfg.CameraID, errorStatus(err))
		d.log.Error("stream configuration failed", logger.Error(err))
		return err
	}

	d.state = stateActive
	d.metrics.RecordConfiguration(d.cfg.CameraID, "ok")
	d.log.Info("streams configured",
		logger.Int("streams", len(d.streams)),
		logger.Bool("zsl", d.zslMode))
	return nil
}

func (d *Device) reconfigureLocked(streams []*Stream) error {
	for _, si := range d.streams {
		si.status = streamInvalid
	}

	hasBlob := false
	for _, s := range streams {
		if s.isBlob() {
			hasBlob = true
		}
	}

	// Revalidate registrations present in the new list
	var added []*Stream
	for _, s := range streams {
		si := d.lookupStream(s)
		if si == nil {
			added = append(added, s)
			continue
		}
		si.status = streamValid
		if si.layout != s.layout() || (si.channel != nil && si.kind != classify(s, hasBlob)) {
			si.channel, si.picture = nil, nil
		}
	}

	// Sweep registrations missing from the new list
	kept := d.streams[:0]
	for _, si := range d.streams {
		if si.status == streamValid {
			kept = append(kept, si)
		}
	}
	clear(d.streams[len(kept):])
	d.streams = kept

	for _, s := range added {
		d.streams = append(d.streams, &streamInfo{stream: s, status: streamValid})
	}

	// Return stored tokens to the channel that produced them
	d.releaseStored()

	metadata, err := d.factory.NewMetadataChannel(d.OnCompletion)
	if err != nil {
		return halError(errors.CategoryChannelCreate, "create metadata channel: %w", err).Build()
	}
	d.metadata = metadata

	d.inputStream, d.jpegStream = nil, nil
	for _, si := range d.streams {
		s := si.stream
		si.layout = s.layout()
		si.registered = nil

		if s.Direction == StreamInput || s.Direction == StreamBidirectional {
			d.inputStream = s
		}
		if s.Direction == StreamInput {
			si.channel, si.picture = nil, nil
			continue
		}

		kind := classify(s, hasBlob)
		if si.channel == nil {
			if err := d.createChannel(si, kind); err != nil {
				return err
			}
		}
		si.kind = kind
		s.MaxBuffers = si.channel.MaxBuffers()
		if s.isBlob() {
			d.jpegStream = s
		}
	}

	d.zslMode = false
	if d.jpegStream != nil && d.inputStream != nil && d.inputStream.Direction == StreamBidirectional {
		d.zslMode = true
	}

	d.requests.reset()
	d.buffers.reset()
	d.zsl = newZSLStore(d.cfg.ZSLMaxStored)
	d.batch.Reset()
	d.hasRequestID = false
	d.currentRequestID = 0
	d.inFlight = 0
	d.cond.Broadcast()
	d.firstRequest = true
	d.frameDuration = d.cfg.FrameDuration
	d.updateGauges()
	return nil
}

func (d *Device) createChannel(si *streamInfo, kind PipelineKind) error {
	s := si.stream
	if kind == PipelineNonZSLSnapshot {
		pic, err := d.factory.NewPictureChannel(s, d.OnCompletion)
		if err != nil {
			return halError(errors.CategoryChannelCreate, "create picture channel for %s: %w", s, err).
				Context("stream_id", s.ID).
				Build()
		}
		si.channel, si.picture = pic, pic
		return nil
	}

	ch, err := d.factory.NewStreamChannel(s, kind, d.OnCompletion)
	if err != nil {
		return halError(errors.CategoryChannelCreate, "create %s channel for %s: %w", kind, s, err).
			Context("stream_id", s.ID).
			Build()
	}
	si.channel, si.picture = ch, nil
	return nil
}

// errorStatus is the metrics label of an error
func errorStatus(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}
