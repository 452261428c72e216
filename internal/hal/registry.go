package hal

type streamStatus int

const (
	streamValid streamStatus = iota
	streamInvalid
)

// streamInfo is the registration of one configured stream
type streamInfo struct {
	stream  *Stream
	status  streamStatus
	kind    PipelineKind
	layout  layout
	channel Channel        // nil for input-only streams
	picture PictureChannel // set when channel is a picture channel

	registered map[BufferHandle]struct{}
}

func (si *streamInfo) isRegistered(h BufferHandle) bool {
	_, ok := si.registered[h]
	return ok
}

func (si *streamInfo) markRegistered(h BufferHandle) {
	if si.registered == nil {
		si.registered = make(map[BufferHandle]struct{})
	}
	si.registered[h] = struct{}{}
}

func (d *Device) lookupStream(s *Stream) *streamInfo {
	for _, si := range d.streams {
		if si.stream == s {
			return si
		}
	}
	return nil
}

// jpegPicture returns the picture channel of the configured blob stream
func (d *Device) jpegPicture() PictureChannel {
	if d.jpegStream == nil {
		return nil
	}
	if si := d.lookupStream(d.jpegStream); si != nil {
		return si.picture
	}
	return nil
}

// activeChannels lists every stream channel followed by the metadata channel
func (d *Device) activeChannels() []stopper {
	out := make([]stopper, 0, len(d.streams)+1)
	for _, si := range d.streams {
		if si.channel != nil {
			out = append(out, si.channel)
		}
	}
	if d.metadata != nil {
		out = append(out, d.metadata)
	}
	return out
}

// unblockIfNecessary wakes a blocked submitter unless some stream already has
// all of its buffers in flight.
func (d *Device) unblockIfNecessary() {
	for _, si := range d.streams {
		if si.channel == nil || si.stream.MaxBuffers == 0 {
			continue
		}
		if d.buffers.countByStream(si.stream) >= int(si.stream.MaxBuffers) {
			return
		}
	}
	d.cond.Signal()
}
