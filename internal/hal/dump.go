package hal

import (
	"fmt"
	"io"
	"time"
)

// StreamSnapshot describes one configured stream
type StreamSnapshot struct {
	ID             int
	Direction      string
	Format         string
	Width          uint32
	Height         uint32
	Pipeline       string
	MaxBuffers     uint32
	PendingBuffers int
	Registered     int
}

// RequestSnapshot describes one pending request
type RequestSnapshot struct {
	FrameNumber   uint32
	RequestID     int32
	PipelineDepth uint8
	Outputs       int
	Filled        int
	Blob          bool
	Reprocess     bool
}

// Snapshot is a point-in-time copy of device state
type Snapshot struct {
	CameraID       string
	State          string
	ZSLMode        bool
	InFlight       int
	MaxInFlight    int
	FrameDuration  time.Duration
	Streams        []StreamSnapshot
	Requests       []RequestSnapshot
	PendingBuffers int
	ZSLStored      int
}

// Snapshot returns the current device state
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		CameraID:       d.cfg.CameraID,
		State:          d.state.String(),
		ZSLMode:        d.zslMode,
		InFlight:       d.inFlight,
		MaxInFlight:    d.cfg.MaxInFlight,
		FrameDuration:  d.frameDuration,
		PendingBuffers: d.buffers.len(),
		ZSLStored:      d.zsl.len(),
	}
	for _, si := range d.streams {
		ss := StreamSnapshot{
			ID:             si.stream.ID,
			Direction:      si.stream.Direction.String(),
			Format:         si.stream.Format.String(),
			Width:          si.stream.Width,
			Height:         si.stream.Height,
			MaxBuffers:     si.stream.MaxBuffers,
			PendingBuffers: d.buffers.countByStream(si.stream),
			Registered:     len(si.registered),
		}
		if si.channel != nil {
			ss.Pipeline = si.kind.String()
		}
		s.Streams = append(s.Streams, ss)
	}
	for _, e := range d.requests.entries {
		rs := RequestSnapshot{
			FrameNumber:   e.frameNumber,
			RequestID:     e.requestID,
			PipelineDepth: e.pipelineDepth,
			Outputs:       len(e.buffers),
			Blob:          e.blobRequested,
			Reprocess:     e.hasInputBuffer,
		}
		for _, b := range e.buffers {
			if b.buffer != nil {
				rs.Filled++
			}
		}
		s.Requests = append(s.Requests, rs)
	}
	return s
}

// Dump writes a human readable snapshot of the device
func (d *Device) Dump(w io.Writer) {
	s := d.Snapshot()

	fmt.Fprintf(w, "camera %s: state=%s zsl=%t in_flight=%d/%d frame_duration=%s\n",
		s.CameraID, s.State, s.ZSLMode, s.InFlight, s.MaxInFlight, s.FrameDuration)

	fmt.Fprintf(w, "streams (%d):\n", len(s.Streams))
	for _, st := range s.Streams {
		pipeline := st.Pipeline
		if pipeline == "" {
			pipeline = "none"
		}
		fmt.Fprintf(w, "  #%d %s %s %dx%d pipeline=%s pending=%d/%d registered=%d\n",
			st.ID, st.Direction, st.Format, st.Width, st.Height, pipeline,
			st.PendingBuffers, st.MaxBuffers, st.Registered)
	}

	fmt.Fprintf(w, "pending requests (%d):\n", len(s.Requests))
	for _, r := range s.Requests {
		fmt.Fprintf(w, "  frame=%d request_id=%d depth=%d filled=%d/%d blob=%t reprocess=%t\n",
			r.FrameNumber, r.RequestID, r.PipelineDepth, r.Filled, r.Outputs, r.Blob, r.Reprocess)
	}

	fmt.Fprintf(w, "pending buffers: %d\n", s.PendingBuffers)
	fmt.Fprintf(w, "zsl stored: %d\n", s.ZSLStored)
}
