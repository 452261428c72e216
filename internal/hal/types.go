package hal

import (
	"context"
	"fmt"
)

// BufferHandle identifies a framework-allocated graphic buffer.
// The zero value is the null handle.
type BufferHandle uint64

// NullBuffer is the null buffer handle
const NullBuffer BufferHandle = 0

// StreamDirection is the data direction of a stream relative to the HAL
type StreamDirection int

const (
	StreamOutput StreamDirection = iota
	StreamInput
	StreamBidirectional
)

func (d StreamDirection) String() string {
	switch d {
	case StreamOutput:
		return "output"
	case StreamInput:
		return "input"
	case StreamBidirectional:
		return "bidirectional"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// PixelFormat is the declared pixel format of a stream
type PixelFormat int

const (
	FormatImplementationDefined PixelFormat = iota + 1
	FormatYCbCr420888
	FormatBlob
	FormatRaw16
	FormatRawOpaque
)

func (f PixelFormat) String() string {
	switch f {
	case FormatImplementationDefined:
		return "implementation_defined"
	case FormatYCbCr420888:
		return "ycbcr_420_888"
	case FormatBlob:
		return "blob"
	case FormatRaw16:
		return "raw16"
	case FormatRawOpaque:
		return "raw_opaque"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// UsageFlags are the gralloc usage bits declared on a stream
type UsageFlags uint32

const (
	UsageHWTexture    UsageFlags = 1 << 8
	UsageHWComposer   UsageFlags = 1 << 11
	UsageVideoEncoder UsageFlags = 1 << 16
)

// Stream is a framework stream. Streams are compared by pointer identity;
// the framework keeps the same object alive across reconfigurations.
type Stream struct {
	ID        int
	Direction StreamDirection
	Format    PixelFormat
	Width     uint32
	Height    uint32
	Usage     UsageFlags

	// MaxBuffers is written by ConfigureStreams with the channel's queue depth.
	MaxBuffers uint32
}

func (s *Stream) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("stream#%d(%s %s %dx%d)", s.ID, s.Direction, s.Format, s.Width, s.Height)
}

func (s *Stream) isBlob() bool { return s.Format == FormatBlob }

// layout is the part of a stream that decides its channel
type layout struct {
	direction StreamDirection
	format    PixelFormat
	width     uint32
	height    uint32
	usage     UsageFlags
}

func (s *Stream) layout() layout {
	return layout{s.Direction, s.Format, s.Width, s.Height, s.Usage}
}

// BufferStatus reports whether a buffer holds valid data
type BufferStatus int

const (
	BufferStatusOK BufferStatus = iota
	BufferStatusError
)

// Fence is a synchronization primitive signaled when a buffer may be used.
// A nil Fence is already signaled.
type Fence interface {
	Wait(ctx context.Context) error
}

// StreamBuffer pairs a buffer with the stream it belongs to
type StreamBuffer struct {
	Stream       *Stream
	Buffer       BufferHandle
	Status       BufferStatus
	AcquireFence Fence
	ReleaseFence Fence
}

// CaptureRequest is one frame's worth of work submitted by the framework
type CaptureRequest struct {
	FrameNumber   uint32
	Settings      Settings // nil repeats the previous settings
	InputBuffer   *StreamBuffer
	OutputBuffers []StreamBuffer
}

// CaptureResult is delivered to the framework for a frame. Metadata is nil
// for buffer-only partial results and for flush error results.
type CaptureResult struct {
	FrameNumber uint32
	Metadata    Settings
	Buffers     []StreamBuffer
}

// ErrorCode classifies an error notification
type ErrorCode int

const (
	ErrorDevice ErrorCode = iota + 1
	ErrorRequest
	ErrorResult
	ErrorBuffer
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorDevice:
		return "device"
	case ErrorRequest:
		return "request"
	case ErrorResult:
		return "result"
	case ErrorBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("error(%d)", int(c))
	}
}

// ResultSink receives framework callbacks. Methods are invoked with the
// device lock held and must not call back into the Device.
type ResultSink interface {
	NotifyShutter(frameNumber uint32, timestamp int64)
	NotifyError(frameNumber uint32, code ErrorCode, stream *Stream)
	DeliverResult(result CaptureResult)
}

// AeTrigger is the auto-exposure precapture trigger attached to a request
type AeTrigger struct {
	Trigger uint8
	ID      int32
}

// Precapture trigger values
const (
	PrecaptureTriggerIdle  uint8 = 0
	PrecaptureTriggerStart uint8 = 1
)
