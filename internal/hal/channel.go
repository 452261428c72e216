package hal

// PipelineKind is the channel category chosen for an output stream
type PipelineKind int

const (
	PipelineDefault PipelineKind = iota
	PipelinePreview
	PipelineVideo
	PipelineSnapshot
	PipelineCallback
	PipelineNonZSLSnapshot
	PipelineRaw
)

func (k PipelineKind) String() string {
	switch k {
	case PipelinePreview:
		return "preview"
	case PipelineVideo:
		return "video"
	case PipelineSnapshot:
		return "snapshot"
	case PipelineCallback:
		return "callback"
	case PipelineNonZSLSnapshot:
		return "non_zsl_snapshot"
	case PipelineRaw:
		return "raw"
	default:
		return "default"
	}
}

// classify picks the pipeline for an output stream. hasBlob reports whether
// the configuration also contains a blob stream.
func classify(s *Stream, hasBlob bool) PipelineKind {
	switch s.Format {
	case FormatImplementationDefined:
		switch {
		case s.Direction == StreamBidirectional && hasBlob:
			return PipelineSnapshot
		case s.Usage&UsageVideoEncoder != 0:
			return PipelineVideo
		default:
			return PipelinePreview
		}
	case FormatYCbCr420888:
		return PipelineCallback
	case FormatBlob:
		return PipelineNonZSLSnapshot
	case FormatRaw16, FormatRawOpaque:
		return PipelineRaw
	default:
		return PipelineDefault
	}
}

// MetadataBuffer is a metadata token produced by the metadata pipeline.
// Ownership passes to the device with the completion and must be returned
// through BufDone or handed on to a picture channel.
type MetadataBuffer struct {
	FrameNumberValid bool
	FrameNumber      uint32
	PendingRequests  uint32
	Timestamp        int64 // ns

	// Payload carries the raw per-frame controls for the ResultTranslator
	Payload Settings
}

// Completion is an asynchronous event from a channel. It is either a
// MetadataCompletion or a BufferCompletion.
type Completion interface {
	isCompletion()
}

// MetadataCompletion carries a metadata token
type MetadataCompletion struct {
	Token *MetadataBuffer
}

// BufferCompletion carries a filled output buffer for a frame
type BufferCompletion struct {
	Buffer      StreamBuffer
	FrameNumber uint32
}

func (MetadataCompletion) isCompletion() {}
func (BufferCompletion) isCompletion()   {}

// CompletionFunc is handed to channels at construction. Channels must call it
// from their own goroutines, never from within Request or Stop.
type CompletionFunc func(Completion)

// ChannelRequest is one unit of work for a stream channel
type ChannelRequest struct {
	Buffer      StreamBuffer
	FrameNumber uint32

	// Jpeg is set for blob outputs
	Jpeg *JpegSettings

	// Input and InputStream are set for reprocess requests
	Input       *StreamBuffer
	InputStream *Stream
}

// Channel is a per-stream pipeline
type Channel interface {
	Initialize() error
	RegisterBuffer(handle BufferHandle) error
	Request(req ChannelRequest) error
	// Stop halts processing. It must be safe to call more than once and
	// before Initialize.
	Stop()
	MaxBuffers() uint32
}

// MetadataChannel is the per-frame metadata pipeline
type MetadataChannel interface {
	Initialize() error
	Request(frameNumber uint32) error
	Stop()
	BufDone(token *MetadataBuffer)
}

// PictureChannel is a blob channel that also accepts metadata tokens for
// JPEG encoding and stored ZSL tokens for reprocessing.
type PictureChannel interface {
	Channel
	QueueMetadata(token *MetadataBuffer, owner MetadataChannel)
	QueueReprocess(token *MetadataBuffer, owner MetadataChannel, input StreamBuffer)
}

// ChannelFactory creates channels for a configuration
type ChannelFactory interface {
	NewMetadataChannel(onComplete CompletionFunc) (MetadataChannel, error)
	NewStreamChannel(stream *Stream, kind PipelineKind, onComplete CompletionFunc) (Channel, error)
	NewPictureChannel(stream *Stream, onComplete CompletionFunc) (PictureChannel, error)
}
