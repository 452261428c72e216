package hal

// ResultContext is the input of a result translation for one matched frame
type ResultContext struct {
	FrameNumber   uint32
	RequestID     int32
	Timestamp     int64
	PipelineDepth uint8
	AeTrigger     AeTrigger
	Metadata      *MetadataBuffer
}

// ResultTranslator produces framework result metadata from a metadata token
type ResultTranslator interface {
	Translate(rc ResultContext) (Settings, error)
}

// DefaultResultTranslator copies the token payload and stamps the
// correlation fields owned by the HAL.
type DefaultResultTranslator struct{}

func (DefaultResultTranslator) Translate(rc ResultContext) (Settings, error) {
	out := make(Settings)
	if rc.Metadata != nil {
		for tag, v := range rc.Metadata.Payload.Clone() {
			out[tag] = v
		}
	}
	stampResult(out, rc)
	return out, nil
}

func stampResult(out Settings, rc ResultContext) {
	out[TagSensorTimestamp] = rc.Timestamp
	out[TagRequestID] = rc.RequestID
	out[TagPipelineDepth] = rc.PipelineDepth
	out[TagAePrecaptureTrigger] = rc.AeTrigger.Trigger
	out[TagAePrecaptureID] = rc.AeTrigger.ID
}

// droppedResult is the metadata synthesized for a frame whose own metadata
// never arrived
func droppedResult(timestamp int64, requestID int32) Settings {
	return Settings{
		TagSensorTimestamp: timestamp,
		TagRequestID:       requestID,
	}
}
