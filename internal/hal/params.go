package hal

import (
	"fmt"
	"maps"
	"slices"
)

// HALVersion is the interface version pushed with every parameter batch
const HALVersion int32 = 3

// ParamKind is a backend parameter identifier
type ParamKind uint16

const (
	ParamHALVersion ParamKind = iota + 1
	ParamFrameNumber
	ParamStreamTypeMask
	ParamRequestID
	ParamControlMode
	ParamCaptureIntent
	ParamAeMode
	ParamAeTargetFpsRange
	ParamAePrecaptureTrigger
	ParamAeExposureCompensation
	ParamAfMode
	ParamAwbMode
	ParamFlashMode
	ParamSensorSensitivity
	ParamSensorExposureTime
	ParamSensorFrameDuration
	ParamLensFocalLength
	ParamLensAperture
	ParamNoiseReductionMode
	ParamEdgeMode
)

var paramNames = map[ParamKind]string{
	ParamHALVersion:             "hal_version",
	ParamFrameNumber:            "frame_number",
	ParamStreamTypeMask:         "stream_type_mask",
	ParamRequestID:              "request_id",
	ParamControlMode:            "control_mode",
	ParamCaptureIntent:          "capture_intent",
	ParamAeMode:                 "ae_mode",
	ParamAeTargetFpsRange:       "ae_target_fps_range",
	ParamAePrecaptureTrigger:    "ae_precapture_trigger",
	ParamAeExposureCompensation: "ae_exposure_compensation",
	ParamAfMode:                 "af_mode",
	ParamAwbMode:                "awb_mode",
	ParamFlashMode:              "flash_mode",
	ParamSensorSensitivity:      "sensor_sensitivity",
	ParamSensorExposureTime:     "sensor_exposure_time",
	ParamSensorFrameDuration:    "sensor_frame_duration",
	ParamLensFocalLength:        "lens_focal_length",
	ParamLensAperture:           "lens_aperture",
	ParamNoiseReductionMode:     "noise_reduction_mode",
	ParamEdgeMode:               "edge_mode",
}

func (k ParamKind) String() string {
	if name, ok := paramNames[k]; ok {
		return name
	}
	return fmt.Sprintf("param(%d)", uint16(k))
}

// BatchEntry is one parameter in a batch
type BatchEntry struct {
	Kind  ParamKind
	Value any
}

// ParameterBatch is the sparse set of parameters changed for one frame.
// It is owned by the device and only mutated under the device lock.
type ParameterBatch struct {
	values map[ParamKind]any
}

// NewParameterBatch returns an empty batch
func NewParameterBatch() *ParameterBatch {
	return &ParameterBatch{values: make(map[ParamKind]any)}
}

// Set adds or overwrites a parameter
func (b *ParameterBatch) Set(kind ParamKind, value any) {
	b.values[kind] = value
}

// Get returns a parameter value
func (b *ParameterBatch) Get(kind ParamKind) (any, bool) {
	v, ok := b.values[kind]
	return v, ok
}

// Len returns the number of parameters in the batch
func (b *ParameterBatch) Len() int {
	return len(b.values)
}

// Reset empties the batch
func (b *ParameterBatch) Reset() {
	clear(b.values)
}

// Entries returns the parameters in ascending kind order
func (b *ParameterBatch) Entries() []BatchEntry {
	kinds := slices.Sorted(maps.Keys(b.values))
	out := make([]BatchEntry, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, BatchEntry{Kind: k, Value: b.values[k]})
	}
	return out
}

// Backend receives the parameter batch for each admitted frame
type Backend interface {
	SetParameters(batch *ParameterBatch) error
}

// ParameterTranslator converts framework settings into backend parameters
type ParameterTranslator interface {
	Translate(settings Settings, batch *ParameterBatch) error
}

// ParameterTranslatorFunc adapts a function to ParameterTranslator
type ParameterTranslatorFunc func(Settings, *ParameterBatch) error

func (f ParameterTranslatorFunc) Translate(settings Settings, batch *ParameterBatch) error {
	return f(settings, batch)
}

var settingParams = map[Tag]ParamKind{
	TagRequestID:              ParamRequestID,
	TagControlMode:            ParamControlMode,
	TagCaptureIntent:          ParamCaptureIntent,
	TagAeMode:                 ParamAeMode,
	TagAeTargetFpsRange:       ParamAeTargetFpsRange,
	TagAePrecaptureTrigger:    ParamAePrecaptureTrigger,
	TagAeExposureCompensation: ParamAeExposureCompensation,
	TagAfMode:                 ParamAfMode,
	TagAwbMode:                ParamAwbMode,
	TagFlashMode:              ParamFlashMode,
	TagSensorSensitivity:      ParamSensorSensitivity,
	TagSensorExposureTime:     ParamSensorExposureTime,
	TagSensorFrameDuration:    ParamSensorFrameDuration,
	TagLensFocalLength:        ParamLensFocalLength,
	TagLensAperture:           ParamLensAperture,
	TagNoiseReductionMode:     ParamNoiseReductionMode,
	TagEdgeMode:               ParamEdgeMode,
}

// DefaultParameterTranslator copies every known control into the batch
// one-to-one. Tags without a backend parameter are ignored.
type DefaultParameterTranslator struct{}

func (DefaultParameterTranslator) Translate(settings Settings, batch *ParameterBatch) error {
	if fps, ok := settings.Int32s(TagAeTargetFpsRange); ok && len(fps) != 2 {
		return fmt.Errorf("ae target fps range needs 2 values, got %d", len(fps))
	}
	for tag, kind := range settingParams {
		if v, ok := settings[tag]; ok {
			batch.Set(kind, v)
		}
	}
	return nil
}

// stream type bits for ParamStreamTypeMask
const (
	streamTypePreview  uint32 = 1 << 0
	streamTypeVideo    uint32 = 1 << 1
	streamTypeSnapshot uint32 = 1 << 2
	streamTypeCallback uint32 = 1 << 3
	streamTypeRaw      uint32 = 1 << 4
	streamTypeDefault  uint32 = 1 << 5
)

// typeMask returns the stream type bit of a pipeline
func (k PipelineKind) typeMask() uint32 {
	switch k {
	case PipelinePreview:
		return streamTypePreview
	case PipelineVideo:
		return streamTypeVideo
	case PipelineSnapshot, PipelineNonZSLSnapshot:
		return streamTypeSnapshot
	case PipelineCallback:
		return streamTypeCallback
	case PipelineRaw:
		return streamTypeRaw
	default:
		return streamTypeDefault
	}
}
