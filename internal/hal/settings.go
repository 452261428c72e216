package hal

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Tag identifies a capture setting or result field
type Tag uint32

const (
	TagRequestID Tag = iota + 1
	TagControlMode
	TagCaptureIntent
	TagAeMode
	TagAeTargetFpsRange
	TagAePrecaptureTrigger
	TagAePrecaptureID
	TagAeExposureCompensation
	TagAfMode
	TagAwbMode
	TagFlashMode
	TagSensorSensitivity
	TagSensorExposureTime
	TagSensorFrameDuration
	TagSensorTimestamp
	TagLensFocalLength
	TagLensAperture
	TagJpegOrientation
	TagJpegQuality
	TagJpegThumbnailSize
	TagJpegThumbnailQuality
	TagJpegGPSCoordinates
	TagJpegGPSTimestamp
	TagJpegGPSProcessingMethod
	TagNoiseReductionMode
	TagEdgeMode
	TagPipelineDepth
)

var tagNames = map[Tag]string{
	TagRequestID:               "request.id",
	TagControlMode:             "control.mode",
	TagCaptureIntent:           "control.capture_intent",
	TagAeMode:                  "control.ae_mode",
	TagAeTargetFpsRange:        "control.ae_target_fps_range",
	TagAePrecaptureTrigger:     "control.ae_precapture_trigger",
	TagAePrecaptureID:          "control.ae_precapture_id",
	TagAeExposureCompensation:  "control.ae_exposure_compensation",
	TagAfMode:                  "control.af_mode",
	TagAwbMode:                 "control.awb_mode",
	TagFlashMode:               "flash.mode",
	TagSensorSensitivity:       "sensor.sensitivity",
	TagSensorExposureTime:      "sensor.exposure_time",
	TagSensorFrameDuration:     "sensor.frame_duration",
	TagSensorTimestamp:         "sensor.timestamp",
	TagLensFocalLength:         "lens.focal_length",
	TagLensAperture:            "lens.aperture",
	TagJpegOrientation:         "jpeg.orientation",
	TagJpegQuality:             "jpeg.quality",
	TagJpegThumbnailSize:       "jpeg.thumbnail_size",
	TagJpegThumbnailQuality:    "jpeg.thumbnail_quality",
	TagJpegGPSCoordinates:      "jpeg.gps_coordinates",
	TagJpegGPSTimestamp:        "jpeg.gps_timestamp",
	TagJpegGPSProcessingMethod: "jpeg.gps_processing_method",
	TagNoiseReductionMode:      "noise_reduction.mode",
	TagEdgeMode:                "edge.mode",
	TagPipelineDepth:           "request.pipeline_depth",
}

var tagsByName = func() map[string]Tag {
	m := make(map[string]Tag, len(tagNames))
	for tag, name := range tagNames {
		m[name] = tag
	}
	return m
}()

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", uint32(t))
}

// Settings is a sparse set of capture controls or result fields.
//
// Values use a small set of concrete types: uint8 for enumerations, int32,
// int64, float64, string, []int32 and []float64. Typed getters return false
// when the tag is absent or holds a different type.
type Settings map[Tag]any

// Has reports whether tag is present
func (s Settings) Has(tag Tag) bool {
	_, ok := s[tag]
	return ok
}

// Uint8 returns an enumeration value
func (s Settings) Uint8(tag Tag) (uint8, bool) {
	v, ok := s[tag].(uint8)
	return v, ok
}

// Int32 returns a 32-bit integer value
func (s Settings) Int32(tag Tag) (int32, bool) {
	v, ok := s[tag].(int32)
	return v, ok
}

// Int64 returns a 64-bit integer value
func (s Settings) Int64(tag Tag) (int64, bool) {
	v, ok := s[tag].(int64)
	return v, ok
}

// Float64 returns a floating point value
func (s Settings) Float64(tag Tag) (float64, bool) {
	v, ok := s[tag].(float64)
	return v, ok
}

// Text returns a string value
func (s Settings) Text(tag Tag) (string, bool) {
	v, ok := s[tag].(string)
	return v, ok
}

// Int32s returns an integer array value
func (s Settings) Int32s(tag Tag) ([]int32, bool) {
	v, ok := s[tag].([]int32)
	return v, ok
}

// Float64s returns a floating point array value
func (s Settings) Float64s(tag Tag) ([]float64, bool) {
	v, ok := s[tag].([]float64)
	return v, ok
}

// Clone returns a copy that shares no slices with s
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for tag, v := range s {
		switch tv := v.(type) {
		case []int32:
			out[tag] = slices.Clone(tv)
		case []float64:
			out[tag] = slices.Clone(tv)
		default:
			out[tag] = v
		}
	}
	return out
}

// Tags returns the present tags in ascending order
func (s Settings) Tags() []Tag {
	return slices.Sorted(maps.Keys(s))
}

// Named returns the settings keyed by tag name, for YAML and logs
func (s Settings) Named() map[string]any {
	out := make(map[string]any, len(s))
	for tag, v := range s {
		out[tag.String()] = v
	}
	return out
}

// SettingsFromNamed converts a name-keyed map, as decoded from YAML, into
// Settings. Numeric values are coerced to the type each tag expects.
func SettingsFromNamed(named map[string]any) (Settings, error) {
	out := make(Settings, len(named))
	for name, raw := range named {
		tag, ok := tagsByName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown setting %q", name)
		}
		v, err := coerce(tag, raw)
		if err != nil {
			return nil, fmt.Errorf("setting %q: %w", name, err)
		}
		out[tag] = v
	}
	return out, nil
}

type valueKind int

const (
	kindUint8 valueKind = iota
	kindInt32
	kindInt64
	kindFloat64
	kindString
	kindInt32s
	kindFloat64s
)

var tagKinds = map[Tag]valueKind{
	TagRequestID:               kindInt32,
	TagAeTargetFpsRange:        kindInt32s,
	TagAePrecaptureID:          kindInt32,
	TagAeExposureCompensation:  kindInt32,
	TagSensorSensitivity:       kindInt32,
	TagSensorExposureTime:      kindInt64,
	TagSensorFrameDuration:     kindInt64,
	TagSensorTimestamp:         kindInt64,
	TagLensFocalLength:         kindFloat64,
	TagLensAperture:            kindFloat64,
	TagJpegOrientation:         kindInt32,
	TagJpegThumbnailSize:       kindInt32s,
	TagJpegGPSCoordinates:      kindFloat64s,
	TagJpegGPSTimestamp:        kindInt64,
	TagJpegGPSProcessingMethod: kindString,
}

func kindOf(tag Tag) valueKind {
	if k, ok := tagKinds[tag]; ok {
		return k
	}
	return kindUint8
}

func coerce(tag Tag, raw any) (any, error) {
	switch kindOf(tag) {
	case kindUint8:
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("value %d out of range for enumeration", n)
		}
		return uint8(n), nil
	case kindInt32:
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case kindInt64:
		return toInt64(raw)
	case kindFloat64:
		return toFloat64(raw)
	case kindString:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return str, nil
	case kindInt32s:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", raw)
		}
		out := make([]int32, 0, len(items))
		for _, item := range items {
			n, err := toInt64(item)
			if err != nil {
				return nil, err
			}
			out = append(out, int32(n))
		}
		return out, nil
	case kindFloat64s:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", raw)
		}
		out := make([]float64, 0, len(items))
		for _, item := range items {
			f, err := toFloat64(item)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported tag %s", tag)
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}
