package hal

import (
	"fmt"
	"strings"

	"github.com/tphakala/camhal/internal/errors"
)

// TemplateType selects a default request template
type TemplateType int

const (
	TemplatePreview TemplateType = iota + 1
	TemplateStillCapture
	TemplateVideoRecord
	TemplateVideoSnapshot
	TemplateZeroShutterLag
	TemplateManual
)

var templateNames = map[TemplateType]string{
	TemplatePreview:        "preview",
	TemplateStillCapture:   "still_capture",
	TemplateVideoRecord:    "video_record",
	TemplateVideoSnapshot:  "video_snapshot",
	TemplateZeroShutterLag: "zsl",
	TemplateManual:         "manual",
}

func (t TemplateType) String() string {
	if name, ok := templateNames[t]; ok {
		return name
	}
	return fmt.Sprintf("template(%d)", int(t))
}

// ParseTemplate resolves a template by name
func ParseTemplate(name string) (TemplateType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range templateNames {
		if n == name {
			return t, nil
		}
	}
	return 0, errors.Newf("unknown template %q", name).
		Component(componentHAL).
		Category(errors.CategoryInvalidTemplate).
		Build()
}

// Control enumeration values used by the templates
const (
	controlModeOff  uint8 = 0
	controlModeAuto uint8 = 1

	aeModeOff uint8 = 0
	aeModeOn  uint8 = 1

	afModeOff             uint8 = 0
	afModeAuto            uint8 = 1
	afModeContinuousVideo uint8 = 3
	afModeContinuousPhoto uint8 = 4

	awbModeAuto uint8 = 1

	flashModeOff uint8 = 0

	processingFast        uint8 = 1
	processingHighQuality uint8 = 2
	processingZSL         uint8 = 4
)

// buildTemplate constructs the default settings of a template
func buildTemplate(t TemplateType, camera CameraInfo) (Settings, error) {
	if _, ok := templateNames[t]; !ok {
		return nil, halError(errors.CategoryInvalidTemplate, "invalid template type %d", int(t)).Build()
	}

	maxFps := camera.MaxFps
	if maxFps <= 0 {
		maxFps = 30
	}

	s := Settings{
		TagCaptureIntent:          uint8(t),
		TagControlMode:            controlModeAuto,
		TagAeMode:                 aeModeOn,
		TagAeExposureCompensation: int32(0),
		TagAePrecaptureTrigger:    PrecaptureTriggerIdle,
		TagAePrecaptureID:         int32(0),
		TagAwbMode:                awbModeAuto,
		TagFlashMode:              flashModeOff,
		TagJpegQuality:            DefaultJpegQuality,
		TagJpegThumbnailQuality:   DefaultJpegQuality,
		TagJpegOrientation:        camera.Orientation,
		TagJpegThumbnailSize:      []int32{0, 0},
		TagRequestID:              int32(0),
	}

	switch t {
	case TemplatePreview:
		s[TagAfMode] = afModeContinuousPhoto
		s[TagAeTargetFpsRange] = []int32{maxFps / 2, maxFps}
		s[TagNoiseReductionMode] = processingFast
		s[TagEdgeMode] = processingFast
	case TemplateStillCapture:
		s[TagAfMode] = afModeContinuousPhoto
		s[TagAeTargetFpsRange] = []int32{maxFps / 2, maxFps}
		s[TagNoiseReductionMode] = processingHighQuality
		s[TagEdgeMode] = processingHighQuality
	case TemplateVideoRecord, TemplateVideoSnapshot:
		s[TagAfMode] = afModeContinuousVideo
		s[TagAeTargetFpsRange] = []int32{maxFps, maxFps}
		s[TagNoiseReductionMode] = processingFast
		s[TagEdgeMode] = processingFast
	case TemplateZeroShutterLag:
		s[TagAfMode] = afModeContinuousPhoto
		s[TagAeTargetFpsRange] = []int32{maxFps / 2, maxFps}
		s[TagNoiseReductionMode] = processingZSL
		s[TagEdgeMode] = processingZSL
	case TemplateManual:
		s[TagControlMode] = controlModeOff
		s[TagAeMode] = aeModeOff
		s[TagAfMode] = afModeOff
		s[TagAeTargetFpsRange] = []int32{maxFps, maxFps}
		s[TagNoiseReductionMode] = processingHighQuality
		s[TagEdgeMode] = processingHighQuality
	default:
		s[TagAfMode] = afModeAuto
	}
	return s, nil
}
