package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSettingsFromNamedCoercesYAML(t *testing.T) {
	t.Parallel()

	doc := `
request.id: 7
control.ae_mode: 1
control.ae_target_fps_range: [15, 30]
sensor.exposure_time: 10000000
lens.focal_length: 4
jpeg.gps_coordinates: [60.17, 24.94, 12.5]
jpeg.gps_processing_method: GPS
`
	var named map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(doc), &named))

	s, err := SettingsFromNamed(named)
	require.NoError(t, err)

	id, ok := s.Int32(TagRequestID)
	require.True(t, ok)
	assert.Equal(t, int32(7), id)

	mode, ok := s.Uint8(TagAeMode)
	require.True(t, ok)
	assert.Equal(t, aeModeOn, mode)

	fps, ok := s.Int32s(TagAeTargetFpsRange)
	require.True(t, ok)
	assert.Equal(t, []int32{15, 30}, fps)

	exposure, _ := s.Int64(TagSensorExposureTime)
	assert.Equal(t, int64(10_000_000), exposure)

	focal, ok := s.Float64(TagLensFocalLength)
	require.True(t, ok)
	assert.InDelta(t, 4.0, focal, 1e-9)

	gps, _ := s.Float64s(TagJpegGPSCoordinates)
	assert.Len(t, gps, 3)

	method, _ := s.Text(TagJpegGPSProcessingMethod)
	assert.Equal(t, "GPS", method)
}

func TestSettingsFromNamedErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]map[string]any{
		"unknown tag":        {"control.warp_drive": 1},
		"enum out of range":  {"control.ae_mode": 300},
		"negative enum":      {"control.af_mode": -1},
		"string for integer": {"request.id": "seven"},
		"scalar for list":    {"control.ae_target_fps_range": 30},
		"number for string":  {"jpeg.gps_processing_method": 3},
	}
	for name, named := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := SettingsFromNamed(named)
			assert.Error(t, err)
		})
	}
}

func TestSettingsClone(t *testing.T) {
	t.Parallel()

	s := Settings{TagAeTargetFpsRange: []int32{15, 30}, TagAeMode: aeModeOn}
	c := s.Clone()
	c[TagAeTargetFpsRange].([]int32)[0] = 1
	c[TagAeMode] = aeModeOff

	fps, _ := s.Int32s(TagAeTargetFpsRange)
	assert.Equal(t, int32(15), fps[0])
	mode, _ := s.Uint8(TagAeMode)
	assert.Equal(t, aeModeOn, mode)

	assert.Nil(t, Settings(nil).Clone())
}

func TestSettingsTypedGettersRejectMismatch(t *testing.T) {
	t.Parallel()

	s := Settings{TagRequestID: int64(3)}
	_, ok := s.Int32(TagRequestID)
	assert.False(t, ok)
	assert.True(t, s.Has(TagRequestID))

	var empty Settings
	_, ok = empty.Int32s(TagAeTargetFpsRange)
	assert.False(t, ok)
}

func TestSettingsNamedRoundTrip(t *testing.T) {
	t.Parallel()

	s := Settings{TagRequestID: int32(4), TagAwbMode: awbModeAuto}
	named := s.Named()
	assert.Equal(t, map[string]any{"request.id": int32(4), "control.awb_mode": awbModeAuto}, named)

	back, err := SettingsFromNamed(named)
	require.NoError(t, err)
	assert.Equal(t, s, back)
	assert.Equal(t, []Tag{TagRequestID, TagAwbMode}, back.Tags())
}
