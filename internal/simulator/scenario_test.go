package simulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camhal/internal/hal"
)

const zslScenario = `
name: zsl-burst
camera: "0"
max_in_flight: 4
template: zsl
streams:
  - id: 1
    direction: output
    format: implementation_defined
    width: 1920
    height: 1080
    usage: [hw_texture, hw_composer]
  - id: 2
    direction: bidirectional
    format: implementation_defined
    width: 4032
    height: 3024
  - id: 3
    format: blob
    width: 4032
    height: 3024
steps:
  - repeat: 10
    outputs: [1, 2]
    settings:
      control.ae_target_fps_range: [15, 30]
    pause: 20ms
  - repeat: 1
    outputs: [3]
    reprocess: true
    settings:
      jpeg.quality: 95
    pause: 50ms
  - flush: true
`

func TestParseScenario(t *testing.T) {
	t.Parallel()

	s, err := ParseScenario([]byte(zslScenario))
	require.NoError(t, err)

	assert.Equal(t, "zsl-burst", s.Name)
	assert.Equal(t, 4, s.MaxInFlight)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, 20*time.Millisecond, s.Steps[0].Pause)
	assert.True(t, s.Steps[1].Reprocess)
	assert.True(t, s.Steps[2].Flush)

	byID, ordered, err := s.BuildStreams()
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, hal.UsageHWTexture|hal.UsageHWComposer, byID[1].Usage)
	assert.Equal(t, hal.StreamBidirectional, byID[2].Direction)
	assert.Equal(t, hal.StreamOutput, byID[3].Direction, "direction defaults to output")
	assert.Equal(t, hal.FormatBlob, byID[3].Format)
}

func TestScenarioValidation(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no streams":      "name: empty\n",
		"bad template":    "template: portrait\nstreams: [{id: 1, format: blob, width: 1, height: 1}]\n",
		"duplicate id":    "streams: [{id: 1, format: blob, width: 1, height: 1}, {id: 1, format: blob, width: 1, height: 1}]\n",
		"unknown format":  "streams: [{id: 1, format: heif, width: 1, height: 1}]\n",
		"unknown usage":   "streams: [{id: 1, format: blob, width: 1, height: 1, usage: [gpu]}]\n",
		"unknown output":  "streams: [{id: 1, format: blob, width: 1, height: 1}]\nsteps: [{repeat: 1, outputs: [2]}]\n",
		"zero repeat":     "streams: [{id: 1, format: blob, width: 1, height: 1}]\nsteps: [{outputs: [1]}]\n",
		"unknown setting": "streams: [{id: 1, format: blob, width: 1, height: 1}]\nsteps: [{repeat: 1, outputs: [1], settings: {warp: 9}}]\n",
		"not yaml":        "streams: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseScenario([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(zslScenario), 0o600))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "zsl", s.Template)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultScenario(t *testing.T) {
	t.Parallel()

	s := DefaultScenario(5)
	require.NoError(t, s.Validate())
	require.Len(t, s.Steps, 2)
	assert.Equal(t, 4, s.Steps[0].Repeat)
	assert.Equal(t, []int{1, 2}, s.Steps[1].Outputs)

	assert.Len(t, DefaultScenario(0).Steps, 1)
}
