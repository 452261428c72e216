package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/camhal/internal/conf"
	"github.com/tphakala/camhal/internal/hal"
)

func TestRenderTemplates(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{Camera: conf.CameraSettings{Count: 1}}
	out, err := Render(settings, []hal.TemplateType{hal.TemplateStillCapture, hal.TemplatePreview})
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	require.Len(t, doc, 2)
	require.Contains(t, doc, "preview")
	require.Contains(t, doc, "still_capture")

	preview, err := hal.SettingsFromNamed(doc["preview"])
	require.NoError(t, err)
	fps, ok := preview.Int32s(hal.TagAeTargetFpsRange)
	require.True(t, ok)
	assert.Equal(t, []int32{15, 30}, fps)
}

func TestRenderSelectedCamera(t *testing.T) {
	t.Parallel()

	// The registry always advertises the selected camera
	settings := &conf.Settings{Camera: conf.CameraSettings{ID: 1, Count: 1}}
	_, err := Render(settings, []hal.TemplateType{hal.TemplatePreview})
	require.NoError(t, err)

	_, err = Render(settings, []hal.TemplateType{hal.TemplateType(99)})
	require.ErrorIs(t, err, hal.ErrInvalidTemplate)
}

func TestCommandRejectsUnknownTemplate(t *testing.T) {
	t.Parallel()

	cmd := Command(&conf.Settings{Camera: conf.CameraSettings{Count: 1}})
	cmd.SetArgs([]string{"portrait"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	require.ErrorIs(t, cmd.Execute(), hal.ErrInvalidTemplate)
}
