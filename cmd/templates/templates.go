// Package templates prints the default request templates.
package templates

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/camhal/cmd/simulate"
	"github.com/tphakala/camhal/internal/conf"
	"github.com/tphakala/camhal/internal/hal"
	"github.com/tphakala/camhal/internal/simulator"
)

var allTemplates = []hal.TemplateType{
	hal.TemplatePreview,
	hal.TemplateStillCapture,
	hal.TemplateVideoRecord,
	hal.TemplateVideoSnapshot,
	hal.TemplateZeroShutterLag,
	hal.TemplateManual,
}

// Command creates a new command that prints default settings as YAML.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "templates [name...]",
		Short: "Print default request templates as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			types := allTemplates
			if len(args) > 0 {
				types = types[:0:0]
				for _, name := range args {
					t, err := hal.ParseTemplate(name)
					if err != nil {
						return err
					}
					types = append(types, t)
				}
			}

			out, err := Render(settings, types)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

// Render returns the named default settings of each template keyed by
// template name.
func Render(settings *conf.Settings, types []hal.TemplateType) ([]byte, error) {
	cfg := simulate.DeviceConfig(settings)
	registry := simulate.Registry(settings)
	camera, ok := registry.Camera(cfg.CameraID)
	if !ok {
		return nil, fmt.Errorf("camera %s is not advertised", cfg.CameraID)
	}

	dev, err := hal.New(hal.Deps{
		Channels: simulator.NewFactory(simulator.Options{}),
		Backend:  &simulator.Backend{},
		Sink:     discardSink{},
	}, cfg, hal.WithCamera(camera))
	if err != nil {
		return nil, err
	}
	defer func() { _ = dev.Close() }()

	doc := make(map[string]map[string]any, len(types))
	for _, t := range slices.Sorted(slices.Values(types)) {
		s, err := dev.DefaultSettings(t)
		if err != nil {
			return nil, err
		}
		doc[t.String()] = s.Named()
	}
	return yaml.Marshal(doc)
}

type discardSink struct{}

func (discardSink) NotifyShutter(uint32, int64)                   {}
func (discardSink) NotifyError(uint32, hal.ErrorCode, *hal.Stream) {}
func (discardSink) DeliverResult(hal.CaptureResult)                {}
