package simulator

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/camhal/internal/errors"
	"github.com/tphakala/camhal/internal/hal"
)

// Scenario is a scripted capture session loaded from YAML
type Scenario struct {
	Name        string       `yaml:"name"`
	Camera      string       `yaml:"camera"`
	MaxInFlight int          `yaml:"max_in_flight"`
	Template    string       `yaml:"template"`
	Streams     []StreamSpec `yaml:"streams"`
	Steps       []Step       `yaml:"steps"`
}

// StreamSpec declares one stream of the scenario configuration
type StreamSpec struct {
	ID        int      `yaml:"id"`
	Direction string   `yaml:"direction"`
	Format    string   `yaml:"format"`
	Width     uint32   `yaml:"width"`
	Height    uint32   `yaml:"height"`
	Usage     []string `yaml:"usage"`
}

// Step is a run of identical requests, or a flush.
//
// The first request of a step carries the template settings merged with
// Settings; the remaining requests repeat them. A reprocess step uses the
// most recently returned buffer of the bidirectional stream as input.
type Step struct {
	Repeat    int            `yaml:"repeat"`
	Outputs   []int          `yaml:"outputs"`
	Reprocess bool           `yaml:"reprocess"`
	Settings  map[string]any `yaml:"settings"`
	Flush     bool           `yaml:"flush"`
	Pause     time.Duration  `yaml:"pause"`
}

var directions = map[string]hal.StreamDirection{
	"output":        hal.StreamOutput,
	"input":         hal.StreamInput,
	"bidirectional": hal.StreamBidirectional,
}

var formats = map[string]hal.PixelFormat{
	"implementation_defined": hal.FormatImplementationDefined,
	"ycbcr_420_888":          hal.FormatYCbCr420888,
	"blob":                   hal.FormatBlob,
	"raw16":                  hal.FormatRaw16,
	"raw_opaque":             hal.FormatRawOpaque,
}

var usages = map[string]hal.UsageFlags{
	"hw_texture":    hal.UsageHWTexture,
	"hw_composer":   hal.UsageHWComposer,
	"video_encoder": hal.UsageVideoEncoder,
}

// LoadScenario reads and validates a scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("simulator").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, scenarioError("decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// DefaultScenario streams preview frames and ends with one still capture
func DefaultScenario(frames int) *Scenario {
	if frames < 1 {
		frames = 1
	}
	s := &Scenario{
		Name:     "preview-and-still",
		Camera:   "0",
		Template: "preview",
		Streams: []StreamSpec{
			{ID: 1, Direction: "output", Format: "implementation_defined", Width: 1920, Height: 1080, Usage: []string{"hw_texture"}},
			{ID: 2, Direction: "output", Format: "blob", Width: 4032, Height: 3024},
		},
	}
	if frames > 1 {
		s.Steps = append(s.Steps, Step{Repeat: frames - 1, Outputs: []int{1}})
	}
	s.Steps = append(s.Steps, Step{
		Repeat:   1,
		Outputs:  []int{1, 2},
		Settings: map[string]any{"jpeg.quality": 95},
	})
	return s
}

// Validate checks stream declarations and step references
func (s *Scenario) Validate() error {
	if len(s.Streams) == 0 {
		return scenarioError("scenario %q declares no streams", s.Name)
	}
	if s.MaxInFlight < 0 {
		return scenarioError("scenario %q: max_in_flight cannot be negative", s.Name)
	}
	if s.Template != "" {
		if _, err := hal.ParseTemplate(s.Template); err != nil {
			return scenarioError("scenario %q: %w", s.Name, err)
		}
	}

	ids := make(map[int]StreamSpec, len(s.Streams))
	for _, st := range s.Streams {
		if _, dup := ids[st.ID]; dup {
			return scenarioError("scenario %q: duplicate stream id %d", s.Name, st.ID)
		}
		if _, err := st.stream(); err != nil {
			return scenarioError("scenario %q: %w", s.Name, err)
		}
		ids[st.ID] = st
	}

	for i, step := range s.Steps {
		if step.Flush {
			continue
		}
		if step.Repeat < 1 {
			return scenarioError("scenario %q step %d: repeat must be at least 1", s.Name, i)
		}
		if len(step.Outputs) == 0 {
			return scenarioError("scenario %q step %d: no outputs", s.Name, i)
		}
		for _, id := range step.Outputs {
			if _, ok := ids[id]; !ok {
				return scenarioError("scenario %q step %d: unknown stream %d", s.Name, i, id)
			}
		}
		if _, err := hal.SettingsFromNamed(step.Settings); err != nil {
			return scenarioError("scenario %q step %d: %w", s.Name, i, err)
		}
	}
	return nil
}

// BuildStreams creates the hal streams of the scenario, keyed by id and in
// declaration order
func (s *Scenario) BuildStreams() (map[int]*hal.Stream, []*hal.Stream, error) {
	byID := make(map[int]*hal.Stream, len(s.Streams))
	ordered := make([]*hal.Stream, 0, len(s.Streams))
	for _, st := range s.Streams {
		stream, err := st.stream()
		if err != nil {
			return nil, nil, err
		}
		byID[st.ID] = stream
		ordered = append(ordered, stream)
	}
	return byID, ordered, nil
}

func (st StreamSpec) stream() (*hal.Stream, error) {
	dir, ok := directions[strings.ToLower(st.Direction)]
	if st.Direction == "" {
		dir, ok = hal.StreamOutput, true
	}
	if !ok {
		return nil, scenarioError("stream %d: unknown direction %q", st.ID, st.Direction)
	}
	format, ok := formats[strings.ToLower(st.Format)]
	if !ok {
		return nil, scenarioError("stream %d: unknown format %q", st.ID, st.Format)
	}
	var usage hal.UsageFlags
	for _, u := range st.Usage {
		flag, ok := usages[strings.ToLower(u)]
		if !ok {
			return nil, scenarioError("stream %d: unknown usage %q", st.ID, u)
		}
		usage |= flag
	}
	return &hal.Stream{
		ID:        st.ID,
		Direction: dir,
		Format:    format,
		Width:     st.Width,
		Height:    st.Height,
		Usage:     usage,
	}, nil
}

func scenarioError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("simulator").
		Category(errors.CategoryScenario).
		Build()
}
