// Package simulate runs a capture scenario against simulated channels.
package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/camhal/internal/conf"
	"github.com/tphakala/camhal/internal/hal"
	"github.com/tphakala/camhal/internal/logger"
	"github.com/tphakala/camhal/internal/observability"
	"github.com/tphakala/camhal/internal/simulator"
	"github.com/tphakala/camhal/internal/tracestore"
)

// Command creates a new command that runs one scenario and prints its summary.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate [scenario.yaml]",
		Short: "Run a capture scenario against simulated channels",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				settings.Simulator.Scenario = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := Execute(ctx, settings, Options{})
			if err != nil {
				return err
			}
			PrintSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		panic(err)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Simulator.Frames, "frames", viper.GetInt("simulator.frames"), "Requests to submit when no scenario file is given")
	cmd.Flags().IntVar(&settings.Simulator.MetadataDropEvery, "drop-every", viper.GetInt("simulator.metadata_drop_every"), "Drop every Nth metadata result, 0 disables")
	cmd.Flags().Int64Var(&settings.Simulator.Seed, "seed", viper.GetInt64("simulator.seed"), "Seed for completion latency jitter")

	for flag, key := range map[string]string{
		"frames":     "simulator.frames",
		"drop-every": "simulator.metadata_drop_every",
		"seed":       "simulator.seed",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Options holds the optional collaborators of Execute
type Options struct {
	Metrics *observability.Metrics
	Hook    func(*hal.Device)
}

// Execute runs the configured scenario once. When tracing is enabled every
// framework callback of the run is recorded in the trace database.
func Execute(ctx context.Context, settings *conf.Settings, opts Options) (*simulator.Summary, error) {
	sc, err := loadScenario(settings)
	if err != nil {
		return nil, err
	}

	log := logger.Global().Module("cmd")
	cfg := DeviceConfig(settings)
	runID := uuid.New()
	runnerOpts := []simulator.RunnerOption{
		simulator.WithDeviceConfig(cfg),
		simulator.WithRegistry(Registry(settings)),
		simulator.WithRunID(runID),
		simulator.WithDeviceOptions(hal.WithLogger(logger.Global().Module("hal").With(logger.String("camera", cfg.CameraID)))),
	}
	if opts.Metrics != nil {
		runnerOpts = append(runnerOpts, simulator.WithDeviceOptions(hal.WithMetrics(opts.Metrics.Camera)))
	}
	if opts.Hook != nil {
		runnerOpts = append(runnerOpts, simulator.WithDeviceHook(opts.Hook))
	}

	var (
		store    *tracestore.Store
		run      *tracestore.Run
		recorder *tracestore.Recorder
	)
	if settings.Trace.Enabled {
		store, err = tracestore.Open(settings.Trace.Path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()

		camera := cfg.CameraID
		if sc.Camera != "" {
			camera = sc.Camera
		}
		if run, err = store.BeginRun(runID.String(), sc.Name, camera); err != nil {
			return nil, err
		}
		runnerOpts = append(runnerOpts, simulator.WithSinkDecorator(func(next hal.ResultSink) hal.ResultSink {
			recorder = tracestore.NewRecorder(store, run, next)
			return recorder
		}))
	}

	factory := simulator.NewFactory(simulator.OptionsFromSettings(settings))
	summary, runErr := simulator.NewRunner(sc, factory, runnerOpts...).Run(ctx)

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			log.Warn("trace incomplete", logger.String("run_id", run.ID), logger.Error(err))
		}
	}
	if run != nil {
		if summary != nil {
			run.Submitted = summary.Submitted
			run.Shutters = summary.Shutters
			run.Results = summary.Results
			run.BufferErrors = summary.BufferErrors
			run.RequestErrors = summary.RequestErrors
		}
		if err := store.FinishRun(run); err != nil {
			log.Warn("failed to finish trace run", logger.String("run_id", run.ID), logger.Error(err))
		}
	}
	return summary, runErr
}

func loadScenario(settings *conf.Settings) (*simulator.Scenario, error) {
	if path := settings.Simulator.Scenario; path != "" {
		return simulator.LoadScenario(path)
	}
	return simulator.DefaultScenario(settings.Simulator.Frames), nil
}

// DeviceConfig maps settings to the device tunables
func DeviceConfig(settings *conf.Settings) hal.Config {
	return hal.Config{
		CameraID:      strconv.Itoa(settings.Camera.ID),
		MaxInFlight:   settings.HAL.MaxInFlight,
		FrameDuration: settings.HAL.FrameDuration,
		FenceTimeout:  settings.HAL.FenceTimeout,
		ZSLMaxStored:  settings.HAL.ZSLMaxStored,
	}
}

// Registry returns a session registry advertising settings.Camera.Count
// cameras. Even ids face back.
func Registry(settings *conf.Settings) *hal.SessionRegistry {
	count := max(settings.Camera.Count, settings.Camera.ID+1)
	cameras := make([]hal.CameraInfo, 0, count)
	for i := range count {
		facing := "back"
		if i%2 == 1 {
			facing = "front"
		}
		cameras = append(cameras, hal.CameraInfo{
			ID:          strconv.Itoa(i),
			Facing:      facing,
			Orientation: 90,
			MaxFps:      30,
			Width:       4032,
			Height:      3024,
		})
	}
	return hal.NewSessionRegistry(cameras...)
}

// PrintSummary writes a human-readable run summary
func PrintSummary(w io.Writer, s *simulator.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k string, v any) { _, _ = fmt.Fprintf(tw, "%s\t%v\n", k, v) }

	row("run", s.RunID)
	row("scenario", s.Scenario)
	row("duration", s.Duration.Round(time.Millisecond))
	row("submitted", s.Submitted)
	row("rejected", s.Rejected)
	row("skipped", s.Skipped)
	row("flushes", s.Flushes)
	row("shutters", s.Shutters)
	row("results", s.Results)
	row("buffers returned", s.BuffersReturned)
	row("buffer errors", s.BufferErrors)
	row("request errors", s.RequestErrors)
	row("metadata dropped", s.Pipeline.MetadataDropped)
	row("jpeg encoded", s.Pipeline.JpegEncoded)
	row("reprocessed", s.Pipeline.Reprocessed)
	row("tokens outstanding", s.Pipeline.TokensOutstanding())
	row("out-of-order shutters", s.OutOfOrderShutters)
	row("duplicate buffers", s.DuplicateBuffers)
	_ = tw.Flush()
}
