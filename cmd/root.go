package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/camhal/cmd/serve"
	"github.com/tphakala/camhal/cmd/simulate"
	"github.com/tphakala/camhal/cmd/templates"
	"github.com/tphakala/camhal/cmd/trace"
	"github.com/tphakala/camhal/internal/buildinfo"
	"github.com/tphakala/camhal/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "camhal",
		Short:         "Camera HAL capture pipeline simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		simulate.Command(settings),
		serve.Command(settings),
		templates.Command(settings),
		trace.Command(settings),
		versionCommand(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		// Command-line values take precedence over the config file
		return conf.SyncViper(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	flags.IntVar(&settings.Camera.ID, "camera", viper.GetInt("camera.id"), "Camera to open")
	flags.IntVar(&settings.HAL.MaxInFlight, "max-in-flight", viper.GetInt("hal.max_in_flight"), "Frames in flight before submission blocks")
	flags.DurationVar(&settings.HAL.FrameDuration, "frame-duration", viper.GetDuration("hal.frame_duration"), "Nominal frame interval")
	flags.BoolVar(&settings.Trace.Enabled, "trace", viper.GetBool("trace.enabled"), "Record framework callbacks to the trace database")
	flags.StringVar(&settings.Trace.Path, "trace-path", viper.GetString("trace.path"), "Path of the trace database")

	bindings := map[string]string{
		"debug":          "debug",
		"camera":         "camera.id",
		"max-in-flight":  "hal.max_in_flight",
		"frame-duration": "hal.frame_duration",
		"trace":          "trace.enabled",
		"trace-path":     "trace.path",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Current())
			return err
		},
	}
}
