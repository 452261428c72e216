// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with the hal and simulator packages.
const (
	DefaultMaxInFlight   = 5
	DefaultFrameDuration = 33 * time.Millisecond
	DefaultMetricsListen = "localhost:8090"
	DefaultTracePath     = "camhal-trace.db"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("camera.id", 0)
	viper.SetDefault("camera.count", 1)

	viper.SetDefault("hal.max_in_flight", DefaultMaxInFlight)
	viper.SetDefault("hal.frame_duration", DefaultFrameDuration)
	viper.SetDefault("hal.fence_timeout", time.Duration(0))
	viper.SetDefault("hal.zsl_max_stored", 8)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/camhal.log")
	viper.SetDefault("logging.file_output.level", "debug")

	viper.SetDefault("observability.metrics.enabled", false)
	viper.SetDefault("observability.metrics.listen", DefaultMetricsListen)

	viper.SetDefault("telemetry.sentry.enabled", false)
	viper.SetDefault("telemetry.sentry.dsn", "")
	viper.SetDefault("telemetry.sentry.environment", "development")

	viper.SetDefault("trace.enabled", false)
	viper.SetDefault("trace.path", DefaultTracePath)

	viper.SetDefault("simulator.scenario", "")
	viper.SetDefault("simulator.frames", 30)
	viper.SetDefault("simulator.metadata_drop_every", 0)
	viper.SetDefault("simulator.buffer_latency", 2*time.Millisecond)
	viper.SetDefault("simulator.metadata_latency", 3*time.Millisecond)
	viper.SetDefault("simulator.seed", 1)
}
