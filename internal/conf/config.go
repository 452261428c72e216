// Package conf loads camhal settings from file, environment and flags.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/camhal/internal/logger"
)

// EnvPrefix is the prefix for environment overrides, e.g. CAMHAL_HAL_MAX_IN_FLIGHT.
const EnvPrefix = "CAMHAL"

// Settings is the root configuration structure
type Settings struct {
	Debug bool `mapstructure:"debug"`

	Camera        CameraSettings        `mapstructure:"camera"`
	HAL           HALSettings           `mapstructure:"hal"`
	Logging       logger.LoggingConfig  `mapstructure:"logging"`
	Observability ObservabilitySettings `mapstructure:"observability"`
	Telemetry     TelemetrySettings     `mapstructure:"telemetry"`
	Trace         TraceSettings         `mapstructure:"trace"`
	Simulator     SimulatorSettings     `mapstructure:"simulator"`
}

// CameraSettings selects the camera exposed by the session registry
type CameraSettings struct {
	ID    int `mapstructure:"id"`    // camera to open
	Count int `mapstructure:"count"` // number of cameras the registry advertises
}

// HALSettings tunes the capture request core
type HALSettings struct {
	MaxInFlight   int           `mapstructure:"max_in_flight"`  // admission cap before submit blocks
	FrameDuration time.Duration `mapstructure:"frame_duration"` // nominal interval for dropped-frame timestamps
	FenceTimeout  time.Duration `mapstructure:"fence_timeout"`  // 0 waits on acquire fences forever
	ZSLMaxStored  int           `mapstructure:"zsl_max_stored"` // stored ZSL frames before the oldest is evicted
}

// ObservabilitySettings contains the Prometheus endpoint settings
type ObservabilitySettings struct {
	Metrics MetricsSettings `mapstructure:"metrics"`
}

// MetricsSettings controls the HTTP metrics endpoint
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"` // host:port
}

// TelemetrySettings contains error telemetry settings
type TelemetrySettings struct {
	Sentry SentrySettings `mapstructure:"sentry"`
}

// SentrySettings configures Sentry error reporting
type SentrySettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// TraceSettings controls the SQLite capture trace
type TraceSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SimulatorSettings drives the simulated channels used by the CLI
type SimulatorSettings struct {
	Scenario          string        `mapstructure:"scenario"`            // optional scenario YAML
	Frames            int           `mapstructure:"frames"`              // requests to submit when no scenario is given
	MetadataDropEvery int           `mapstructure:"metadata_drop_every"` // drop every Nth metadata, 0 disables
	BufferLatency     time.Duration `mapstructure:"buffer_latency"`
	MetadataLatency   time.Duration `mapstructure:"metadata_latency"`
	Seed              int64         `mapstructure:"seed"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables.
// configFile may be empty, in which case the default search paths are used
// and a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("camhal")
	viper.SetConfigType("yaml")
	for _, path := range DefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// DefaultConfigPaths returns the directories searched for camhal.yaml
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "camhal"))
	}
	return append(paths, "/etc/camhal")
}

// GetSettings returns the settings loaded by the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SyncViper copies values that were changed through viper (flags, env)
// back into settings after flag parsing.
func SyncViper(settings *Settings) error {
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error syncing settings from viper: %w", err)
	}
	return ValidateSettings(settings)
}
