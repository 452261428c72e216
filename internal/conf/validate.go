// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateCameraSettings(&settings.Camera)...)
	ve.Errors = append(ve.Errors, validateHALSettings(&settings.HAL)...)
	ve.Errors = append(ve.Errors, validateObservabilitySettings(&settings.Observability)...)
	ve.Errors = append(ve.Errors, validateTelemetrySettings(&settings.Telemetry)...)
	ve.Errors = append(ve.Errors, validateTraceSettings(&settings.Trace)...)
	ve.Errors = append(ve.Errors, validateSimulatorSettings(&settings.Simulator)...)

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateCameraSettings(c *CameraSettings) []string {
	var errs []string
	if c.Count < 1 {
		errs = append(errs, "camera.count must be at least 1")
	}
	if c.ID < 0 || c.ID >= max(c.Count, 1) {
		errs = append(errs, fmt.Sprintf("camera.id %d is out of range [0, %d)", c.ID, max(c.Count, 1)))
	}
	return errs
}

func validateHALSettings(h *HALSettings) []string {
	var errs []string
	if h.MaxInFlight < 1 {
		errs = append(errs, "hal.max_in_flight must be at least 1")
	}
	if h.FrameDuration <= 0 {
		errs = append(errs, "hal.frame_duration must be positive")
	}
	if h.FenceTimeout < 0 {
		errs = append(errs, "hal.fence_timeout cannot be negative")
	}
	if h.ZSLMaxStored < 0 {
		errs = append(errs, "hal.zsl_max_stored cannot be negative")
	}
	return errs
}

func validateObservabilitySettings(o *ObservabilitySettings) []string {
	if !o.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(o.Metrics.Listen); err != nil {
		return []string{fmt.Sprintf("observability.metrics.listen %q is not host:port: %v", o.Metrics.Listen, err)}
	}
	return nil
}

func validateTelemetrySettings(t *TelemetrySettings) []string {
	if t.Sentry.Enabled && t.Sentry.DSN == "" {
		return []string{"telemetry.sentry.dsn is required when sentry is enabled"}
	}
	return nil
}

func validateTraceSettings(t *TraceSettings) []string {
	if t.Enabled && t.Path == "" {
		return []string{"trace.path is required when trace is enabled"}
	}
	return nil
}

func validateSimulatorSettings(s *SimulatorSettings) []string {
	var errs []string
	if s.Frames < 0 {
		errs = append(errs, "simulator.frames cannot be negative")
	}
	if s.MetadataDropEvery < 0 {
		errs = append(errs, "simulator.metadata_drop_every cannot be negative")
	}
	if s.BufferLatency < 0 || s.MetadataLatency < 0 {
		errs = append(errs, "simulator latencies cannot be negative")
	}
	return errs
}
