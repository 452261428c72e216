package observability

import "github.com/tphakala/camhal/internal/logger"

// getLogger returns the observability logger.
func getLogger() logger.Logger {
	return logger.Global().Module("observability")
}
