package tracestore

import "github.com/tphakala/camhal/internal/logger"

// getLogger returns the tracestore logger.
func getLogger() logger.Logger {
	return logger.Global().Module("tracestore")
}
