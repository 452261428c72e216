package hal

import "github.com/tphakala/camhal/internal/logger"

// getLogger returns the hal logger. Devices derive a camera-scoped child from it.
func getLogger() logger.Logger {
	return logger.Global().Module("hal")
}
