package simulator

import "github.com/tphakala/camhal/internal/logger"

func getLogger() logger.Logger {
	return logger.Global().Module("simulator")
}
