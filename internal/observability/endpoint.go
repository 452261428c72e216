package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/camhal/internal/conf"
	"github.com/tphakala/camhal/internal/logger"
)

// ShutdownTimeout bounds graceful shutdown of the metrics server
const ShutdownTimeout = 5 * time.Second

// Endpoint serves the Prometheus and debug handlers.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	dumper        Dumper
	listener      net.Listener
}

// NewEndpoint creates the metrics endpoint. It fails when metrics are
// disabled in settings.
func NewEndpoint(settings *conf.Settings, metrics *Metrics, dumper Dumper) (*Endpoint, error) {
	if !settings.Observability.Metrics.Enabled {
		return nil, fmt.Errorf("metrics endpoint not enabled in settings")
	}

	return &Endpoint{
		listenAddress: settings.Observability.Metrics.Listen,
		metrics:       metrics,
		dumper:        dumper,
	}, nil
}

// Start binds the listener and serves until quitChan closes.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux, e.dumper)

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.listenAddress, err)
	}
	e.listener = ln

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wg.Go(func() {
		getLogger().Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			getLogger().Error("metrics HTTP server error", logger.Error(err))
		}
	})

	wg.Go(func() {
		e.gracefulShutdown(quitChan)
	})

	return nil
}

// Addr returns the bound address once Start succeeded
func (e *Endpoint) Addr() string {
	if e.listener == nil {
		return e.listenAddress
	}
	return e.listener.Addr().String()
}

func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	getLogger().Info("stopping metrics server")
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		getLogger().Error("metrics server shutdown error", logger.Error(err))
	}
}
