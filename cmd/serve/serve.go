// Package serve runs scenarios continuously behind the metrics endpoint.
package serve

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/camhal/cmd/simulate"
	"github.com/tphakala/camhal/internal/conf"
	"github.com/tphakala/camhal/internal/hal"
	"github.com/tphakala/camhal/internal/logger"
	"github.com/tphakala/camhal/internal/observability"
)

// Command creates a new command that repeats the configured scenario and
// serves Prometheus metrics and the live device dump until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scenarios continuously and serve metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.Observability.Metrics.Enabled = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings, interval)
		},
	}

	cmd.Flags().StringVar(&settings.Observability.Metrics.Listen, "listen", viper.GetString("observability.metrics.listen"), "Listen address of the metrics endpoint")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Pause between scenario runs")
	if err := viper.BindPFlag("observability.metrics.listen", cmd.Flags().Lookup("listen")); err != nil {
		panic(fmt.Sprintf("error binding flag listen: %v", err))
	}

	return cmd
}

// liveDevice dumps whichever device is currently running
type liveDevice struct {
	dev atomic.Pointer[hal.Device]
}

func (l *liveDevice) Dump(w io.Writer) {
	d := l.dev.Load()
	if d == nil {
		_, _ = fmt.Fprintln(w, "no active device")
		return
	}
	d.Dump(w)
}

func serve(ctx context.Context, settings *conf.Settings, interval time.Duration) error {
	log := logger.Global().Module("cmd")

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	live := &liveDevice{}
	endpoint, err := observability.NewEndpoint(settings, metrics, live)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	quit := make(chan struct{})
	if err := endpoint.Start(&wg, quit); err != nil {
		return err
	}
	defer func() {
		close(quit)
		wg.Wait()
	}()
	log.Info("serving", logger.String("address", endpoint.Addr()))

	opts := simulate.Options{Metrics: metrics, Hook: func(d *hal.Device) { live.dev.Store(d) }}
	for runs := 1; ; runs++ {
		summary, err := simulate.Execute(ctx, settings, opts)
		live.dev.Store(nil)
		if ctx.Err() != nil {
			log.Info("serve stopped", logger.Int("runs", runs))
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("run complete",
			logger.Int("run", runs),
			logger.String("run_id", summary.RunID.String()),
			logger.Int("shutters", summary.Shutters),
			logger.Int("request_errors", summary.RequestErrors))

		select {
		case <-ctx.Done():
			log.Info("serve stopped", logger.Int("runs", runs))
			return nil
		case <-time.After(interval):
		}
	}
}
