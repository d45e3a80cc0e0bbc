package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "opendrive-visualizer",
		Short: "Vehicle telemetry relay for the OpenDRIVE visualization",
		Long: `Relays vehicle telemetry from a TCP producer to websocket observers.
While no producer is connected a synthetic ego vehicle drives in a circle.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the telemetry relay and web server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg, logger); err != nil {
				logger.Error("server error", zap.Error(err))
				return err
			}
			return nil
		},
	}
	addFlags(cmd.Flags())
	return cmd
}

// serve runs the relay and the HTTP server until ctx is done.
func serve(ctx context.Context, cfg *Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := newRelayMetrics(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	hub := newWSHub(logger.Named("ws"), metrics)
	snapshot := newVehicleSnapshot()
	feed := &gtfsRtFeed{
		snapshot: snapshot,
		origin:   geoOrigin{Lat: cfg.Geo.OriginLat, Lon: cfg.Geo.OriginLon},
		logger:   logger.Named("gtfsrt"),
	}

	relay := NewRelay(fanout{hub, snapshot}, newGenerator(cfg.Synthetic.Interval), logger.Named("relay"), metrics)
	listener := NewListener(cfg.TCP.Addr(), relay, logger.Named("listener"))
	if err := listener.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, routes{
		hub:       hub,
		feed:      feed,
		gatherer:  reg,
		staticDir: cfg.HTTP.StaticDir,
		logger:    logger.Named("http"),
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		var errs []error
		if err := listener.Stop(); err != nil {
			errs = append(errs, err)
		}
		hub.close()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		} else {
			logger.Info("http server shut down successfully")
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
