package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/api"
	"github.com/sells-group/odflow/internal/metrics"
	"github.com/sells-group/odflow/internal/store"
)

var servePort int

// runCollectorLimit bounds how many recent runs the gauges are computed from.
const runCollectorLimit = 500

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded runs, artifacts and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		handler, err := buildHandler(st)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildHandler wires the run API and a /metrics endpoint exposing gauges
// computed from the store.
func buildHandler(st store.Store) (http.Handler, error) {
	m := metrics.New()
	if err := m.Register(metrics.NewRunCollector(st, runCollectorLimit)); err != nil {
		return nil, eris.Wrap(err, "register run collector")
	}
	metricsHandler := promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})

	return api.New(st,
		api.WithMetrics(metricsHandler),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
	).Handler(), nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
