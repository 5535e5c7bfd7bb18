package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tabtrace/internal/api"
	"github.com/dgnsrekt/tabtrace/internal/config"
	"github.com/dgnsrekt/tabtrace/internal/netutil"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfg *config.Config) *cobra.Command {
	var launch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the trace store, trace-of-tab analysis and capture endpoints.
OpenAPI docs are at /docs, the event stream at /api/v1/events and
Prometheus metrics at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg, launch)
		},
	}
	cmd.Flags().BoolVar(&launch, "launch", false, "start a local headless browser on the CDP port")
	return cmd
}

func runServe(cfg *config.Config, launch bool) error {
	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortFallbackSpan)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		return err
	}

	a, err := newApp(context.Background(), cfg, launch)
	if err != nil {
		return err
	}
	defer a.close()

	h := api.NewServer(a.svc, api.Options{
		Broker:  a.broker,
		Metrics: a.metrics.Handler(),
	})
	// Cancelled before Shutdown so open event streams return.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	srv := &http.Server{
		Addr:              bindAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("tabtrace listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		slog.Error("tabtrace server failed", "error", err)
		return err
	}

	cancelStreams()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("tabtrace shutdown failed", "error", err)
		return err
	}
	slog.Info("tabtrace stopped", "sse_dropped", a.broker.Dropped())
	return nil
}
