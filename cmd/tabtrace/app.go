package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/dgnsrekt/tabtrace/internal/analysis"
	"github.com/dgnsrekt/tabtrace/internal/browser"
	"github.com/dgnsrekt/tabtrace/internal/capture"
	"github.com/dgnsrekt/tabtrace/internal/config"
	"github.com/dgnsrekt/tabtrace/internal/metrics"
	"github.com/dgnsrekt/tabtrace/internal/notify"
	"github.com/dgnsrekt/tabtrace/internal/rawcdp"
	"github.com/dgnsrekt/tabtrace/internal/relay"
	"github.com/dgnsrekt/tabtrace/internal/storage"
	"github.com/dgnsrekt/tabtrace/internal/tabfinder"
	"github.com/dgnsrekt/tabtrace/internal/traceoftab"
)

// app holds the long-lived components shared by every subcommand.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	broker   *relay.Broker
	reporter *notify.Reporter
	results  *storage.JSONLWriter
	launcher *browser.Launcher
	svc      *analysis.Service
}

func newReporter(cfg *config.Config, m *metrics.Metrics) *notify.Reporter {
	return notify.NewReporter(cfg.NotifyURL,
		notify.WithTimeout(cfg.NotifyTimeout()),
		notify.WithFailureHook(m.TelemetryFailures.Inc),
	)
}

// newApp wires storage, analysis and capture. When launch is set a local
// browser is started on the configured CDP port first.
func newApp(ctx context.Context, cfg *config.Config, launch bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.New(),
		broker:  relay.NewBroker(),
	}
	a.reporter = newReporter(cfg, a.metrics)

	store, err := storage.NewTraceStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open trace store: %w", err)
	}

	if launch || cfg.LaunchBrowser {
		a.launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.ProfileDir,
			Headless:   true,
		})
		if err := a.launcher.Launch(ctx); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	a.results = storage.NewJSONLWriter(cfg.ResultsDir, "trace_of_tab", cfg.BufferSize, cfg.MaxFileSizeMB)

	recorder := capture.NewRecorder(capture.Config{
		CDPURL:  cfg.GetCDPURL(),
		Timeout: cfg.CaptureTimeout(),
		Settle:  cfg.Settle(),
	})
	attacher := rawcdp.NewClient(rawcdp.Config{
		HTTPBase:     cfg.GetCDPURL(),
		TabURLFilter: cfg.TabURLFilter,
		Timeout:      cfg.CaptureTimeout(),
		Settle:       cfg.Settle(),
	})

	a.svc, err = analysis.NewService(analysis.Options{
		Store:     store,
		Computer:  traceoftab.NewComputer(tabfinder.Finder{}, a.reporter),
		CacheSize: cfg.CacheSize,
		Broker:    a.broker,
		Results:   a.results,
		Metrics:   a.metrics,
		Navigator: recorder,
		Attacher:  attacher,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	slog.Info("tabtrace config loaded",
		"cdp_url", cfg.GetCDPURL(),
		"data_dir", cfg.DataDir,
		"results_dir", cfg.ResultsDir,
		"tab_url_filter", cfg.TabURLFilter,
		"capture_timeout_ms", cfg.CaptureTimeoutMS,
		"settle_ms", cfg.SettleMS,
		"notify", cfg.NotifyURL != "",
		"launched_browser", a.launcher != nil,
	)
	return a, nil
}

// close flushes pending telemetry and results and stops a launched browser.
func (a *app) close() {
	a.reporter.Wait()
	if a.results != nil {
		if err := a.results.Close(); err != nil {
			slog.Error("result log close failed", "error", err)
		}
	}
	if a.launcher != nil {
		a.launcher.Stop()
	}
}

func writeJSON(w io.Writer, v any) error {
	if err := jsonv2.MarshalWrite(w, v, jsontext.WithIndent("  ")); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func printJSON(v any) error {
	return writeJSON(os.Stdout, v)
}
