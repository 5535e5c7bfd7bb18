package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tabtrace/internal/analysis"
	"github.com/dgnsrekt/tabtrace/internal/apperr"
	"github.com/dgnsrekt/tabtrace/internal/config"
	"github.com/dgnsrekt/tabtrace/internal/metrics"
	"github.com/dgnsrekt/tabtrace/internal/tabfinder"
	"github.com/dgnsrekt/tabtrace/internal/trace"
	"github.com/dgnsrekt/tabtrace/internal/traceoftab"
)

type analyzeOptions struct {
	frameID string
	pid     int
	tid     int
	events  bool
	store   bool
	label   string
}

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <trace.json>",
		Short: "Print the trace of tab of a trace file",
		Long: `Reads a Chrome trace (array form or {"traceEvents": [...]}) and prints the
tab's markers and timings as JSON.

By default the traced tab is found from TracingStartedInBrowser and
related markers. Pin it instead with --frame, --pid and --tid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cfg, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.frameID, "frame", "", "frame id of the tab")
	cmd.Flags().IntVar(&opts.pid, "pid", 0, "renderer process id (with --frame)")
	cmd.Flags().IntVar(&opts.tid, "tid", 0, "renderer main thread id (with --frame)")
	cmd.Flags().BoolVar(&opts.events, "events", false, "include main thread event names")
	cmd.Flags().BoolVar(&opts.store, "store", false, "also import the trace into the data directory")
	cmd.Flags().StringVar(&opts.label, "label", "", "label stored with --store")
	cmd.MarkFlagsRequiredTogether("frame", "pid", "tid")
	return cmd
}

func (o *analyzeOptions) resolver() traceoftab.FrameResolver {
	if o.frameID != "" {
		return tabfinder.Pinned(o.pid, o.tid, o.frameID)
	}
	return tabfinder.Finder{}
}

func runAnalyze(ctx context.Context, cfg *config.Config, path string, opts *analyzeOptions) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read trace: %w", err)
	}

	reporter := newReporter(cfg, metrics.New())
	defer reporter.Wait()

	if opts.store {
		if err := importFile(ctx, cfg, raw, opts.label); err != nil {
			return err
		}
	}

	tr, err := trace.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	tot, err := traceoftab.NewComputer(opts.resolver(), reporter).Compute(tr)
	if err != nil {
		var coded *apperr.CodedError
		if errors.As(err, &coded) {
			slog.Error("trace-of-tab failed", "path", path, "code", coded.Code, "error", coded.Message)
		}
		return err
	}
	return printJSON(tot.Summary(opts.events))
}

// importFile stores raw through the analysis service so it shows up in the
// API.
func importFile(ctx context.Context, cfg *config.Config, raw []byte, label string) error {
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	meta, err := a.svc.ImportTrace(ctx, raw, analysis.ImportRequest{Source: analysis.SourceFile, Label: label})
	if err != nil {
		return err
	}
	slog.Info("trace stored", "id", meta.ID, "events", meta.EventCount)
	return nil
}
