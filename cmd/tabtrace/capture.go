package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/tabtrace/internal/analysis"
	"github.com/dgnsrekt/tabtrace/internal/config"
)

func newCaptureCmd(cfg *config.Config) *cobra.Command {
	var launch bool
	var label string
	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Record a page load in a new tab and analyze it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, launch, func(ctx context.Context, a *app) error {
				result, err := a.svc.CaptureURL(ctx, args[0], label)
				if result.Trace.ID != "" {
					if perr := printJSON(result); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&launch, "launch", false, "start a local headless browser on the CDP port")
	cmd.Flags().StringVar(&label, "label", "", "label stored with the trace")
	return cmd
}

func newAttachCmd(cfg *config.Config) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Reload an open tab while tracing and analyze it",
		Long: `Attaches to the first open tab whose URL contains TABTRACE_TAB_URL_FILTER,
reloads it with the cache bypassed while tracing, and analyzes the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, false, func(ctx context.Context, a *app) error {
				result, err := a.svc.CaptureAttached(ctx, label)
				if result.Trace.ID != "" {
					if perr := printJSON(result); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "label stored with the trace")
	return cmd
}

func newPlanCmd(cfg *config.Config) *cobra.Command {
	var launch bool
	var concurrency int
	cmd := &cobra.Command{
		Use:   "plan <plan.yaml>",
		Short: "Capture every page of a YAML capture plan",
		Long: `Runs a capture plan:

  repeat: 3
  pages:
    - url: https://example.com/
      label: home

Each page is captured repeat times. One JSON document per capture is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := config.LoadPlan(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, launch, func(ctx context.Context, a *app) error {
				return runPlan(ctx, a.svc, plan, concurrency, os.Stdout)
			})
		},
	}
	cmd.Flags().BoolVar(&launch, "launch", false, "start a local headless browser on the CDP port")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "captures in flight at once")
	return cmd
}

type urlCapturer interface {
	CaptureURL(ctx context.Context, url, label string) (analysis.Analysis, error)
}

// runPlan keeps going after individual failures and reports how many
// captures failed at the end.
func runPlan(ctx context.Context, svc urlCapturer, plan *config.Plan, concurrency int, out io.Writer) error {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make(chan analysis.Analysis)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var failed int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			if r.Error != "" {
				failed++
			}
			if err := writeJSON(out, r); err != nil {
				slog.Error("print capture result failed", "error", err)
			}
		}
	}()

	for run := 1; run <= plan.Repeat; run++ {
		for _, page := range plan.Pages {
			g.Go(func() error {
				result, err := svc.CaptureURL(gctx, page.URL, page.Label)
				if err != nil {
					slog.Warn("plan capture failed", "url", page.URL, "label", page.Label, "run", run, "error", err)
					if result.Error == "" {
						result.Error = err.Error()
					}
					if result.Trace.URL == "" {
						result.Trace.URL = page.URL
					}
				}
				select {
				case results <- result:
				case <-gctx.Done():
					return gctx.Err()
				}
				return nil
			})
		}
	}
	err := g.Wait()
	close(results)
	<-done

	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d captures failed", failed, plan.Repeat*len(plan.Pages))
	}
	return nil
}

// withApp runs fn with a wired app and a context cancelled on SIGINT or
// SIGTERM.
func withApp(parent context.Context, cfg *config.Config, launch bool, fn func(context.Context, *app) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, launch)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
