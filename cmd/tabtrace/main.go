package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/tabtrace/internal/config"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}
	var logLevel string

	root := &cobra.Command{
		Use:   "tabtrace",
		Short: "Extract per-tab page load markers from Chrome traces",
		Long: `tabtrace finds the navigation start, paint and load markers of one tab in a
Chrome trace and scopes the trace to that tab's renderer main thread.

Traces can be analyzed from files, recorded from a running browser, or
managed through the HTTP API started by "tabtrace serve".`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				loaded.LogLevel = logLevel
			}
			// serve keeps the controller layout of logging to stdout; the
			// other commands print JSON there.
			console := io.Writer(os.Stderr)
			if cmd.Name() == "serve" {
				console = os.Stdout
			}
			if err := setupLogger(loaded, console); err != nil {
				return fmt.Errorf("logger setup failed: %w", err)
			}
			*cfg = *loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override TABTRACE_LOG_LEVEL (debug, info, warn, error)")
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("tabtrace version %s\n", version))

	root.AddCommand(
		newAnalyzeCmd(cfg),
		newCaptureCmd(cfg),
		newAttachCmd(cfg),
		newPlanCmd(cfg),
		newServeCmd(cfg),
	)
	return root
}

func setupLogger(cfg *config.Config, console io.Writer) error {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(console, logWriter), &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(h))
	return nil
}
