package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"CHROMIUM_CDP_ADDRESS", "CHROMIUM_CDP_PORT", "TABTRACE_SETTLE_MS", "TABTRACE_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.GetCDPURL(), "http://127.0.0.1:9222"; got != want {
		t.Fatalf("GetCDPURL() = %q; want %q", got, want)
	}
	if got, want := cfg.Settle(), 3*time.Second; got != want {
		t.Fatalf("Settle() = %v; want %v", got, want)
	}
	if got, want := cfg.SlogLevel(), slog.LevelInfo; got != want {
		t.Fatalf("SlogLevel() = %v; want %v", got, want)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("TABTRACE_CAPTURE_TIMEOUT_MS", "10")
	t.Setenv("TABTRACE_LOG_LEVEL", "DEBUG")
	t.Setenv("TABTRACE_LAUNCH_BROWSER", "true")
	t.Setenv("TABTRACE_CACHE_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPPort != 9333 {
		t.Fatalf("CDPPort = %d; want 9333", cfg.CDPPort)
	}
	if got, want := cfg.CaptureTimeout(), time.Second; got != want {
		t.Fatalf("CaptureTimeout() = %v; want %v (clamped)", got, want)
	}
	if got, want := cfg.SlogLevel(), slog.LevelDebug; got != want {
		t.Fatalf("SlogLevel() = %v; want %v", got, want)
	}
	if !cfg.LaunchBrowser {
		t.Fatalf("LaunchBrowser = false; want true")
	}
	if cfg.CacheSize != 128 {
		t.Fatalf("CacheSize = %d; want default 128", cfg.CacheSize)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() = nil error; want error for out of range port")
	}
}

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	return path
}

func TestLoadPlan(t *testing.T) {
	path := writePlan(t, `
pages:
  - url: https://example.com/
    label: home
  - url: https://example.com/docs
`)
	plan, err := LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan() error = %v", err)
	}
	if plan.Repeat != 1 {
		t.Fatalf("Repeat = %d; want 1", plan.Repeat)
	}
	if len(plan.Pages) != 2 || plan.Pages[0].Label != "home" {
		t.Fatalf("Pages = %+v; want two pages, first labeled home", plan.Pages)
	}
}

func TestLoadPlanErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "no_pages", body: "pages: []\n", want: "at least one page"},
		{name: "missing_url", body: "pages:\n  - label: x\n", want: "pages[0] missing url"},
		{name: "relative_url", body: "pages:\n  - url: /index.html\n", want: "not an absolute"},
		{name: "negative_repeat", body: "repeat: -1\npages:\n  - url: https://example.com/\n", want: "repeat"},
		{name: "bad_yaml", body: "pages: [\n", want: "capture plan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPlan(writePlan(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadPlan() error = %v; want containing %q", err, tt.want)
			}
		})
	}

	if _, err := LoadPlan(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("LoadPlan(missing) = nil error; want error")
	}
}
