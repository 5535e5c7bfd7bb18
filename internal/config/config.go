package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for tabtrace.
type Config struct {
	// CDP connection settings
	CDPAddress   string
	CDPPort      int
	TabURLFilter string

	// HTTP API and logging
	BindAddr         string
	PortFallbackSpan int
	LogLevel         string
	LogFile          string

	// Storage settings
	DataDir       string
	ResultsDir    string
	BufferSize    int
	MaxFileSizeMB int
	CacheSize     int

	// Capture behavior
	CaptureTimeoutMS int
	SettleMS         int
	LaunchBrowser    bool
	ProfileDir       string

	// Warning telemetry
	NotifyURL       string
	NotifyTimeoutMS int
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		TabURLFilter:     getEnvOrDefault("TABTRACE_TAB_URL_FILTER", ""),
		BindAddr:         getEnvOrDefault("TABTRACE_BIND_ADDR", "127.0.0.1:8190"),
		PortFallbackSpan: getEnvIntOrDefault("TABTRACE_PORT_FALLBACK_SPAN", 10),
		LogLevel:         strings.ToLower(getEnvOrDefault("TABTRACE_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("TABTRACE_LOG_FILE", "logs/tabtrace.log"),
		DataDir:          getEnvOrDefault("TABTRACE_DATA_DIR", "./traces"),
		ResultsDir:       getEnvOrDefault("TABTRACE_RESULTS_DIR", "./results"),
		BufferSize:       getEnvIntOrDefault("TABTRACE_BUFFER_SIZE", 1000),
		MaxFileSizeMB:    getEnvIntOrDefault("TABTRACE_MAX_FILE_SIZE_MB", 50),
		CacheSize:        getEnvIntOrDefault("TABTRACE_CACHE_SIZE", 128),
		CaptureTimeoutMS: getEnvIntOrDefault("TABTRACE_CAPTURE_TIMEOUT_MS", 60000),
		SettleMS:         getEnvIntOrDefault("TABTRACE_SETTLE_MS", 3000),
		LaunchBrowser:    getEnvBoolOrDefault("TABTRACE_LAUNCH_BROWSER", false),
		ProfileDir:       getEnvOrDefault("TABTRACE_PROFILE_DIR", "./browser_profile"),
		NotifyURL:        getEnvOrDefault("TABTRACE_NOTIFY_URL", ""),
		NotifyTimeoutMS:  getEnvIntOrDefault("TABTRACE_NOTIFY_TIMEOUT_MS", 5000),
	}
	if cfg.CaptureTimeoutMS < 1000 {
		cfg.CaptureTimeoutMS = 1000
	}
	if cfg.SettleMS < 0 {
		cfg.SettleMS = 0
	}
	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("invalid CHROMIUM_CDP_PORT %d", cfg.CDPPort)
	}

	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// CaptureTimeout bounds one capture from connect to tracing complete.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutMS) * time.Millisecond
}

// Settle is how long to keep tracing after the load event.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.SettleMS) * time.Millisecond
}

// NotifyTimeout bounds one telemetry delivery.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutMS) * time.Millisecond
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
