// Package notify forwards trace-of-tab warnings to an ntfy-style HTTP
// endpoint.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/tabtrace/internal/traceoftab"
)

const defaultTimeout = 5 * time.Second

// Send posts message to endpoint as text/plain.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("notify: endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Reporter implements traceoftab.Reporter. Every warning is logged; when an
// endpoint is configured it is also posted from a background goroutine so
// the caller never waits on the network.
type Reporter struct {
	client    *http.Client
	endpoint  string
	timeout   time.Duration
	onFailure func()

	wg sync.WaitGroup
}

var _ traceoftab.Reporter = (*Reporter)(nil)

// Option configures a Reporter.
type Option func(*Reporter)

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) Option {
	return func(r *Reporter) { r.client = c }
}

// WithTimeout bounds each delivery attempt.
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithFailureHook is called once per failed delivery.
func WithFailureHook(fn func()) Option {
	return func(r *Reporter) { r.onFailure = fn }
}

// NewReporter returns a Reporter. An empty endpoint disables delivery.
func NewReporter(endpoint string, opts ...Option) *Reporter {
	r := &Reporter{endpoint: endpoint, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReportWarning logs msg and schedules delivery. It never blocks.
func (r *Reporter) ReportWarning(msg string) {
	slog.Warn("trace-of-tab warning", "message", msg)
	if r.endpoint == "" {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := Send(ctx, r.client, r.endpoint, msg); err != nil {
			slog.Debug("telemetry delivery failed", "endpoint", r.endpoint, "error", err)
			if r.onFailure != nil {
				r.onFailure()
			}
		}
	}()
}

// Wait blocks until every scheduled delivery has finished. Used on shutdown
// and in tests.
func (r *Reporter) Wait() {
	r.wg.Wait()
}
