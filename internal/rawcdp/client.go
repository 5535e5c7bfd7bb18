// Package rawcdp records a trace of a tab that is already open, by
// attaching to it over a raw browser websocket and reloading it.
package rawcdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/cdproto/tracing"
	jsonv2 "github.com/go-json-experiment/json"

	"github.com/dgnsrekt/tabtrace/internal/capture"
)

// ErrNoMatchingTab is returned when no page target matches the URL filter.
var ErrNoMatchingTab = errors.New("rawcdp: no page target matches the tab url filter")

// Config controls a Client.
type Config struct {
	// HTTPBase is the browser's debugging endpoint, e.g. http://127.0.0.1:9222.
	HTTPBase     string
	TabURLFilter string
	Timeout      time.Duration
	Settle       time.Duration
	Categories   []string
}

// Client captures traces of existing tabs.
type Client struct {
	cfg Config
}

// NewClient returns a Client with defaults filled in.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = capture.Categories
	}
	return &Client{cfg: cfg}
}

// CaptureAttached attaches to the first page whose URL contains the filter,
// reloads it with tracing on and returns the recording.
func (c *Client) CaptureAttached(ctx context.Context) (*capture.Result, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cn := newConn(c.cfg.HTTPBase)
	defer cn.close()

	targets, err := cn.listTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("rawcdp: list targets: %w", err)
	}
	tab := pickTab(targets, c.cfg.TabURLFilter)
	if tab == nil {
		return nil, fmt.Errorf("%w (filter %q, %d targets)", ErrNoMatchingTab, c.cfg.TabURLFilter, len(targets))
	}
	slog.Info("Attaching to tab for trace capture", "target_id", tab.TargetID, "url", tab.URL)

	if err := cn.connect(ctx); err != nil {
		return nil, err
	}
	sessionID, err := cn.attachToTarget(ctx, tab.TargetID)
	if err != nil {
		return nil, err
	}
	defer func() {
		detachCtx, detachCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer detachCancel()
		if err := cn.detachFromTarget(detachCtx, sessionID); err != nil {
			slog.Debug("rawcdp detach failed", "session_id", sessionID, "error", err)
		}
	}()

	coll := capture.NewCollector()
	loaded := make(chan struct{}, 1)

	unregister := []func(){
		cn.onEvent(cdproto.EventTracingDataCollected, func(sid string, params json.RawMessage) {
			if sid != sessionID {
				return
			}
			var ev tracing.EventDataCollected
			if err := jsonv2.Unmarshal(params, &ev); err != nil {
				slog.Debug("rawcdp: undecodable dataCollected", "error", err)
				return
			}
			coll.Add(ev.Value)
		}),
		cn.onEvent(cdproto.EventTracingTracingComplete, func(sid string, params json.RawMessage) {
			if sid != sessionID {
				return
			}
			var ev tracing.EventTracingComplete
			if err := jsonv2.Unmarshal(params, &ev); err != nil {
				slog.Debug("rawcdp: undecodable tracingComplete", "error", err)
			}
			coll.Complete(ev.DataLossOccurred)
		}),
		cn.onEvent(cdproto.EventPageLoadEventFired, func(sid string, _ json.RawMessage) {
			if sid != sessionID {
				return
			}
			select {
			case loaded <- struct{}{}:
			default:
			}
		}),
	}
	defer func() {
		for _, fn := range unregister {
			fn()
		}
	}()

	if _, err := cn.call(ctx, sessionID, page.CommandEnable, nil); err != nil {
		return nil, err
	}
	start := tracing.Start().
		WithTraceConfig(&tracing.TraceConfig{
			RecordMode:         tracing.RecordModeRecordUntilFull,
			IncludedCategories: c.cfg.Categories,
		}).
		WithTransferMode(tracing.TransferModeReportEvents)
	if _, err := cn.call(ctx, sessionID, tracing.CommandStart, start); err != nil {
		return nil, err
	}
	if _, err := cn.call(ctx, sessionID, page.CommandReload, &page.ReloadParams{IgnoreCache: true}); err != nil {
		return nil, err
	}

	select {
	case <-loaded:
	case <-ctx.Done():
		return nil, fmt.Errorf("rawcdp: waiting for load event: %w", ctx.Err())
	}

	if c.cfg.Settle > 0 {
		select {
		case <-time.After(c.cfg.Settle):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if _, err := cn.call(ctx, sessionID, tracing.CommandEnd, nil); err != nil {
		return nil, err
	}
	if err := coll.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := coll.Result(tab.URL)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(started)
	slog.Info("Attached trace captured", "target_id", tab.TargetID, "events", len(res.Trace.Events),
		"chunks", res.Chunks, "duration", res.Duration)
	return res, nil
}

// pickTab returns the first page target whose URL contains filter, ignoring
// case. An empty filter matches any page.
func pickTab(targets []*target.Info, filter string) *target.Info {
	filter = strings.ToLower(filter)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if filter == "" || strings.Contains(strings.ToLower(t.URL), filter) {
			return t
		}
	}
	return nil
}
