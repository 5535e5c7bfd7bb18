package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/tracing"
	"github.com/chromedp/chromedp"
)

// Config controls a Recorder.
type Config struct {
	// CDPURL is the browser's HTTP debugging endpoint, e.g.
	// http://127.0.0.1:9222.
	CDPURL  string
	Timeout time.Duration
	// Settle is how long to keep recording after the load event so late
	// paints such as firstMeaningfulPaint make it into the trace.
	Settle     time.Duration
	Categories []string
}

// Recorder opens a fresh tab on a running browser, navigates it while
// tracing and returns the recording.
type Recorder struct {
	cfg Config
}

// NewRecorder returns a Recorder with defaults filled in.
func NewRecorder(cfg Config) *Recorder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = Categories
	}
	return &Recorder{cfg: cfg}
}

// CaptureURL records a page load of url.
func (r *Recorder) CaptureURL(ctx context.Context, url string) (*Result, error) {
	started := time.Now()
	slog.Info("Capturing trace", "url", truncateURL(url), "cdp_url", r.cfg.CDPURL)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, r.cfg.CDPURL)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, r.cfg.Timeout)
	defer cancel()

	coll := NewCollector()
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *tracing.EventDataCollected:
			coll.Add(e.Value)
		case *tracing.EventTracingComplete:
			coll.Complete(e.DataLossOccurred)
		}
	})

	err := chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		tracing.Start().
			WithTraceConfig(&tracing.TraceConfig{
				RecordMode:         tracing.RecordModeRecordUntilFull,
				IncludedCategories: r.cfg.Categories,
			}).
			WithTransferMode(tracing.TransferModeReportEvents),
		chromedp.Navigate(url),
		chromedp.Sleep(r.cfg.Settle),
		tracing.End(),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: record %s: %w", truncateURL(url), err)
	}

	if err := coll.Wait(runCtx); err != nil {
		return nil, err
	}

	res, err := coll.Result(url)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(started)
	slog.Info("Trace captured", "url", truncateURL(url), "events", len(res.Trace.Events),
		"chunks", res.Chunks, "data_loss", res.DataLoss, "duration", res.Duration)
	return res, nil
}
