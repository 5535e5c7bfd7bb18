package traceoftab

import "github.com/dgnsrekt/tabtrace/internal/trace"

// Timestamps holds absolute marker times in trace microseconds. Optional
// markers are nil when the trace did not contain them.
type Timestamps struct {
	NavigationStart      int64  `json:"navigation_start"`
	FirstPaint           *int64 `json:"first_paint"`
	FirstContentfulPaint int64  `json:"first_contentful_paint"`
	FirstMeaningfulPaint *int64 `json:"first_meaningful_paint"`
	TraceEnd             int64  `json:"trace_end"`
	Load                 *int64 `json:"load"`
	DomContentLoaded     *int64 `json:"dom_content_loaded"`
}

// Timings holds the same markers in milliseconds since navigation start.
type Timings struct {
	NavigationStart      float64  `json:"navigation_start"`
	FirstPaint           *float64 `json:"first_paint"`
	FirstContentfulPaint float64  `json:"first_contentful_paint"`
	FirstMeaningfulPaint *float64 `json:"first_meaningful_paint"`
	TraceEnd             float64  `json:"trace_end"`
	Load                 *float64 `json:"load"`
	DomContentLoaded     *float64 `json:"dom_content_loaded"`
}

func projectTimings(ts Timestamps) Timings {
	origin := ts.NavigationStart
	return Timings{
		NavigationStart:      0,
		FirstPaint:           relativeMillis(ts.FirstPaint, origin),
		FirstContentfulPaint: millisSince(ts.FirstContentfulPaint, origin),
		FirstMeaningfulPaint: relativeMillis(ts.FirstMeaningfulPaint, origin),
		TraceEnd:             millisSince(ts.TraceEnd, origin),
		Load:                 relativeMillis(ts.Load, origin),
		DomContentLoaded:     relativeMillis(ts.DomContentLoaded, origin),
	}
}

func millisSince(ts, origin int64) float64 {
	return float64(ts-origin) / 1000
}

func relativeMillis(ts *int64, origin int64) *float64 {
	if ts == nil {
		return nil
	}
	ms := millisSince(*ts, origin)
	return &ms
}

func timestampOf(e *trace.Event) *int64 {
	if e == nil {
		return nil
	}
	ts := e.Timestamp
	return &ts
}
