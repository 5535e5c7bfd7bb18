// Package traceoftab finds the lifecycle markers of one tab in a Chrome
// trace and scopes the trace to that tab's process and main thread.
package traceoftab

import (
	"log/slog"
	"regexp"

	"github.com/dgnsrekt/tabtrace/internal/apperr"
	"github.com/dgnsrekt/tabtrace/internal/trace"
)

const fmpFallbackWarning = "No firstMeaningfulPaint found, using fallback"

// Navigations to about:blank, data: URLs and similar are not page loads.
var acceptableNavigationURL = regexp.MustCompile(`^(chrome|https?):`)

// FrameResolver identifies the tab inside the chronologically sorted key
// events. The returned event's pid and tid scope the process and main
// thread views; frameID scopes the marker search.
type FrameResolver interface {
	ResolveFrame(keyEvents []*trace.Event) (start *trace.Event, frameID string, err error)
}

// Reporter receives non-fatal anomalies. Implementations must not block.
type Reporter interface {
	ReportWarning(message string)
}

type nopReporter struct{}

func (nopReporter) ReportWarning(string) {}

// TraceOfTab is the per-tab view of a trace. It is built once and not
// modified afterwards.
type TraceOfTab struct {
	Timestamps Timestamps
	Timings    Timings

	ProcessEvents    []*trace.Event
	MainThreadEvents []*trace.Event

	NavigationStartEvt      *trace.Event
	FirstPaintEvt           *trace.Event
	FirstContentfulPaintEvt *trace.Event
	FirstMeaningfulPaintEvt *trace.Event
	LoadEvt                 *trace.Event
	DomContentLoadedEvt     *trace.Event

	FMPFellBack bool

	ProcessID int
	ThreadID  int
	FrameID   string
}

// Computer derives TraceOfTab values. It holds no mutable state and is safe
// for concurrent use.
type Computer struct {
	resolver FrameResolver
	reporter Reporter
}

// NewComputer returns a Computer. A nil reporter discards warnings.
func NewComputer(resolver FrameResolver, reporter Reporter) *Computer {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Computer{resolver: resolver, reporter: reporter}
}

var keyCategories = []string{
	trace.CategoryUserTiming,
	trace.CategoryLoading,
	trace.CategoryDevtoolsTimeline,
}

// isKeyEvent keeps markers and metadata. Chrome files the tracing-started
// events under disabled-by-default-devtools.timeline, so the disabled
// variants of the key categories count too.
func isKeyEvent(e *trace.Event) bool {
	if e.Cat == trace.CategoryMetadata {
		return true
	}
	for _, c := range keyCategories {
		if e.HasCategory(c) || e.HasCategory(trace.DisabledByDefault(c)) {
			return true
		}
	}
	return false
}

func isNavigationStartOfInterest(e *trace.Event) bool {
	if e.Name != trace.NameNavigationStart {
		return false
	}
	nav := e.Args.Navigation
	if nav == nil || nav.DocumentLoaderURL == "" {
		return true
	}
	return acceptableNavigationURL.MatchString(nav.DocumentLoaderURL)
}

// Compute extracts the tab's markers from tr. It fails with
// CodeNoNavigationStart or CodeNoFirstContentfulPaint when those markers are
// missing, and passes resolver errors through unchanged.
func (c *Computer) Compute(tr *trace.Trace) (*TraceOfTab, error) {
	keyEvents := FilteredStableSort(tr.Events, isKeyEvent)

	start, frameID, err := c.resolver.ResolveFrame(keyEvents)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, apperr.New(apperr.CodeNoTracingStarted, "frame resolver returned no start event", nil)
	}

	frameEvents := filter(keyEvents, func(e *trace.Event) bool {
		return e.Args.FrameID == frameID
	})

	navStart := findLast(frameEvents, isNavigationStartOfInterest)
	if navStart == nil {
		return nil, apperr.New(CodeNoNavigationStart, "no navigationStart found for frame "+frameID, nil)
	}

	afterNavStart := func(name string) *trace.Event {
		return findFirst(frameEvents, func(e *trace.Event) bool {
			return e.Name == name && e.Timestamp > navStart.Timestamp
		})
	}

	firstPaint := afterNavStart(trace.NameFirstPaint)

	firstContentfulPaint := afterNavStart(trace.NameFirstContentfulPaint)
	if firstContentfulPaint == nil {
		return nil, apperr.New(CodeNoFirstContentfulPaint, "no firstContentfulPaint found after navigationStart", nil)
	}

	firstMeaningfulPaint := afterNavStart(trace.NameFirstMeaningfulPaint)
	fmpFellBack := false
	if firstMeaningfulPaint == nil {
		fmpFellBack = true
		c.reportWarning(fmpFallbackWarning)
		slog.Debug("trace-of-tab: no firstMeaningfulPaint found, falling back to last candidate",
			"frame_id", frameID, "candidate", trace.NameFirstMeaningfulPaintCandidate)
		// The candidate is taken regardless of its position relative to
		// navigationStart, unlike every other marker.
		firstMeaningfulPaint = findLast(frameEvents, func(e *trace.Event) bool {
			return e.Name == trace.NameFirstMeaningfulPaintCandidate
		})
		if firstMeaningfulPaint == nil {
			slog.Debug("trace-of-tab: no firstMeaningfulPaintCandidate events found in trace", "frame_id", frameID)
		}
	}

	load := afterNavStart(trace.NameLoadEventEnd)
	domContentLoaded := afterNavStart(trace.NameDomContentLoadedEventEnd)

	processEvents := FilteredStableSort(tr.Events, func(e *trace.Event) bool {
		return e.ProcessID == start.ProcessID
	})
	mainThreadEvents := filter(processEvents, func(e *trace.Event) bool {
		return e.ThreadID == start.ThreadID
	})

	stamps := Timestamps{
		NavigationStart:      navStart.Timestamp,
		FirstPaint:           timestampOf(firstPaint),
		FirstContentfulPaint: firstContentfulPaint.Timestamp,
		FirstMeaningfulPaint: timestampOf(firstMeaningfulPaint),
		TraceEnd:             traceEnd(tr.Events),
		Load:                 timestampOf(load),
		DomContentLoaded:     timestampOf(domContentLoaded),
	}

	return &TraceOfTab{
		Timestamps:              stamps,
		Timings:                 projectTimings(stamps),
		ProcessEvents:           processEvents,
		MainThreadEvents:        mainThreadEvents,
		NavigationStartEvt:      navStart,
		FirstPaintEvt:           firstPaint,
		FirstContentfulPaintEvt: firstContentfulPaint,
		FirstMeaningfulPaintEvt: firstMeaningfulPaint,
		LoadEvt:                 load,
		DomContentLoadedEvt:     domContentLoaded,
		FMPFellBack:             fmpFellBack,
		ProcessID:               start.ProcessID,
		ThreadID:                start.ThreadID,
		FrameID:                 frameID,
	}, nil
}

// reportWarning never lets a misbehaving reporter affect the computation.
func (c *Computer) reportWarning(msg string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("trace-of-tab: warning reporter panicked", "panic", r)
		}
	}()
	c.reporter.ReportWarning(msg)
}

func findFirst(events []*trace.Event, match func(*trace.Event) bool) *trace.Event {
	for _, e := range events {
		if match(e) {
			return e
		}
	}
	return nil
}

func findLast(events []*trace.Event, match func(*trace.Event) bool) *trace.Event {
	for i := len(events) - 1; i >= 0; i-- {
		if match(events[i]) {
			return events[i]
		}
	}
	return nil
}

// traceEnd bounds the whole capture, not just the tab's frame.
func traceEnd(events []*trace.Event) int64 {
	var end int64
	for i, e := range events {
		if t := e.End(); i == 0 || t > end {
			end = t
		}
	}
	return end
}
