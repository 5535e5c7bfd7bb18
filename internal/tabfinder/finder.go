// Package tabfinder locates the process, main thread and frame of the page
// being traced.
package tabfinder

import (
	"log/slog"

	"github.com/dgnsrekt/tabtrace/internal/apperr"
	"github.com/dgnsrekt/tabtrace/internal/trace"
	"github.com/dgnsrekt/tabtrace/internal/traceoftab"
)

// Finder resolves the tab from the tracing-started markers Chrome writes at
// the beginning of a capture.
type Finder struct{}

var _ traceoftab.FrameResolver = Finder{}

// ResolveFrame tries, in order, TracingStartedInBrowser (newer Chrome, one
// trace for the whole browser), TracingStartedInPage (older Chrome), and the
// first ResourceSendRequest carrying a frame.
func (Finder) ResolveFrame(keyEvents []*trace.Event) (*trace.Event, string, error) {
	if start, frameID, ok := fromBrowserStart(keyEvents); ok {
		return start, frameID, nil
	}

	for _, e := range keyEvents {
		if e.Name != trace.NameTracingStartedInPage {
			continue
		}
		if e.Args.TracingStarted == nil || e.Args.TracingStarted.Page == "" {
			continue
		}
		return e, e.Args.TracingStarted.Page, nil
	}

	for _, e := range keyEvents {
		if e.Name != trace.NameResourceSendRequest || e.Args.ResourceSend == nil {
			continue
		}
		if e.Args.ResourceSend.Frame == "" {
			continue
		}
		slog.Debug("tabfinder: falling back to first resource request", "frame_id", e.Args.ResourceSend.Frame, "pid", e.ProcessID)
		return e, e.Args.ResourceSend.Frame, nil
	}

	return nil, "", apperr.New(apperr.CodeNoTracingStarted, "no TracingStartedInBrowser, TracingStartedInPage or ResourceSendRequest event found", nil)
}

// fromBrowserStart returns the CrRendererMain thread_name metadata event of
// the main frame's renderer process. That event carries the renderer pid
// and the main thread tid.
func fromBrowserStart(events []*trace.Event) (*trace.Event, string, bool) {
	var started *trace.Event
	for _, e := range events {
		if e.Name == trace.NameTracingStartedInBrowser {
			started = e
			break
		}
	}
	if started == nil {
		return nil, "", false
	}

	mainFrame, ok := started.Args.TracingStarted.MainFrame()
	if !ok || mainFrame.Frame == "" || mainFrame.ProcessID == 0 {
		return nil, "", false
	}

	for _, e := range events {
		if e.ProcessID != mainFrame.ProcessID || e.Phase != trace.PhaseMetadata {
			continue
		}
		if e.Cat != trace.CategoryMetadata || e.Name != trace.NameThreadName {
			continue
		}
		if e.Args.Metadata == nil || e.Args.Metadata.Name != trace.ThreadCrRendererMain {
			continue
		}
		return e, mainFrame.Frame, true
	}

	slog.Debug("tabfinder: renderer main thread not found for browser-started trace", "pid", mainFrame.ProcessID)
	return nil, "", false
}

// Fixed always resolves to the configured start event and frame. It is used
// when an operator pins the tab explicitly.
type Fixed struct {
	Start   *trace.Event
	FrameID string
}

var _ traceoftab.FrameResolver = Fixed{}

func (f Fixed) ResolveFrame([]*trace.Event) (*trace.Event, string, error) {
	if f.Start == nil || f.FrameID == "" {
		return nil, "", apperr.New(apperr.CodeValidation, "fixed frame resolver needs a start event and frame id", nil)
	}
	return f.Start, f.FrameID, nil
}

// Pinned builds a Fixed resolver from explicit identifiers. The start event
// is synthetic and exists only to carry pid and tid.
func Pinned(pid, tid int, frameID string) Fixed {
	return Fixed{Start: &trace.Event{Name: "pinned", ProcessID: pid, ThreadID: tid}, FrameID: frameID}
}
