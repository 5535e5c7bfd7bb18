// Package capture records Chrome performance traces over the DevTools
// protocol.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/dgnsrekt/tabtrace/internal/trace"
)

// Categories is the tracing category set needed to locate the tab and its
// paint and load markers.
var Categories = []string{
	"toplevel",
	"v8.execute",
	"blink.console",
	"blink.user_timing",
	"benchmark",
	"loading",
	"latencyInfo",
	"devtools.timeline",
	"disabled-by-default-devtools.timeline",
	"disabled-by-default-devtools.timeline.frame",
	"disabled-by-default-devtools.timeline.stack",
	"disabled-by-default-devtools.screenshot",
}

// ErrNoEvents is returned when tracing completed without delivering any
// events.
var ErrNoEvents = errors.New("capture: no trace events received")

// Result is a completed recording.
type Result struct {
	URL      string
	Raw      []byte
	Trace    *trace.Trace
	Chunks   int
	DataLoss bool
	Duration time.Duration
}

// Collector accumulates Tracing.dataCollected chunks until
// Tracing.tracingComplete arrives. It is safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	values   []jsontext.Value
	chunks   int
	dataLoss bool

	done     chan struct{}
	doneOnce sync.Once
}

func NewCollector() *Collector {
	return &Collector{done: make(chan struct{})}
}

func (c *Collector) Add(values []jsontext.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks++
	for _, v := range values {
		c.values = append(c.values, v.Clone())
	}
}

func (c *Collector) Complete(dataLoss bool) {
	c.mu.Lock()
	c.dataLoss = dataLoss
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Collector) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("capture: waiting for tracing complete: %w", ctx.Err())
	}
}

// Result decodes the collected values into a trace and assembles the raw
// {"traceEvents":[...]} document. Values that are not valid JSON objects
// are dropped from both.
func (c *Collector) Result(url string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]jsontext.Value, 0, len(c.values))
	events := make([]*trace.Event, 0, len(c.values))
	for i, v := range c.values {
		if !v.IsValid() || v.Kind() != '{' {
			slog.Debug("capture: dropping malformed trace value", "index", i)
			continue
		}
		ev := new(trace.Event)
		if err := jsonv2.Unmarshal(v, ev); err != nil {
			slog.Debug("capture: dropping undecodable trace event", "index", i, "error", err)
			continue
		}
		kept = append(kept, v)
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	raw, err := jsonv2.Marshal(struct {
		TraceEvents []jsontext.Value `json:"traceEvents"`
		Metadata    map[string]any   `json:"metadata"`
	}{
		TraceEvents: kept,
		Metadata:    map[string]any{"source": "tabtrace", "url": url, "dataLossOccurred": c.dataLoss},
	})
	if err != nil {
		return nil, fmt.Errorf("capture: assemble trace: %w", err)
	}

	return &Result{
		URL:      url,
		Raw:      raw,
		Trace:    &trace.Trace{Events: events, Metadata: map[string]any{"source": "tabtrace", "url": url}},
		Chunks:   c.chunks,
		DataLoss: c.dataLoss,
	}, nil
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
