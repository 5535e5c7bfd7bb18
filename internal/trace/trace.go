// Package trace decodes Chrome performance traces into immutable events.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Trace is a decoded capture. Events keep capture order, which is not
// guaranteed to be chronological.
type Trace struct {
	Events   []*Event
	Metadata map[string]any
}

// ErrEmpty is returned when the input contains no JSON document.
var ErrEmpty = errors.New("trace: empty input")

// Parse decodes either a bare JSON array of events or an object with a
// traceEvents array.
func Parse(data []byte) (*Trace, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	if data[0] == '[' {
		var events []*Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("trace: decode: %w", err)
		}
		return &Trace{Events: compact(events)}, nil
	}

	var doc struct {
		TraceEvents []*Event       `json:"traceEvents"`
		Metadata    map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("trace: decode: %w", err)
	}
	if doc.TraceEvents == nil {
		return nil, fmt.Errorf("trace: decode: missing traceEvents")
	}
	return &Trace{Events: compact(doc.TraceEvents), Metadata: doc.Metadata}, nil
}

// ReadFile parses the trace stored at path.
func ReadFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trace: read %s: %w", path, err)
	}
	return Parse(data)
}

// compact drops null entries, which some exporters leave at the end of a
// truncated array.
func compact(events []*Event) []*Event {
	out := events[:0]
	for _, e := range events {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
