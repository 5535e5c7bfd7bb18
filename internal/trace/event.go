package trace

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Event is one record of a Chrome trace. Events are decoded once and never
// modified; filtered or reordered views hold pointers to the same records.
type Event struct {
	Name       string
	Cat        string
	Categories []string
	Phase      string
	ProcessID  int
	ThreadID   int
	Timestamp  int64
	Duration   *int64
	Args       Args
}

type wireEvent struct {
	Name string          `json:"name"`
	Cat  string          `json:"cat"`
	Ph   string          `json:"ph"`
	PID  int             `json:"pid"`
	TID  int             `json:"tid"`
	TS   json.Number     `json:"ts"`
	Dur  *json.Number    `json:"dur"`
	Args json.RawMessage `json:"args"`
}

// UnmarshalJSON decodes the Chrome trace event format.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	ts, err := parseMicros(w.TS)
	if err != nil {
		return fmt.Errorf("event %q: ts: %w", w.Name, err)
	}

	*e = Event{
		Name:       w.Name,
		Cat:        w.Cat,
		Categories: splitCategories(w.Cat),
		Phase:      w.Ph,
		ProcessID:  w.PID,
		ThreadID:   w.TID,
		Timestamp:  ts,
		Args:       decodeArgs(w.Name, w.Ph, w.Args),
	}
	if w.Dur != nil {
		dur, err := parseMicros(*w.Dur)
		if err != nil {
			return fmt.Errorf("event %q: dur: %w", w.Name, err)
		}
		e.Duration = &dur
	}
	return nil
}

// MarshalJSON writes the event back in the Chrome trace event format.
func (e *Event) MarshalJSON() ([]byte, error) {
	w := struct {
		Name string          `json:"name"`
		Cat  string          `json:"cat"`
		Ph   string          `json:"ph,omitempty"`
		PID  int             `json:"pid"`
		TID  int             `json:"tid"`
		TS   int64           `json:"ts"`
		Dur  *int64          `json:"dur,omitempty"`
		Args json.RawMessage `json:"args,omitempty"`
	}{e.Name, e.Cat, e.Phase, e.ProcessID, e.ThreadID, e.Timestamp, e.Duration, e.Args.Raw}
	return json.Marshal(w)
}

// End returns the timestamp at which the event finished. Events without a
// duration end where they start.
func (e *Event) End() int64 {
	if e.Duration == nil {
		return e.Timestamp
	}
	return e.Timestamp + *e.Duration
}

// HasCategory reports whether c is one of the event's categories.
func (e *Event) HasCategory(c string) bool {
	for _, cat := range e.Categories {
		if cat == c {
			return true
		}
	}
	return false
}

func splitCategories(cat string) []string {
	if cat == "" {
		return nil
	}
	parts := strings.Split(cat, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseMicros accepts integer and fractional microsecond values. Fractional
// values are truncated toward zero.
func parseMicros(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid value %q", n)
	}
	return int64(f), nil
}
