package traceoftab

import (
	"sort"

	"github.com/dgnsrekt/tabtrace/internal/trace"
)

// FilteredStableSort returns the events matching keep in ascending timestamp
// order. Events sharing a timestamp keep their input order, which matters
// because nested spans often start on the same microsecond.
func FilteredStableSort(events []*trace.Event, keep func(*trace.Event) bool) []*trace.Event {
	indices := make([]int, 0, len(events))
	for i, e := range events {
		if keep(e) {
			indices = append(indices, i)
		}
	}

	sort.Slice(indices, func(a, b int) bool {
		ia, ib := indices[a], indices[b]
		ta, tb := events[ia].Timestamp, events[ib].Timestamp
		if ta != tb {
			return ta < tb
		}
		return ia < ib
	})

	out := make([]*trace.Event, len(indices))
	for i, idx := range indices {
		out[i] = events[idx]
	}
	return out
}

func filter(events []*trace.Event, keep func(*trace.Event) bool) []*trace.Event {
	var out []*trace.Event
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
