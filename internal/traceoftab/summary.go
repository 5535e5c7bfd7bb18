package traceoftab

// Summary is the serializable view of a TraceOfTab used by the API, CLI and
// result log. Event slices are reduced to counts.
type Summary struct {
	Timings              Timings    `json:"timings"`
	Timestamps           Timestamps `json:"timestamps"`
	FMPFellBack          bool       `json:"fmp_fell_back"`
	ProcessID            int        `json:"process_id"`
	ThreadID             int        `json:"thread_id"`
	FrameID              string     `json:"frame_id"`
	NavigationURL        string     `json:"navigation_url,omitempty"`
	ProcessEventCount    int        `json:"process_event_count"`
	MainThreadEventCount int        `json:"main_thread_event_count"`
	MainThreadEventNames []string   `json:"main_thread_event_names,omitempty"`
}

// Summary builds the serializable view. withEvents adds the names of the
// main thread events in chronological order.
func (t *TraceOfTab) Summary(withEvents bool) Summary {
	s := Summary{
		Timings:              t.Timings,
		Timestamps:           t.Timestamps,
		FMPFellBack:          t.FMPFellBack,
		ProcessID:            t.ProcessID,
		ThreadID:             t.ThreadID,
		FrameID:              t.FrameID,
		ProcessEventCount:    len(t.ProcessEvents),
		MainThreadEventCount: len(t.MainThreadEvents),
	}
	if nav := t.NavigationStartEvt.Args.Navigation; nav != nil {
		s.NavigationURL = nav.DocumentLoaderURL
	}
	if withEvents {
		s.MainThreadEventNames = make([]string, len(t.MainThreadEvents))
		for i, e := range t.MainThreadEvents {
			s.MainThreadEventNames[i] = e.Name
		}
	}
	return s
}
