package trace

import (
	"encoding/json"
)

// ArgsKind tells which typed view of an event's args payload is populated.
type ArgsKind int

const (
	ArgsGeneric ArgsKind = iota
	ArgsNavigation
	ArgsMetadata
	ArgsTracingStarted
	ArgsResourceSend
)

func (k ArgsKind) String() string {
	switch k {
	case ArgsNavigation:
		return "navigation"
	case ArgsMetadata:
		return "metadata"
	case ArgsTracingStarted:
		return "tracing_started"
	case ArgsResourceSend:
		return "resource_send"
	default:
		return "generic"
	}
}

// Args is the decoded args payload of a trace event. At most one of the
// typed views is set, selected by Kind. Raw always holds the original bytes.
type Args struct {
	Kind    ArgsKind
	FrameID string

	Navigation     *NavigationArgs
	Metadata       *MetadataArgs
	TracingStarted *TracingStartedArgs
	ResourceSend   *ResourceSendArgs

	Raw json.RawMessage
}

// NavigationArgs is the data attached to navigationStart.
type NavigationArgs struct {
	DocumentLoaderURL  string `json:"documentLoaderURL"`
	IsLoadingMainFrame bool   `json:"isLoadingMainFrame"`
	NavigationID       string `json:"navigationId"`
}

// MetadataArgs is the payload of ph=M events such as thread_name.
type MetadataArgs struct {
	Name string `json:"name"`
}

// FrameInfo describes one frame listed by TracingStartedInBrowser.
type FrameInfo struct {
	Frame     string `json:"frame"`
	URL       string `json:"url"`
	Parent    string `json:"parent"`
	ProcessID int    `json:"processId"`
}

// TracingStartedArgs is the data attached to TracingStartedInPage and
// TracingStartedInBrowser.
type TracingStartedArgs struct {
	Page   string      `json:"page"`
	Frames []FrameInfo `json:"frames"`
}

// MainFrame returns the first listed frame without a parent.
func (a *TracingStartedArgs) MainFrame() (FrameInfo, bool) {
	if a == nil {
		return FrameInfo{}, false
	}
	for _, f := range a.Frames {
		if f.Parent == "" {
			return f, true
		}
	}
	return FrameInfo{}, false
}

// ResourceSendArgs is the data attached to ResourceSendRequest.
type ResourceSendArgs struct {
	Frame     string `json:"frame"`
	RequestID string `json:"requestId"`
	URL       string `json:"url"`
}

// decodeArgs never fails: a payload that does not match the typed view for
// its event name degrades to ArgsGeneric with Raw preserved.
func decodeArgs(name, phase string, raw json.RawMessage) Args {
	args := Args{Kind: ArgsGeneric, Raw: raw}
	if len(raw) == 0 || string(raw) == "null" {
		return args
	}

	var envelope struct {
		Frame string          `json:"frame"`
		Name  string          `json:"name"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return args
	}
	args.FrameID = envelope.Frame

	switch {
	case phase == PhaseMetadata:
		args.Kind = ArgsMetadata
		args.Metadata = &MetadataArgs{Name: envelope.Name}
	case name == NameNavigationStart:
		nav, ok := decodeNavigation(envelope.Data)
		if !ok {
			return args
		}
		args.Kind = ArgsNavigation
		args.Navigation = nav
	case name == NameTracingStartedInPage || name == NameTracingStartedInBrowser:
		started := &TracingStartedArgs{}
		if len(envelope.Data) == 0 || json.Unmarshal(envelope.Data, started) != nil {
			return args
		}
		args.Kind = ArgsTracingStarted
		args.TracingStarted = started
	case name == NameResourceSendRequest:
		send := &ResourceSendArgs{}
		if len(envelope.Data) == 0 || json.Unmarshal(envelope.Data, send) != nil {
			return args
		}
		args.Kind = ArgsResourceSend
		args.ResourceSend = send
	}
	return args
}

// decodeNavigation decodes each field on its own so that a mistyped sibling
// such as a numeric navigationId cannot hide documentLoaderURL. Only a data
// value that is not an object fails.
func decodeNavigation(data json.RawMessage) (*NavigationArgs, bool) {
	nav := &NavigationArgs{}
	if len(data) == 0 || string(data) == "null" {
		return nav, true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	if v, ok := fields["documentLoaderURL"]; ok {
		_ = json.Unmarshal(v, &nav.DocumentLoaderURL)
	}
	if v, ok := fields["isLoadingMainFrame"]; ok {
		_ = json.Unmarshal(v, &nav.IsLoadingMainFrame)
	}
	if v, ok := fields["navigationId"]; ok {
		_ = json.Unmarshal(v, &nav.NavigationID)
	}
	return nav, true
}
