package trace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const objectTrace = `{
  "traceEvents": [
    {"name": "thread_name", "cat": "__metadata", "ph": "M", "pid": 10, "tid": 11, "ts": 0, "args": {"name": "CrRendererMain"}},
    {"name": "navigationStart", "cat": "blink.user_timing", "ph": "R", "pid": 10, "tid": 11, "ts": 1000,
     "args": {"frame": "F1", "data": {"documentLoaderURL": "https://example.com/", "isLoadingMainFrame": true, "navigationId": "N1"}}},
    {"name": "TracingStartedInBrowser", "cat": "disabled-by-default-devtools.timeline", "ph": "I", "pid": 1, "tid": 2, "ts": 5,
     "args": {"data": {"frames": [{"frame": "F2", "url": "https://example.com/frame", "parent": "F1", "processId": 12}, {"frame": "F1", "url": "https://example.com/", "processId": 10}]}}},
    {"name": "RunTask", "cat": "toplevel, devtools.timeline", "ph": "X", "pid": 10, "tid": 11, "ts": 2000.75, "dur": 300},
    null
  ],
  "metadata": {"source": "DevTools"}
}`

func TestParseObjectForm(t *testing.T) {
	tr, err := Parse([]byte(objectTrace))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got, want := len(tr.Events), 4; got != want {
		t.Fatalf("len(Events) = %d; want %d", got, want)
	}
	if got, want := tr.Metadata["source"], "DevTools"; got != want {
		t.Fatalf("Metadata[source] = %v; want %v", got, want)
	}

	meta := tr.Events[0]
	if meta.Args.Kind != ArgsMetadata || meta.Args.Metadata.Name != ThreadCrRendererMain {
		t.Fatalf("metadata args = %+v; want thread name %q", meta.Args, ThreadCrRendererMain)
	}

	nav := tr.Events[1]
	if nav.Args.Kind != ArgsNavigation {
		t.Fatalf("navigationStart kind = %v; want %v", nav.Args.Kind, ArgsNavigation)
	}
	if got, want := nav.Args.FrameID, "F1"; got != want {
		t.Fatalf("FrameID = %q; want %q", got, want)
	}
	if got, want := nav.Args.Navigation.DocumentLoaderURL, "https://example.com/"; got != want {
		t.Fatalf("DocumentLoaderURL = %q; want %q", got, want)
	}

	started := tr.Events[2]
	main, ok := started.Args.TracingStarted.MainFrame()
	if !ok {
		t.Fatalf("MainFrame() found nothing")
	}
	if main.Frame != "F1" || main.ProcessID != 10 {
		t.Fatalf("MainFrame() = %+v; want frame F1 in pid 10", main)
	}

	task := tr.Events[3]
	if diff := cmp.Diff([]string{"toplevel", "devtools.timeline"}, task.Categories); diff != "" {
		t.Fatalf("Categories mismatch (-want +got):\n%s", diff)
	}
	if got, want := task.Timestamp, int64(2000); got != want {
		t.Fatalf("Timestamp = %d; want %d", got, want)
	}
	if got, want := task.End(), int64(2300); got != want {
		t.Fatalf("End() = %d; want %d", got, want)
	}
	if !task.HasCategory(CategoryDevtoolsTimeline) {
		t.Fatalf("HasCategory(%q) = false; want true", CategoryDevtoolsTimeline)
	}
}

func TestParseArrayForm(t *testing.T) {
	tr, err := Parse([]byte(`[{"name":"a","cat":"loading","ph":"R","pid":1,"tid":1,"ts":5},{"name":"b","ph":"X","pid":1,"tid":1,"ts":3,"dur":2}]`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got, want := len(tr.Events), 2; got != want {
		t.Fatalf("len(Events) = %d; want %d", got, want)
	}
	if tr.Events[0].Duration != nil {
		t.Fatalf("Duration = %v; want nil", *tr.Events[0].Duration)
	}
	if got, want := tr.Events[0].End(), int64(5); got != want {
		t.Fatalf("End() = %d; want %d", got, want)
	}
	if tr.Events[1].Args.Kind != ArgsGeneric {
		t.Fatalf("Kind = %v; want generic", tr.Events[1].Args.Kind)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: "   "},
		{name: "invalid_json", input: `{"traceEvents": [`},
		{name: "missing_trace_events", input: `{"metadata": {}}`},
		{name: "bad_timestamp", input: `[{"name":"a","ts":"soon"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.input)); err == nil {
				t.Fatalf("Parse(%q) = nil error; want error", tt.input)
			}
		})
	}

	if _, err := Parse(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Parse(nil) = %v; want ErrEmpty", err)
	}
}

func TestMalformedArgsDegradeToGeneric(t *testing.T) {
	tr, err := Parse([]byte(`[{"name":"navigationStart","cat":"blink.user_timing","pid":1,"tid":1,"ts":5,"args":{"frame":"F","data":"oops"}}]`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	args := tr.Events[0].Args
	if args.Kind != ArgsGeneric {
		t.Fatalf("Kind = %v; want generic", args.Kind)
	}
	if args.FrameID != "F" {
		t.Fatalf("FrameID = %q; want %q", args.FrameID, "F")
	}
	if len(args.Raw) == 0 {
		t.Fatalf("Raw is empty; want original payload")
	}
}

func TestNavigationArgsSurviveMistypedFields(t *testing.T) {
	tr, err := Parse([]byte(`[{"name":"navigationStart","cat":"blink.user_timing","pid":1,"tid":1,"ts":5,
	  "args":{"frame":"F","data":{"documentLoaderURL":"about:blank","navigationId":7,"isLoadingMainFrame":"yes"}}}]`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	args := tr.Events[0].Args
	if args.Kind != ArgsNavigation {
		t.Fatalf("Kind = %v; want %v", args.Kind, ArgsNavigation)
	}
	if got, want := args.Navigation.DocumentLoaderURL, "about:blank"; got != want {
		t.Fatalf("DocumentLoaderURL = %q; want %q", got, want)
	}
	if args.Navigation.NavigationID != "" || args.Navigation.IsLoadingMainFrame {
		t.Fatalf("Navigation = %+v; want mistyped fields left zero", args.Navigation)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	if err := os.WriteFile(path, []byte(objectTrace), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	tr, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(tr.Events) != 4 {
		t.Fatalf("len(Events) = %d; want 4", len(tr.Events))
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("ReadFile(missing) = nil error; want error")
	}
}

func TestMarshalRoundTripKeepsArgs(t *testing.T) {
	tr, err := Parse([]byte(objectTrace))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	data, err := tr.Events[1].MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	again, err := Parse(append(append([]byte("["), data...), ']'))
	if err != nil {
		t.Fatalf("Parse(marshaled) error = %v", err)
	}
	if got := again.Events[0].Args.Navigation.NavigationID; got != "N1" {
		t.Fatalf("NavigationID = %q; want %q", got, "N1")
	}
}
