package capture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/dgnsrekt/tabtrace/internal/trace"
)

func values(raw ...string) []jsontext.Value {
	out := make([]jsontext.Value, len(raw))
	for i, r := range raw {
		out[i] = jsontext.Value(r)
	}
	return out
}

func TestCollectorAssemblesTrace(t *testing.T) {
	c := NewCollector()
	c.Add(values(
		`{"name":"navigationStart","cat":"blink.user_timing","ph":"R","pid":1,"tid":2,"ts":100,"args":{"frame":"F","data":{"documentLoaderURL":"https://example.com/"}}}`,
		`{"name":"firstContentfulPaint","cat":"loading,rail,devtools.timeline","ph":"I","pid":1,"tid":2,"ts":250.5,"args":{"frame":"F"}}`,
	))
	c.Add(values(`not json`, `[1,2]`, `{"name":"RunTask","ph":"X","pid":1,"tid":2,"ts":300,"dur":20}`))
	c.Complete(false)

	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	res, err := c.Result("https://example.com/")
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if res.Chunks != 2 {
		t.Fatalf("Chunks = %d; want 2", res.Chunks)
	}
	if got := len(res.Trace.Events); got != 3 {
		t.Fatalf("len(Events) = %d; want 3", got)
	}
	if nav := res.Trace.Events[0].Args.Navigation; nav == nil || nav.DocumentLoaderURL != "https://example.com/" {
		t.Fatalf("navigation args = %+v; want documentLoaderURL", nav)
	}
	if got := res.Trace.Events[1].Timestamp; got != 250 {
		t.Fatalf("Timestamp = %d; want 250", got)
	}

	reparsed, err := trace.Parse(res.Raw)
	if err != nil {
		t.Fatalf("trace.Parse(Raw) error = %v", err)
	}
	if len(reparsed.Events) != 3 {
		t.Fatalf("reparsed events = %d; want 3", len(reparsed.Events))
	}
	if got := reparsed.Metadata["source"]; got != "tabtrace" {
		t.Fatalf("metadata source = %v; want tabtrace", got)
	}
}

func TestCollectorWithoutEvents(t *testing.T) {
	c := NewCollector()
	c.Add(values(`42`))
	c.Complete(true)
	c.Complete(true)
	if _, err := c.Result("https://example.com/"); !errors.Is(err, ErrNoEvents) {
		t.Fatalf("Result() error = %v; want ErrNoEvents", err)
	}
}

func TestCollectorWaitHonorsContext(t *testing.T) {
	c := NewCollector()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v; want deadline exceeded", err)
	}
}

func TestTruncateURL(t *testing.T) {
	short := "https://example.com/"
	if got := truncateURL(short); got != short {
		t.Fatalf("truncateURL(%q) = %q; want unchanged", short, got)
	}
	long := "https://example.com/" + strings.Repeat("a", 200)
	got := truncateURL(long)
	if len(got) != 123 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncateURL(long) = %q; want 120 chars plus ellipsis", got)
	}
}
