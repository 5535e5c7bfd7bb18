//go:build integration

package integration

import (
	"io"
	"net/http"
	"testing"
)

const pageLoadTrace = `{"traceEvents":[
{"name":"thread_name","cat":"__metadata","ph":"M","pid":10,"tid":11,"ts":0,"args":{"name":"CrRendererMain"}},
{"name":"TracingStartedInBrowser","cat":"disabled-by-default-devtools.timeline","ph":"I","pid":1,"tid":2,"ts":50,
 "args":{"data":{"frames":[{"frame":"F1","url":"https://example.com/","processId":10}]}}},
{"name":"navigationStart","cat":"blink.user_timing","ph":"R","pid":10,"tid":11,"ts":1000,
 "args":{"frame":"F1","data":{"documentLoaderURL":"https://example.com/","isLoadingMainFrame":true}}},
{"name":"firstPaint","cat":"loading,rail,devtools.timeline","ph":"I","pid":10,"tid":11,"ts":2000,"args":{"frame":"F1"}},
{"name":"firstContentfulPaint","cat":"loading,rail,devtools.timeline","ph":"I","pid":10,"tid":11,"ts":3000,"args":{"frame":"F1"}},
{"name":"RunTask","cat":"toplevel","ph":"X","pid":10,"tid":11,"ts":3100,"dur":900}
]}`

type traceMeta struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	URL        string `json:"url"`
	Label      string `json:"label"`
	EventCount int    `json:"event_count"`
}

type summary struct {
	FrameID     string `json:"frame_id"`
	FMPFellBack bool   `json:"fmp_fell_back"`
	Timings     struct {
		FirstPaint           *float64 `json:"first_paint"`
		FirstContentfulPaint float64  `json:"first_contentful_paint"`
		TraceEnd             float64  `json:"trace_end"`
	} `json:"timings"`
	MainThreadEventNames []string `json:"main_thread_event_names"`
}

func uploadTrace(t *testing.T) traceMeta {
	t.Helper()
	resp := env.POSTRaw(t, "/api/v1/traces?label=integration", []byte(pageLoadTrace))
	requireStatus(t, resp, http.StatusCreated)
	meta := decodeJSON[traceMeta](t, resp)
	t.Cleanup(func() {
		resp := env.DELETE(t, tracePath(meta.ID, ""))
		resp.Body.Close()
	})
	return meta
}

func TestTraceLifecycle(t *testing.T) {
	meta := uploadTrace(t)
	requireField(t, meta.Label, "integration", "label")
	requireField(t, meta.URL, "https://example.com/", "url")
	requireField(t, meta.EventCount, 6, "event_count")

	resp := env.GET(t, tracePath(meta.ID, ""))
	requireStatus(t, resp, http.StatusOK)
	requireField(t, decodeJSON[traceMeta](t, resp).ID, meta.ID, "id")

	resp = env.GET(t, tracePath(meta.ID, "raw"))
	requireStatus(t, resp, http.StatusOK)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	requireField(t, string(raw), pageLoadTrace, "raw trace")
}

func TestTraceOfTab(t *testing.T) {
	meta := uploadTrace(t)

	resp := env.GET(t, tracePath(meta.ID, "trace-of-tab?events=main_thread"))
	requireStatus(t, resp, http.StatusOK)
	s := decodeJSON[summary](t, resp)

	requireField(t, s.FrameID, "F1", "frame_id")
	requireField(t, s.Timings.FirstContentfulPaint, 2.0, "timings.first_contentful_paint")
	requireField(t, s.Timings.TraceEnd, 3.0, "timings.trace_end")
	if s.Timings.FirstPaint == nil || *s.Timings.FirstPaint != 1.0 {
		t.Fatalf("timings.first_paint = %v, want 1", s.Timings.FirstPaint)
	}
	if !s.FMPFellBack {
		t.Fatal("expected fmp_fell_back without firstMeaningfulPaint events")
	}
	if len(s.MainThreadEventNames) == 0 {
		t.Fatal("expected main thread event names")
	}
}

func TestTraceErrors(t *testing.T) {
	resp := env.GET(t, tracePath("00000000-0000-4000-8000-000000000000", "trace-of-tab"))
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = env.GET(t, tracePath("not-a-uuid", ""))
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.POSTRaw(t, "/api/v1/traces", []byte(`{"traceEvents": [`))
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	noFCP := []byte(`[{"name":"thread_name","cat":"__metadata","ph":"M","pid":1,"tid":1,"ts":0,"args":{"name":"CrRendererMain"}},
{"name":"TracingStartedInPage","cat":"disabled-by-default-devtools.timeline","ph":"I","pid":1,"tid":1,"ts":1,"args":{"data":{"page":"P"}}},
{"name":"navigationStart","cat":"blink.user_timing","ph":"R","pid":1,"tid":1,"ts":5,"args":{"frame":"P"}}]`)
	resp = env.POSTRaw(t, "/api/v1/traces", noFCP)
	requireStatus(t, resp, http.StatusCreated)
	meta := decodeJSON[traceMeta](t, resp)
	defer env.DELETE(t, tracePath(meta.ID, "")).Body.Close()

	resp = env.GET(t, tracePath(meta.ID, "trace-of-tab"))
	requireStatus(t, resp, http.StatusUnprocessableEntity)
	resp.Body.Close()
}
