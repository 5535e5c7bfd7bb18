package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/tabtrace/internal/analysis"
	"github.com/dgnsrekt/tabtrace/internal/apperr"
	"github.com/dgnsrekt/tabtrace/internal/storage"
	"github.com/dgnsrekt/tabtrace/internal/traceoftab"
)

const traceID = "2f1c9a0e-8d4b-4c1e-9f57-3b1d2a6c7e10"

type stubService struct {
	imported   []byte
	importReq  analysis.ImportRequest
	withEvents bool
	summaryErr error
	captureErr error
	captured   analysis.Analysis
	deleted    string
}

func (s *stubService) ImportTrace(ctx context.Context, raw []byte, req analysis.ImportRequest) (storage.TraceMeta, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return storage.TraceMeta{}, apperr.New(apperr.CodeInvalidTrace, "trace could not be decoded", nil)
	}
	s.imported = raw
	s.importReq = req
	return storage.TraceMeta{ID: traceID, Source: req.Source, Label: req.Label, EventCount: 3}, nil
}

func (s *stubService) ListTraces(ctx context.Context) ([]storage.TraceMeta, error) {
	return []storage.TraceMeta{{ID: traceID, Source: analysis.SourceUpload}}, nil
}

func (s *stubService) GetTrace(ctx context.Context, id string) (storage.TraceMeta, error) {
	if id != traceID {
		return storage.TraceMeta{}, apperr.New(apperr.CodeTraceNotFound, "trace "+id+" not found", nil)
	}
	return storage.TraceMeta{ID: traceID}, nil
}

func (s *stubService) RawTrace(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.GetTrace(ctx, id); err != nil {
		return nil, err
	}
	return []byte(`{"traceEvents":[]}`), nil
}

func (s *stubService) DeleteTrace(ctx context.Context, id string) error {
	if _, err := s.GetTrace(ctx, id); err != nil {
		return err
	}
	s.deleted = id
	return nil
}

func (s *stubService) Summary(ctx context.Context, id string, withEvents bool) (traceoftab.Summary, error) {
	s.withEvents = withEvents
	if s.summaryErr != nil {
		return traceoftab.Summary{}, s.summaryErr
	}
	out := traceoftab.Summary{FrameID: "F1", ProcessID: 10, ThreadID: 11}
	out.Timings.FirstContentfulPaint = 12.5
	if withEvents {
		out.MainThreadEventNames = []string{"navigationStart", "firstContentfulPaint"}
	}
	return out, nil
}

func (s *stubService) CaptureURL(ctx context.Context, url, label string) (analysis.Analysis, error) {
	if !strings.HasPrefix(url, "http") {
		return analysis.Analysis{}, apperr.New(apperr.CodeValidation, "url must be an absolute http(s) URL", nil)
	}
	return s.captured, s.captureErr
}

func (s *stubService) CaptureAttached(ctx context.Context, label string) (analysis.Analysis, error) {
	return s.captured, s.captureErr
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(&stubService{}, Options{})
	w := serve(t, h, http.MethodGet, "/docs", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
	if !strings.Contains(body, `href="/docs/events"`) {
		t.Fatalf("docs missing event stream link")
	}
	if !strings.Contains(body, `href="/metrics"`) {
		t.Fatalf("docs missing metrics link")
	}

	w = serve(t, h, http.MethodGet, "/docs/events", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/v1/events") {
		t.Fatalf("GET /docs/events = %d; want 200 describing /api/v1/events", w.Code)
	}
}

func TestHealth(t *testing.T) {
	w := serve(t, NewServer(&stubService{}, Options{}), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("GET /health = %d %s; want 200 ok", w.Code, w.Body.String())
	}
}

func TestImportTrace(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, Options{})

	body := `[{"name":"navigationStart","ts":1}]`
	w := serve(t, h, http.MethodPost, "/api/v1/traces?label=home", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/v1/traces = %d %s; want %d", w.Code, w.Body.String(), http.StatusCreated)
	}
	if string(svc.imported) != body {
		t.Fatalf("imported = %q; want %q", svc.imported, body)
	}
	if svc.importReq.Label != "home" || svc.importReq.Source != analysis.SourceUpload {
		t.Fatalf("import request = %+v; want label home from upload", svc.importReq)
	}
	var meta storage.TraceMeta
	if err := json.Unmarshal(w.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if meta.ID != traceID {
		t.Fatalf("ID = %q; want %q", meta.ID, traceID)
	}

	w = serve(t, h, http.MethodPost, "/api/v1/traces", " ")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("POST empty trace = %d; want %d", w.Code, http.StatusBadRequest)
	}
}

func TestTraceLookups(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "list", method: http.MethodGet, path: "/api/v1/traces", want: http.StatusOK},
		{name: "get", method: http.MethodGet, path: "/api/v1/traces/" + traceID, want: http.StatusOK},
		{name: "get_missing", method: http.MethodGet, path: "/api/v1/traces/other", want: http.StatusNotFound},
		{name: "raw", method: http.MethodGet, path: "/api/v1/traces/" + traceID + "/raw", want: http.StatusOK},
		{name: "raw_missing", method: http.MethodGet, path: "/api/v1/traces/other/raw", want: http.StatusNotFound},
		{name: "delete_missing", method: http.MethodDelete, path: "/api/v1/traces/other", want: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/api/v1/traces/" + traceID, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, h, tt.method, tt.path, "")
			if w.Code != tt.want {
				t.Fatalf("%s %s = %d %s; want %d", tt.method, tt.path, w.Code, w.Body.String(), tt.want)
			}
		})
	}
	if svc.deleted != traceID {
		t.Fatalf("deleted = %q; want %q", svc.deleted, traceID)
	}
}

func TestRawTraceBody(t *testing.T) {
	w := serve(t, NewServer(&stubService{}, Options{}), http.MethodGet, "/api/v1/traces/"+traceID+"/raw", "")
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q; want application/json", got)
	}
	if got, want := w.Body.String(), `{"traceEvents":[]}`; got != want {
		t.Fatalf("body = %q; want %q", got, want)
	}
}

func TestTraceOfTab(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, Options{})

	w := serve(t, h, http.MethodGet, "/api/v1/traces/"+traceID+"/trace-of-tab", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET trace-of-tab = %d %s; want 200", w.Code, w.Body.String())
	}
	if svc.withEvents {
		t.Fatalf("withEvents = true; want false by default")
	}
	var summary traceoftab.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if summary.Timings.FirstContentfulPaint != 12.5 || summary.FrameID != "F1" {
		t.Fatalf("summary = %+v; want fcp 12.5 in frame F1", summary)
	}

	w = serve(t, h, http.MethodGet, "/api/v1/traces/"+traceID+"/trace-of-tab?events=main_thread", "")
	if w.Code != http.StatusOK || !svc.withEvents {
		t.Fatalf("GET ?events=main_thread = %d, withEvents = %v; want 200, true", w.Code, svc.withEvents)
	}
	if !strings.Contains(w.Body.String(), "firstContentfulPaint") {
		t.Fatalf("body = %s; want main thread event names", w.Body.String())
	}
}

func TestTraceOfTabErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{code: traceoftab.CodeNoNavigationStart, want: http.StatusUnprocessableEntity},
		{code: traceoftab.CodeNoFirstContentfulPaint, want: http.StatusUnprocessableEntity},
		{code: apperr.CodeNoTracingStarted, want: http.StatusUnprocessableEntity},
		{code: apperr.CodeInvalidTrace, want: http.StatusBadRequest},
		{code: apperr.CodeValidation, want: http.StatusBadRequest},
		{code: apperr.CodeTraceNotFound, want: http.StatusNotFound},
		{code: "SOMETHING_ELSE", want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &stubService{summaryErr: apperr.New(tt.code, "boom", nil)}
			w := serve(t, NewServer(svc, Options{}), http.MethodGet, "/api/v1/traces/"+traceID+"/trace-of-tab", "")
			if w.Code != tt.want {
				t.Fatalf("status = %d; want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCapture(t *testing.T) {
	summary := traceoftab.Summary{FrameID: "F1"}
	svc := &stubService{captured: analysis.Analysis{Trace: storage.TraceMeta{ID: traceID}, Summary: &summary}}
	h := NewServer(svc, Options{})

	w := serve(t, h, http.MethodPost, "/api/v1/capture", `{"url":"https://example.com/","label":"home"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/v1/capture = %d %s; want 201", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), traceID) {
		t.Fatalf("body = %s; want trace id", w.Body.String())
	}

	w = serve(t, h, http.MethodPost, "/api/v1/capture", `{"url":"ftp://example.com/"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("POST bad url = %d; want 400", w.Code)
	}
}

func TestCaptureStoredWithoutAnalysis(t *testing.T) {
	err := apperr.New(traceoftab.CodeNoFirstContentfulPaint, "no firstContentfulPaint found after navigationStart", nil)
	svc := &stubService{
		captured:   analysis.Analysis{Trace: storage.TraceMeta{ID: traceID}, Error: err.Error()},
		captureErr: err,
	}
	w := serve(t, NewServer(svc, Options{}), http.MethodPost, "/api/v1/capture", `{"url":"https://example.com/"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d; want 422", w.Code)
	}
	if !strings.Contains(w.Body.String(), traceID) {
		t.Fatalf("body = %s; want stored trace id in error details", w.Body.String())
	}
}

func TestCaptureAttachedUnavailable(t *testing.T) {
	svc := &stubService{captureErr: apperr.New(apperr.CodeCDPUnavailable, "no browser configured for attach", nil)}
	w := serve(t, NewServer(svc, Options{}), http.MethodPost, "/api/v1/capture/attach", `{}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d %s; want 502", w.Code, w.Body.String())
	}
}

func TestOptionalRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tabtrace_up 1\n"))
	})
	h := NewServer(&stubService{}, Options{Metrics: metrics})
	w := serve(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "tabtrace_up") {
		t.Fatalf("GET /metrics = %d %s; want mounted handler", w.Code, w.Body.String())
	}

	w = serve(t, NewServer(&stubService{}, Options{}), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /metrics without handler = %d; want 404", w.Code)
	}
	w = serve(t, NewServer(&stubService{}, Options{}), http.MethodGet, "/api/v1/events", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /api/v1/events without broker = %d; want 404", w.Code)
	}
}

func TestRequestLoggerRecordsRouteAndTraceID(t *testing.T) {
	var buf strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := NewServer(&stubService{}, Options{})
	serve(t, h, http.MethodGet, "/api/v1/traces/"+traceID, "")

	out := buf.String()
	for _, want := range []string{"msg=\"http request\"", "route=/api/v1/traces/{trace_id}", "trace_id=" + traceID, "status=200"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{path: "/health", status: http.StatusOK, want: slog.LevelDebug},
		{path: "/metrics", status: http.StatusOK, want: slog.LevelDebug},
		{path: "/api/v1/traces", status: http.StatusOK, want: slog.LevelInfo},
		{path: "/api/v1/traces/x", status: http.StatusNotFound, want: slog.LevelInfo},
		{path: "/api/v1/capture", status: http.StatusBadGateway, want: slog.LevelWarn},
		{path: "/health", status: http.StatusInternalServerError, want: slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.path, tt.status); got != tt.want {
			t.Fatalf("requestLevel(%q, %d) = %v; want %v", tt.path, tt.status, got, tt.want)
		}
	}
}
