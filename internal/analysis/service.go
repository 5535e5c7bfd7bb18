// Package analysis stores traces and serves memoized trace-of-tab results.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dgnsrekt/tabtrace/internal/apperr"
	"github.com/dgnsrekt/tabtrace/internal/capture"
	"github.com/dgnsrekt/tabtrace/internal/metrics"
	"github.com/dgnsrekt/tabtrace/internal/relay"
	"github.com/dgnsrekt/tabtrace/internal/storage"
	"github.com/dgnsrekt/tabtrace/internal/trace"
	"github.com/dgnsrekt/tabtrace/internal/traceoftab"
)

const defaultCacheSize = 128

// Trace sources recorded in TraceMeta.Source.
const (
	SourceUpload   = "upload"
	SourceNavigate = "navigate"
	SourceAttach   = "attach"
	SourceFile     = "file"
)

// Navigator records a fresh page load.
type Navigator interface {
	CaptureURL(ctx context.Context, url string) (*capture.Result, error)
}

// Attacher records a reload of an already open tab.
type Attacher interface {
	CaptureAttached(ctx context.Context) (*capture.Result, error)
}

// ResultWriter receives one record per successful computation.
type ResultWriter interface {
	Write(record any) error
}

// Store is the subset of storage.TraceStore the service needs.
type Store interface {
	Save(meta storage.TraceMeta, raw []byte) (storage.TraceMeta, error)
	Get(id string) (storage.TraceMeta, error)
	List() ([]storage.TraceMeta, error)
	ReadRaw(id string) ([]byte, error)
	ReadTrace(id string) (*trace.Trace, error)
	Delete(id string) error
}

// Options wires a Service. Store and Computer are required.
type Options struct {
	Store     Store
	Computer  *traceoftab.Computer
	CacheSize int
	Broker    *relay.Broker
	Results   ResultWriter
	Metrics   *metrics.Metrics
	Navigator Navigator
	Attacher  Attacher
}

// Service is safe for concurrent use.
type Service struct {
	store    Store
	computer *traceoftab.Computer
	cache    *lru.Cache[string, *traceoftab.TraceOfTab]
	flight   singleflight.Group
	// cacheMu orders the existence check before cache.Add against Delete
	// followed by cache.Remove.
	cacheMu   sync.Mutex
	broker    *relay.Broker
	results   ResultWriter
	metrics   *metrics.Metrics
	navigator Navigator
	attacher  Attacher
}

// Analysis pairs a stored trace with its trace-of-tab summary.
type Analysis struct {
	Trace   storage.TraceMeta   `json:"trace"`
	Summary *traceoftab.Summary `json:"summary,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Record is one line of the results log.
type Record struct {
	TraceID    string             `json:"trace_id"`
	Label      string             `json:"label,omitempty"`
	URL        string             `json:"url,omitempty"`
	ComputedAt time.Time          `json:"computed_at"`
	Summary    traceoftab.Summary `json:"summary"`
}

// NewService builds a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Computer == nil {
		return nil, errors.New("analysis: store and computer are required")
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, *traceoftab.TraceOfTab](size)
	if err != nil {
		return nil, fmt.Errorf("analysis: cache: %w", err)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	s := &Service{
		store:     opts.Store,
		computer:  opts.Computer,
		cache:     cache,
		broker:    opts.Broker,
		results:   opts.Results,
		metrics:   m,
		navigator: opts.Navigator,
		attacher:  opts.Attacher,
	}
	if metas, err := s.store.List(); err == nil {
		s.metrics.TracesStored.Set(float64(len(metas)))
	}
	return s, nil
}

// ImportRequest describes a trace being added to the store.
type ImportRequest struct {
	Source string
	URL    string
	Label  string
}

// ImportTrace validates raw as a trace and stores it.
func (s *Service) ImportTrace(ctx context.Context, raw []byte, req ImportRequest) (storage.TraceMeta, error) {
	if err := ctx.Err(); err != nil {
		return storage.TraceMeta{}, err
	}
	tr, err := trace.Parse(raw)
	if err != nil {
		return storage.TraceMeta{}, apperr.New(apperr.CodeInvalidTrace, "trace could not be decoded", err)
	}
	if len(tr.Events) == 0 {
		return storage.TraceMeta{}, apperr.New(apperr.CodeInvalidTrace, "trace contains no events", nil)
	}
	return s.save(raw, tr, req)
}

func (s *Service) save(raw []byte, tr *trace.Trace, req ImportRequest) (storage.TraceMeta, error) {
	if req.Source == "" {
		req.Source = SourceUpload
	}
	if req.URL == "" {
		req.URL = guessURL(tr)
	}
	meta, err := s.store.Save(storage.TraceMeta{
		ID:         storage.NewID(),
		Source:     req.Source,
		URL:        req.URL,
		Label:      strings.TrimSpace(req.Label),
		EventCount: len(tr.Events),
	}, raw)
	if err != nil {
		return storage.TraceMeta{}, fmt.Errorf("analysis: store trace: %w", err)
	}
	s.metrics.TracesStored.Inc()
	s.broker.PublishJSON(relay.FeedTraceImported, meta)
	slog.Info("Trace imported", "id", meta.ID, "source", meta.Source, "events", meta.EventCount, "url", meta.URL)
	return meta, nil
}

// TraceOfTab returns the memoized computation for a stored trace. Concurrent
// callers for the same id share one computation. Failures are not cached.
func (s *Service) TraceOfTab(ctx context.Context, id string) (*traceoftab.TraceOfTab, error) {
	if tot, ok := s.cache.Get(id); ok {
		s.metrics.CacheHits.Inc()
		return tot, nil
	}
	s.metrics.CacheMisses.Inc()

	ch := s.flight.DoChan(id, func() (any, error) {
		return s.compute(id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*traceoftab.TraceOfTab), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) compute(id string) (*traceoftab.TraceOfTab, error) {
	meta, err := s.store.Get(id)
	if err != nil {
		return nil, s.storeErr(id, err)
	}
	tr, err := s.store.ReadTrace(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
			return nil, s.storeErr(id, err)
		}
		return nil, apperr.New(apperr.CodeInvalidTrace, "stored trace could not be decoded", err)
	}

	tot, err := s.computer.Compute(tr)
	if err != nil {
		outcome := metrics.OutcomeError
		if traceoftab.IsFatal(err) {
			outcome = metrics.OutcomeFatal
		}
		s.metrics.Computations.WithLabelValues(outcome).Inc()
		slog.Warn("trace-of-tab computation failed", "id", id, "error", err)
		return nil, err
	}

	if err := s.cacheIfStored(id, tot); err != nil {
		slog.Info("trace deleted during trace-of-tab computation", "id", id)
		return nil, err
	}
	s.metrics.Computations.WithLabelValues(metrics.OutcomeOK).Inc()
	if tot.FMPFellBack {
		s.metrics.FMPFallbacks.Inc()
	}

	summary := tot.Summary(false)
	record := Record{TraceID: id, Label: meta.Label, URL: meta.URL, ComputedAt: time.Now().UTC(), Summary: summary}
	if s.results != nil {
		if err := s.results.Write(record); err != nil {
			slog.Debug("result log write skipped", "id", id, "error", err)
		}
	}
	s.broker.PublishJSON(relay.FeedTraceOfTab, record)
	slog.Info("trace-of-tab computed", "id", id, "fcp_ms", summary.Timings.FirstContentfulPaint,
		"fmp_fell_back", tot.FMPFellBack, "main_thread_events", summary.MainThreadEventCount)
	return tot, nil
}

// cacheIfStored caches tot only while the trace still exists, so a result
// finishing after DeleteTrace is dropped.
func (s *Service) cacheIfStored(id string, tot *traceoftab.TraceOfTab) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if _, err := s.store.Get(id); err != nil {
		return s.storeErr(id, err)
	}
	s.cache.Add(id, tot)
	return nil
}

// Summary computes (or fetches) the serializable view of a trace.
func (s *Service) Summary(ctx context.Context, id string, withEvents bool) (traceoftab.Summary, error) {
	tot, err := s.TraceOfTab(ctx, id)
	if err != nil {
		return traceoftab.Summary{}, err
	}
	return tot.Summary(withEvents), nil
}

// ListTraces returns stored trace metadata, newest first.
func (s *Service) ListTraces(ctx context.Context) ([]storage.TraceMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metas, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("analysis: list traces: %w", err)
	}
	return metas, nil
}

// GetTrace returns the metadata of one trace.
func (s *Service) GetTrace(ctx context.Context, id string) (storage.TraceMeta, error) {
	if err := ctx.Err(); err != nil {
		return storage.TraceMeta{}, err
	}
	meta, err := s.store.Get(id)
	if err != nil {
		return storage.TraceMeta{}, s.storeErr(id, err)
	}
	return meta, nil
}

// RawTrace returns the stored document unchanged.
func (s *Service) RawTrace(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.store.ReadRaw(id)
	if err != nil {
		return nil, s.storeErr(id, err)
	}
	return raw, nil
}

// DeleteTrace removes a trace and forgets its cached result.
func (s *Service) DeleteTrace(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cacheMu.Lock()
	err := s.store.Delete(id)
	if err == nil {
		s.cache.Remove(id)
	}
	s.cacheMu.Unlock()
	if err != nil {
		return s.storeErr(id, err)
	}
	s.flight.Forget(id)
	s.metrics.TracesStored.Dec()
	slog.Info("Trace deleted", "id", id)
	return nil
}

// CaptureURL records a page load of rawURL, stores it and analyzes it. A
// stored trace whose analysis fails is still returned with the error.
func (s *Service) CaptureURL(ctx context.Context, rawURL, label string) (Analysis, error) {
	if err := validateURL(rawURL); err != nil {
		return Analysis{}, err
	}
	if s.navigator == nil {
		return Analysis{}, apperr.New(apperr.CodeCDPUnavailable, "no browser configured for capture", nil)
	}

	started := time.Now()
	res, err := s.navigator.CaptureURL(ctx, rawURL)
	s.metrics.ObserveCapture(SourceNavigate, started)
	if err != nil {
		return Analysis{}, captureErr(err)
	}
	return s.analyzeCapture(ctx, res, ImportRequest{Source: SourceNavigate, URL: rawURL, Label: label})
}

// CaptureAttached records a reload of the configured existing tab.
func (s *Service) CaptureAttached(ctx context.Context, label string) (Analysis, error) {
	if s.attacher == nil {
		return Analysis{}, apperr.New(apperr.CodeCDPUnavailable, "no browser configured for attach", nil)
	}

	started := time.Now()
	res, err := s.attacher.CaptureAttached(ctx)
	s.metrics.ObserveCapture(SourceAttach, started)
	if err != nil {
		return Analysis{}, captureErr(err)
	}
	return s.analyzeCapture(ctx, res, ImportRequest{Source: SourceAttach, URL: res.URL, Label: label})
}

func (s *Service) analyzeCapture(ctx context.Context, res *capture.Result, req ImportRequest) (Analysis, error) {
	s.broker.PublishJSON(relay.FeedCapture, map[string]any{
		"url": res.URL, "events": len(res.Trace.Events), "data_loss": res.DataLoss, "source": req.Source,
	})
	if res.DataLoss {
		slog.Warn("trace buffer overflowed during capture", "url", res.URL)
	}
	meta, err := s.save(res.Raw, res.Trace, req)
	if err != nil {
		return Analysis{}, err
	}
	out := Analysis{Trace: meta}
	summary, err := s.Summary(ctx, meta.ID, false)
	if err != nil {
		out.Error = err.Error()
		return out, err
	}
	out.Summary = &summary
	return out, nil
}

func (s *Service) storeErr(id string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.New(apperr.CodeTraceNotFound, "trace "+id+" not found", err)
	case errors.Is(err, storage.ErrInvalidID):
		return apperr.New(apperr.CodeValidation, "trace id must be a UUID", err)
	default:
		return err
	}
}

func captureErr(err error) error {
	var coded *apperr.CodedError
	if errors.As(err, &coded) {
		return err
	}
	return apperr.New(apperr.CodeCaptureFailed, "trace capture failed", err)
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperr.New(apperr.CodeValidation, "url must be an absolute http(s) URL", err)
	}
	return nil
}

// guessURL takes the main frame URL from TracingStartedInBrowser, falling
// back to the last navigationStart document URL.
func guessURL(tr *trace.Trace) string {
	var last string
	for _, e := range tr.Events {
		switch e.Name {
		case trace.NameTracingStartedInBrowser:
			if f, ok := e.Args.TracingStarted.MainFrame(); ok && f.URL != "" {
				return f.URL
			}
		case trace.NameNavigationStart:
			if nav := e.Args.Navigation; nav != nil && nav.DocumentLoaderURL != "" {
				last = nav.DocumentLoaderURL
			}
		}
	}
	return last
}
