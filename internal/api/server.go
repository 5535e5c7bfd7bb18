package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/tabtrace/internal/analysis"
	"github.com/dgnsrekt/tabtrace/internal/apperr"
	"github.com/dgnsrekt/tabtrace/internal/relay"
	"github.com/dgnsrekt/tabtrace/internal/storage"
	"github.com/dgnsrekt/tabtrace/internal/traceoftab"
)

type Service interface {
	ImportTrace(ctx context.Context, raw []byte, req analysis.ImportRequest) (storage.TraceMeta, error)
	ListTraces(ctx context.Context) ([]storage.TraceMeta, error)
	GetTrace(ctx context.Context, id string) (storage.TraceMeta, error)
	RawTrace(ctx context.Context, id string) ([]byte, error)
	DeleteTrace(ctx context.Context, id string) error
	Summary(ctx context.Context, id string, withEvents bool) (traceoftab.Summary, error)
	CaptureURL(ctx context.Context, url, label string) (analysis.Analysis, error)
	CaptureAttached(ctx context.Context, label string) (analysis.Analysis, error)
}

// Options adds the non-huma routes. Nil fields leave the route unmounted.
type Options struct {
	Broker  *relay.Broker
	Metrics http.Handler
}

type traceIDInput struct {
	TraceID string `path:"trace_id" doc:"Trace UUID" example:"2f1c9a0e-8d4b-4c1e-9f57-3b1d2a6c7e10"`
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("tabtrace API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(eventsDocsHTML)); err != nil {
			slog.Debug("events docs response write failed", "error", err)
		}
	})
	if opts.Broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(opts.Broker))
	}
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}

	registerMiscHandlers(api)
	registerTraceHandlers(api, svc)
	registerCaptureHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout("request timed out")
	}
	var coded *apperr.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case apperr.CodeValidation, apperr.CodeInvalidTrace:
			return huma.Error400BadRequest(coded.Message)
		case traceoftab.CodeNoNavigationStart, traceoftab.CodeNoFirstContentfulPaint, apperr.CodeNoTracingStarted:
			return huma.Error422UnprocessableEntity(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		case apperr.CodeTraceNotFound:
			return huma.Error404NotFound(coded.Message)
		case apperr.CodeCDPUnavailable, apperr.CodeCaptureFailed:
			return huma.Error502BadGateway(coded.Error())
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
