package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tabtrace/internal/analysis"
	"github.com/dgnsrekt/tabtrace/internal/storage"
	"github.com/dgnsrekt/tabtrace/internal/traceoftab"
)

const maxTraceBytes = 512 << 20

func registerTraceHandlers(api huma.API, svc Service) {
	type listTracesOutput struct {
		Body struct {
			Traces []storage.TraceMeta `json:"traces"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-traces", Method: http.MethodGet, Path: "/api/v1/traces", Summary: "List stored traces", Tags: []string{"Traces"}},
		func(ctx context.Context, input *struct{}) (*listTracesOutput, error) {
			traces, err := svc.ListTraces(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listTracesOutput{}
			out.Body.Traces = traces
			return out, nil
		})

	type traceMetaOutput struct {
		Body storage.TraceMeta
	}
	huma.Register(api, huma.Operation{
		OperationID:   "import-trace",
		Method:        http.MethodPost,
		Path:          "/api/v1/traces",
		Summary:       "Import a trace",
		Description:   "Stores a Chrome trace. The body is either a JSON array of trace events or an object with a traceEvents array.",
		Tags:          []string{"Traces"},
		MaxBodyBytes:  maxTraceBytes,
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Label   string `query:"label" doc:"Free-form label stored with the trace"`
		URL     string `query:"url" doc:"Page URL; guessed from the trace when omitted"`
		RawBody []byte
	}) (*traceMetaOutput, error) {
		meta, err := svc.ImportTrace(ctx, input.RawBody, analysis.ImportRequest{
			Source: analysis.SourceUpload,
			URL:    input.URL,
			Label:  input.Label,
		})
		if err != nil {
			return nil, mapErr(err)
		}
		return &traceMetaOutput{Body: meta}, nil
	})

	huma.Register(api, huma.Operation{OperationID: "get-trace", Method: http.MethodGet, Path: "/api/v1/traces/{trace_id}", Summary: "Get trace metadata", Tags: []string{"Traces"}},
		func(ctx context.Context, input *traceIDInput) (*traceMetaOutput, error) {
			meta, err := svc.GetTrace(ctx, input.TraceID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &traceMetaOutput{Body: meta}, nil
		})

	type deleteTraceOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-trace", Method: http.MethodDelete, Path: "/api/v1/traces/{trace_id}", Summary: "Delete trace", Tags: []string{"Traces"}},
		func(ctx context.Context, input *traceIDInput) (*deleteTraceOutput, error) {
			if err := svc.DeleteTrace(ctx, input.TraceID); err != nil {
				return nil, mapErr(err)
			}
			out := &deleteTraceOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})

	type rawTraceOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-trace-raw",
		Method:      http.MethodGet,
		Path:        "/api/v1/traces/{trace_id}/raw",
		Summary:     "Download the stored trace",
		Tags:        []string{"Traces"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Trace document as uploaded or captured",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *traceIDInput) (*rawTraceOutput, error) {
		data, err := svc.RawTrace(ctx, input.TraceID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &rawTraceOutput{ContentType: "application/json", Body: data}, nil
	})

	type summaryOutput struct {
		Body traceoftab.Summary
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-trace-of-tab",
		Method:      http.MethodGet,
		Path:        "/api/v1/traces/{trace_id}/trace-of-tab",
		Summary:     "Compute trace of tab",
		Description: "Finds navigation start, paint and load markers for the traced tab. Results are cached per trace. Returns 422 when the trace lacks a navigation start, a first contentful paint or a tracing-started marker.",
		Tags:        []string{"Analysis"},
	}, func(ctx context.Context, input *struct {
		TraceID string `path:"trace_id"`
		Events  string `query:"events" enum:"none,main_thread" default:"none" doc:"main_thread adds main thread event names in order"`
	}) (*summaryOutput, error) {
		summary, err := svc.Summary(ctx, input.TraceID, input.Events == "main_thread")
		if err != nil {
			return nil, mapErr(err)
		}
		return &summaryOutput{Body: summary}, nil
	})
}
