package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tabtrace/internal/analysis"
)

type analysisOutput struct {
	Body analysis.Analysis
}

// captureResponse keeps a stored trace reachable when only its analysis
// failed: the trace id is returned alongside the error status.
func captureResponse(result analysis.Analysis, err error) (*analysisOutput, error) {
	if err == nil {
		return &analysisOutput{Body: result}, nil
	}
	mapped := mapErr(err)
	if result.Trace.ID == "" {
		return nil, mapped
	}
	status := http.StatusInternalServerError
	var se huma.StatusError
	if errors.As(mapped, &se) {
		status = se.GetStatus()
	}
	return nil, huma.NewError(status, result.Error, &huma.ErrorDetail{
		Message:  "trace stored without analysis",
		Location: "trace_id",
		Value:    result.Trace.ID,
	})
}

func registerCaptureHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "capture-url",
		Method:        http.MethodPost,
		Path:          "/api/v1/capture",
		Summary:       "Capture and analyze a page load",
		Description:   "Opens a new tab, records a trace while loading the URL, stores it and computes the trace of tab.",
		Tags:          []string{"Capture"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			URL   string `json:"url" doc:"Absolute http(s) URL to load" example:"https://example.com/"`
			Label string `json:"label,omitempty" doc:"Free-form label stored with the trace"`
		}
	}) (*analysisOutput, error) {
		return captureResponse(svc.CaptureURL(ctx, input.Body.URL, input.Body.Label))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "capture-attached",
		Method:        http.MethodPost,
		Path:          "/api/v1/capture/attach",
		Summary:       "Capture a reload of an open tab",
		Description:   "Attaches to the first open tab matching the configured URL filter, reloads it while tracing, stores and analyzes the trace.",
		Tags:          []string{"Capture"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Label string `json:"label,omitempty" doc:"Free-form label stored with the trace"`
		} `required:"false"`
	}) (*analysisOutput, error) {
		return captureResponse(svc.CaptureAttached(ctx, input.Body.Label))
	})
}
