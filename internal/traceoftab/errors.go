package traceoftab

import "github.com/dgnsrekt/tabtrace/internal/apperr"

// Codes raised by Compute when a required marker is missing.
const (
	CodeNoNavigationStart      = "NO_NAVSTART"
	CodeNoFirstContentfulPaint = "NO_FCP"
)

// IsFatal reports whether err means the trace cannot be analyzed at all, as
// opposed to an infrastructure failure worth retrying.
func IsFatal(err error) bool {
	return apperr.HasCode(err, CodeNoNavigationStart) ||
		apperr.HasCode(err, CodeNoFirstContentfulPaint) ||
		apperr.HasCode(err, apperr.CodeNoTracingStarted)
}
