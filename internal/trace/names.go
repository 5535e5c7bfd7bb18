package trace

// Lifecycle marker names emitted by the renderer.
const (
	NameNavigationStart               = "navigationStart"
	NameFirstPaint                    = "firstPaint"
	NameFirstContentfulPaint          = "firstContentfulPaint"
	NameFirstMeaningfulPaint          = "firstMeaningfulPaint"
	NameFirstMeaningfulPaintCandidate = "firstMeaningfulPaintCandidate"
	NameLoadEventEnd                  = "loadEventEnd"
	NameDomContentLoadedEventEnd      = "domContentLoadedEventEnd"
)

// Events used to discover which process, thread and frame belong to the tab.
const (
	NameTracingStartedInBrowser = "TracingStartedInBrowser"
	NameTracingStartedInPage    = "TracingStartedInPage"
	NameResourceSendRequest     = "ResourceSendRequest"
	NameThreadName              = "thread_name"
	NameProcessName             = "process_name"

	ThreadCrRendererMain = "CrRendererMain"
)

// Categories.
const (
	CategoryUserTiming       = "blink.user_timing"
	CategoryLoading          = "loading"
	CategoryDevtoolsTimeline = "devtools.timeline"
	CategoryMetadata         = "__metadata"

	disabledByDefaultPrefix = "disabled-by-default-"
)

// DisabledByDefault returns the opt-in variant of a category.
func DisabledByDefault(category string) string {
	return disabledByDefaultPrefix + category
}

// Phases.
const (
	PhaseComplete = "X"
	PhaseInstant  = "I"
	PhaseMark     = "R"
	PhaseMetadata = "M"
)
