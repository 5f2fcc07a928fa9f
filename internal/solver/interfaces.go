package solver

import (
	"context"
	"time"
)

// PageContent is the normalized view of one quiz page, produced by the
// content extractor.
type PageContent struct {
	URL  string
	HTML string
	Text string
	// Resources are file/API URLs the page references.
	Resources []string
	// SubmitURL is the grader endpoint the page declares, if any.
	SubmitURL string
	// Instructions holds base64 payloads decoded out of script bodies.
	Instructions string
	// APIHeaders are headers the page instructs the solver to send when
	// fetching protected resources.
	APIHeaders map[string]string
	AnswerKind AnswerKind
	Rendered   bool
}

// Extractor produces normalized page content for a URL. The sub-deadline
// travels in ctx.
type Extractor interface {
	Extract(ctx context.Context, url string) (PageContent, error)
}

// Ingestor turns one referenced file URL into a NormalizedFile. It
// never fails; failures degrade to zero-confidence files.
type Ingestor interface {
	IngestURL(ctx context.Context, url string, headers map[string]string) NormalizedFile
}

// Reasoner produces a model answer for an assembled prompt.
type Reasoner interface {
	Reason(ctx context.Context, prompt string) (ModelAnswer, error)
}

// InterpretFunc parses a model answer into a Decision.
type InterpretFunc func(ModelAnswer) Decision

// GraderSubmission is the payload posted back to a quiz grader.
type GraderSubmission struct {
	Email  string      `json:"email"`
	Secret string      `json:"secret"`
	URL    string      `json:"url"`
	Answer interface{} `json:"answer"`
}

// Grader confirms a final answer with the page's declared endpoint.
type Grader interface {
	Submit(ctx context.Context, submitURL string, sub GraderSubmission) (GraderVerdict, error)
}

// Recorder receives run metrics. Implemented by the telemetry package.
type Recorder interface {
	RecordRequest(outcome Outcome, steps int, elapsed time.Duration)
	RecordRenderEscalation()
}
