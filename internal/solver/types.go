package solver

import (
	"errors"
	"time"
)

// Outcome classifies how a solve run ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// FileKind identifies the detected format of a referenced file.
type FileKind string

const (
	KindCSV     FileKind = "csv"
	KindPDF     FileKind = "pdf"
	KindExcel   FileKind = "excel"
	KindJSON    FileKind = "json"
	KindImage   FileKind = "image"
	KindText    FileKind = "text"
	KindUnknown FileKind = "unknown"
)

// AnswerKind is the answer format a quiz page asks for.
type AnswerKind string

const (
	AnswerNumber  AnswerKind = "number"
	AnswerString  AnswerKind = "string"
	AnswerBoolean AnswerKind = "boolean"
	AnswerJSON    AnswerKind = "json"
	AnswerBase64  AnswerKind = "base64_file"
)

// SolveRequest describes one quiz-solving run. Immutable once created;
// Deadline is absolute wall-clock time (arrival + configured budget).
type SolveRequest struct {
	ID        string    `json:"id"`
	StartURL  string    `json:"start_url"`
	Requester string    `json:"requester"`
	Secret    string    `json:"-"`
	Deadline  time.Time `json:"deadline"`
}

// StepContext is the working state of a single loop iteration. A fresh
// one is built every step; only the transcript carries across steps.
type StepContext struct {
	CurrentURL string
	RawContent string
	Files      []NormalizedFile
	StepIndex  int
	Elapsed    time.Duration
}

// NormalizedFile is the text rendering of one referenced file.
// Confidence is 0 when extraction degraded to an empty result.
type NormalizedFile struct {
	Origin     string   `json:"origin"`
	Kind       FileKind `json:"kind"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
}

// ModelAnswer is the raw output of one successful model call.
// Attempt is 1-based: which candidate in the chain produced it.
type ModelAnswer struct {
	RawText string `json:"raw_text"`
	Model   string `json:"model"`
	Attempt int    `json:"attempt"`
}

// DecisionKind tags the variant of a Decision.
type DecisionKind string

const (
	DecisionFinal      DecisionKind = "final"
	DecisionFollowUp   DecisionKind = "follow_up"
	DecisionUnresolved DecisionKind = "unresolved"
)

// Decision is the structured outcome of interpreting a model answer.
// Exactly one is produced per completed step.
type Decision struct {
	Kind      DecisionKind `json:"kind"`
	Answer    string       `json:"answer,omitempty"`
	NextURL   string       `json:"next_url,omitempty"`
	Rationale string       `json:"rationale,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

// SolveResult is the terminal result of a run. Returned once, never mutated.
type SolveResult struct {
	Outcome     Outcome       `json:"outcome"`
	FinalAnswer string        `json:"final_answer,omitempty"`
	Cause       string        `json:"cause,omitempty"`
	StepCount   int           `json:"step_count"`
	Elapsed     time.Duration `json:"elapsed"`
	Transcript  string        `json:"transcript,omitempty"`
	ModelsUsed  []string      `json:"models_used,omitempty"`
	Verdict     *GraderVerdict `json:"verdict,omitempty"`
}

// GraderVerdict records the response of a quiz grader endpoint when the
// final answer was submitted back. Diagnostic only; it never changes the
// loop's decision.
type GraderVerdict struct {
	Correct bool   `json:"correct"`
	NextURL string `json:"url,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Failure taxonomy. Content and file failures degrade locally; the rest
// terminate the run with a structured outcome.
var (
	ErrNetwork             = errors.New("network error")
	ErrRenderTimeout       = errors.New("render timeout")
	ErrModelTimeout        = errors.New("model timeout")
	ErrInvalidURL          = errors.New("invalid url")
	ErrUnsupportedFileKind = errors.New("unsupported file kind")
	ErrAllModelsFailed     = errors.New("all models failed")
	ErrCycleDetected       = errors.New("cycle detected")
	ErrInvalidFollowUp     = errors.New("invalid follow-up url")
)
