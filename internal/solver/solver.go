package solver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/quizchain/quizchain/config"
)

// state of the per-step machine. One transition per step; the deadline
// is checked at every state entry.
type state int

const (
	stateExtracting state = iota
	stateReasoning
	stateInterpreting
	stateTerminated
)

// Deps are the collaborators a Loop drives. Grader, Recorder, Normalize
// and TypedAnswer are optional.
type Deps struct {
	Extractor Extractor
	Ingestor  Ingestor
	Reasoner  Reasoner
	Interpret InterpretFunc
	// Normalize coerces a FINAL answer into the page's declared kind.
	Normalize func(answer string, kind AnswerKind) string
	// TypedAnswer converts a normalized answer into the JSON value the
	// grader expects.
	TypedAnswer func(answer string, kind AnswerKind) interface{}
	Grader      Grader
	Recorder    Recorder
}

// Loop drives the solving chain. It is the only component allowed to
// decide termination: collaborators are pure functions of their inputs
// with no knowledge of the global deadline beyond the ctx they receive.
type Loop struct {
	cfg      config.SolverConfig
	deps     Deps
	logger   *log.Logger
	now      func() time.Time
	maxFiles int
}

// NewLoop wires a Loop.
func NewLoop(cfg config.SolverConfig, maxFiles int, deps Deps) *Loop {
	if maxFiles <= 0 {
		maxFiles = 8
	}
	return &Loop{
		cfg:      cfg,
		deps:     deps,
		logger:   log.New(log.Writer(), "[SOLVER] ", log.LstdFlags),
		now:      time.Now,
		maxFiles: maxFiles,
	}
}

// Solve runs the chain for req and always returns a structured result:
// success, timeout, or error with a cause. It returns before
// req.Deadline plus scheduling overhead regardless of collaborator
// behavior, because every external call runs under a context bounded by
// the deadline.
func (l *Loop) Solve(ctx context.Context, req SolveRequest) SolveResult {
	start := l.now()
	runCtx, cancel := context.WithDeadline(ctx, req.Deadline)
	defer cancel()

	visited := map[string]struct{}{req.StartURL: {}}
	var transcript strings.Builder
	var modelsUsed []string

	current := req.StartURL
	step := 0

	var page PageContent
	var files []NormalizedFile
	var answer ModelAnswer
	var result SolveResult

	terminate := func(outcome Outcome, finalAnswer, cause string) {
		result = SolveResult{
			Outcome:     outcome,
			FinalAnswer: finalAnswer,
			Cause:       cause,
			StepCount:   step,
			Elapsed:     l.now().Sub(start),
			Transcript:  transcript.String(),
			ModelsUsed:  modelsUsed,
		}
	}

	st := stateExtracting
	for st != stateTerminated {
		remaining := req.Deadline.Sub(l.now())

		switch st {
		case stateExtracting:
			// A step only starts when the remaining budget covers at
			// least one extraction and one model call.
			if remaining < l.cfg.MinStepCost {
				terminate(OutcomeTimeout, "", fmt.Sprintf("budget exhausted after %d steps", step))
				st = stateTerminated
				continue
			}
			if l.cfg.MaxSteps > 0 && step >= l.cfg.MaxSteps {
				terminate(OutcomeError, "", fmt.Sprintf("step limit %d reached", l.cfg.MaxSteps))
				st = stateTerminated
				continue
			}

			var err error
			page, err = l.extractStep(runCtx, current, remaining)
			if err != nil {
				if runCtx.Err() != nil {
					terminate(OutcomeTimeout, "", fmt.Sprintf("deadline reached while extracting %s", current))
				} else {
					terminate(OutcomeError, "", fmt.Sprintf("extraction failed for %s: %v", current, err))
				}
				st = stateTerminated
				continue
			}
			files = l.ingestStep(runCtx, page, remaining)
			st = stateReasoning

		case stateReasoning:
			if remaining <= 0 {
				terminate(OutcomeTimeout, "", "deadline reached before reasoning")
				st = stateTerminated
				continue
			}
			prompt := BuildPrompt(page, files, transcript.String())
			var err error
			answer, err = l.deps.Reasoner.Reason(runCtx, prompt)
			if err != nil {
				if runCtx.Err() != nil {
					terminate(OutcomeTimeout, "", fmt.Sprintf("deadline reached while reasoning at step %d", step))
				} else {
					terminate(OutcomeError, "", fmt.Sprintf("step %d unresolved: %v", step, err))
				}
				st = stateTerminated
				continue
			}
			modelsUsed = append(modelsUsed, answer.Model)
			st = stateInterpreting

		case stateInterpreting:
			if remaining <= 0 {
				terminate(OutcomeTimeout, "", "deadline reached before interpreting")
				st = stateTerminated
				continue
			}
			decision := l.deps.Interpret(answer)
			fmt.Fprintf(&transcript, "Step %d (%s): decision=%s\n", step, current, decision.Kind)

			switch decision.Kind {
			case DecisionFinal:
				answerText := decision.Answer
				if l.deps.Normalize != nil {
					answerText = l.deps.Normalize(answerText, page.AnswerKind)
				}
				terminate(OutcomeSuccess, answerText, "")
				if l.deps.Grader != nil && page.SubmitURL != "" {
					result.Verdict = l.confirm(runCtx, req, page, answerText)
				}
				st = stateTerminated

			case DecisionFollowUp:
				next := decision.NextURL
				if next == current {
					terminate(OutcomeError, "", fmt.Sprintf("%v: follow-up repeats current url %s", ErrCycleDetected, next))
					st = stateTerminated
					continue
				}
				if _, seen := visited[next]; seen {
					terminate(OutcomeError, "", fmt.Sprintf("%v: %s already visited", ErrCycleDetected, next))
					st = stateTerminated
					continue
				}
				if !validFollowUp(next) {
					terminate(OutcomeError, "", fmt.Sprintf("%v: %s", ErrInvalidFollowUp, next))
					st = stateTerminated
					continue
				}
				if decision.Rationale != "" {
					fmt.Fprintf(&transcript, "Rationale: %s\n", decision.Rationale)
				}
				visited[next] = struct{}{}
				current = next
				step++
				l.logger.Printf("[%s] step %d: following %s", req.ID, step, next)
				st = stateExtracting

			default: // Unresolved always terminates
				terminate(OutcomeError, "", decision.Reason)
				st = stateTerminated
			}
		}
	}

	l.logger.Printf("[%s] done: outcome=%s steps=%d elapsed=%s cause=%q",
		req.ID, result.Outcome, result.StepCount, result.Elapsed.Round(time.Millisecond), result.Cause)
	if l.deps.Recorder != nil {
		l.deps.Recorder.RecordRequest(result.Outcome, result.StepCount, result.Elapsed)
	}
	return result
}

// extractStep runs content extraction under a proportional sub-deadline,
// retrying once on transient network failure. A render timeout is not a
// failure: the best-effort static content is used.
func (l *Loop) extractStep(ctx context.Context, url string, remaining time.Duration) (PageContent, error) {
	subCtx, cancel := context.WithTimeout(ctx, remaining/3)
	defer cancel()

	page, err := l.deps.Extractor.Extract(subCtx, url)
	if err != nil && errors.Is(err, ErrNetwork) {
		l.logger.Printf("transient extraction failure for %s, retrying once: %v", url, err)
		page, err = l.deps.Extractor.Extract(subCtx, url)
	}
	if err != nil && errors.Is(err, ErrRenderTimeout) {
		// Best-effort static content came back alongside the error.
		if l.deps.Recorder != nil {
			l.deps.Recorder.RecordRenderEscalation()
		}
		return page, nil
	}
	if err == nil && page.Rendered && l.deps.Recorder != nil {
		l.deps.Recorder.RecordRenderEscalation()
	}
	return page, err
}

// ingestStep normalizes each referenced file under its own bound. A
// failed file contributes an empty zero-confidence entry; it never
// aborts the step.
func (l *Loop) ingestStep(ctx context.Context, page PageContent, remaining time.Duration) []NormalizedFile {
	resources := page.Resources
	if len(resources) > l.maxFiles {
		resources = resources[:l.maxFiles]
	}
	files := make([]NormalizedFile, 0, len(resources))
	for _, res := range resources {
		fileCtx, cancel := context.WithTimeout(ctx, remaining/6)
		files = append(files, l.deps.Ingestor.IngestURL(fileCtx, res, page.APIHeaders))
		cancel()
	}
	return files
}

// confirm posts the final answer to the page's grader endpoint.
// Best-effort and diagnostic only.
func (l *Loop) confirm(ctx context.Context, req SolveRequest, page PageContent, answer string) *GraderVerdict {
	var typed interface{} = answer
	if l.deps.TypedAnswer != nil {
		typed = l.deps.TypedAnswer(answer, page.AnswerKind)
	}
	verdict, err := l.deps.Grader.Submit(ctx, page.SubmitURL, GraderSubmission{
		Email:  req.Requester,
		Secret: req.Secret,
		URL:    page.URL,
		Answer: typed,
	})
	if err != nil {
		l.logger.Printf("[%s] grader confirmation failed: %v", req.ID, err)
		return nil
	}
	return &verdict
}

func validFollowUp(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
