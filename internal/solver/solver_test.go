package solver

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/quizchain/quizchain/config"
)

type extractorStub struct {
	pages map[string]PageContent
	errs  map[string]error
	calls []string
	// block makes Extract wait for ctx cancellation before failing.
	block bool
}

func (e *extractorStub) Extract(ctx context.Context, url string) (PageContent, error) {
	e.calls = append(e.calls, url)
	if e.block {
		<-ctx.Done()
		return PageContent{}, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
	}
	if err, ok := e.errs[url]; ok {
		return PageContent{}, err
	}
	return e.pages[url], nil
}

type ingestorStub struct {
	files map[string]NormalizedFile
	calls []string
}

func (i *ingestorStub) IngestURL(ctx context.Context, url string, headers map[string]string) NormalizedFile {
	i.calls = append(i.calls, url)
	if f, ok := i.files[url]; ok {
		return f
	}
	return NormalizedFile{Origin: url, Kind: KindUnknown, Confidence: 0}
}

type reasonerStub struct {
	answers []ModelAnswer
	err     error
	calls   int
}

func (r *reasonerStub) Reason(ctx context.Context, prompt string) (ModelAnswer, error) {
	if r.err != nil {
		return ModelAnswer{}, r.err
	}
	a := r.answers[r.calls%len(r.answers)]
	r.calls++
	return a, nil
}

type graderStub struct {
	verdict GraderVerdict
	err     error
	got     GraderSubmission
	gotURL  string
}

func (g *graderStub) Submit(ctx context.Context, submitURL string, sub GraderSubmission) (GraderVerdict, error) {
	g.gotURL = submitURL
	g.got = sub
	return g.verdict, g.err
}

func markerInterpret(ans ModelAnswer) Decision {
	text := strings.TrimSpace(ans.RawText)
	switch {
	case strings.HasPrefix(text, "FINAL:"):
		return Decision{Kind: DecisionFinal, Answer: strings.TrimSpace(strings.TrimPrefix(text, "FINAL:"))}
	case strings.HasPrefix(text, "FOLLOW:"):
		return Decision{Kind: DecisionFollowUp, NextURL: strings.TrimSpace(strings.TrimPrefix(text, "FOLLOW:"))}
	default:
		return Decision{Kind: DecisionUnresolved, Reason: "unparseable model output"}
	}
}

func testCfg() config.SolverConfig {
	return config.SolverConfig{
		TotalBudget: time.Minute,
		MinStepCost: 10 * time.Millisecond,
		MaxSteps:    20,
	}
}

func testReq() SolveRequest {
	return SolveRequest{
		ID:        "req-1",
		StartURL:  "https://quiz.example/start",
		Requester: "student@example.com",
		Secret:    "s3cret",
		Deadline:  time.Now().Add(time.Minute),
	}
}

func TestSolveFinalAnswer(t *testing.T) {
	ext := &extractorStub{pages: map[string]PageContent{
		"https://quiz.example/start": {URL: "https://quiz.example/start", Text: "What is 2+2?", AnswerKind: AnswerNumber},
	}}
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "FINAL: 4", Model: "m1", Attempt: 1}}},
		Interpret: markerInterpret,
	})

	res := loop.Solve(context.Background(), testReq())
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success (cause %q)", res.Outcome, res.Cause)
	}
	if res.FinalAnswer != "4" {
		t.Fatalf("final answer = %q, want 4", res.FinalAnswer)
	}
	if res.StepCount != 0 {
		t.Fatalf("step count = %d, want 0", res.StepCount)
	}
	if len(res.ModelsUsed) != 1 || res.ModelsUsed[0] != "m1" {
		t.Fatalf("models used = %v", res.ModelsUsed)
	}
}

func TestSolveFollowUpChain(t *testing.T) {
	ext := &extractorStub{pages: map[string]PageContent{
		"https://quiz.example/start": {URL: "https://quiz.example/start", Text: "go to page two"},
		"https://quiz.example/two":   {URL: "https://quiz.example/two", Text: "What is the capital of France?"},
	}}
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner: &reasonerStub{answers: []ModelAnswer{
			{RawText: "FOLLOW: https://quiz.example/two", Model: "m1"},
			{RawText: "FINAL: Paris", Model: "m1"},
		}},
		Interpret: markerInterpret,
	})

	res := loop.Solve(context.Background(), testReq())
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success (cause %q)", res.Outcome, res.Cause)
	}
	if res.FinalAnswer != "Paris" {
		t.Fatalf("final answer = %q", res.FinalAnswer)
	}
	if res.StepCount != 1 {
		t.Fatalf("step count = %d, want 1", res.StepCount)
	}
	if len(ext.calls) != 2 {
		t.Fatalf("extractor calls = %v, want both pages", ext.calls)
	}
	if !strings.Contains(res.Transcript, "follow_up") {
		t.Fatalf("transcript missing follow-up record: %q", res.Transcript)
	}
}

func TestSolveCycleDetected(t *testing.T) {
	ext := &extractorStub{pages: map[string]PageContent{
		"https://quiz.example/start": {URL: "https://quiz.example/start", Text: "loop"},
	}}
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "FOLLOW: https://quiz.example/start", Model: "m1"}}},
		Interpret: markerInterpret,
	})

	res := loop.Solve(context.Background(), testReq())
	if res.Outcome != OutcomeError {
		t.Fatalf("outcome = %s, want error", res.Outcome)
	}
	if !strings.Contains(res.Cause, "cycle") {
		t.Fatalf("cause = %q, want cycle mention", res.Cause)
	}
}

func TestSolveInvalidFollowUp(t *testing.T) {
	ext := &extractorStub{pages: map[string]PageContent{
		"https://quiz.example/start": {URL: "https://quiz.example/start", Text: "page"},
	}}
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "FOLLOW: ftp://quiz.example/next", Model: "m1"}}},
		Interpret: markerInterpret,
	})

	res := loop.Solve(context.Background(), testReq())
	if res.Outcome != OutcomeError {
		t.Fatalf("outcome = %s, want error", res.Outcome)
	}
	if !strings.Contains(res.Cause, "invalid follow-up") {
		t.Fatalf("cause = %q", res.Cause)
	}
}

func TestSolveUnparseableOutput(t *testing.T) {
	ext := &extractorStub{pages: map[string]PageContent{
		"https://quiz.example/start": {URL: "https://quiz.example/start", Text: "page"},
	}}
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "I think the answer might be 4.", Model: "m1"}}},
		Interpret: markerInterpret,
	})

	res := loop.Solve(context.Background(), testReq())
	if res.Outcome != OutcomeError {
		t.Fatalf("outcome = %s, want error", res.Outcome)
	}
	if !strings.Contains(res.Cause, "unparseable") {
		t.Fatalf("cause = %q", res.Cause)
	}
}

func TestSolveExhaustedBudgetBeforeStep(t *testing.T) {
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: &extractorStub{},
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "FINAL: 4"}}},
		Interpret: markerInterpret,
	})

	req := testReq()
	req.Deadline = time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)

	res := loop.Solve(context.Background(), req)
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("outcome = %s, want timeout", res.Outcome)
	}
	if res.StepCount != 0 {
		t.Fatalf("step count = %d, want 0", res.StepCount)
	}
}

func TestSolveDeadlineBoundsBlockingExtractor(t *testing.T) {
	loop := NewLoop(config.SolverConfig{
		TotalBudget: 50 * time.Millisecond,
		MinStepCost: time.Millisecond,
		MaxSteps:    20,
	}, 8, Deps{
		Extractor: &extractorStub{block: true},
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "FINAL: 4"}}},
		Interpret: markerInterpret,
	})

	req := testReq()
	req.Deadline = time.Now().Add(50 * time.Millisecond)

	start := time.Now()
	res := loop.Solve(context.Background(), req)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("solve ran %s past a 50ms deadline", elapsed)
	}
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("outcome = %s, want timeout (cause %q)", res.Outcome, res.Cause)
	}
}

func TestSolveReasonerFailureIsError(t *testing.T) {
	ext := &extractorStub{pages: map[string]PageContent{
		"https://quiz.example/start": {URL: "https://quiz.example/start", Text: "page"},
	}}
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{err: ErrAllModelsFailed},
		Interpret: markerInterpret,
	})

	res := loop.Solve(context.Background(), testReq())
	if res.Outcome != OutcomeError {
		t.Fatalf("outcome = %s, want error", res.Outcome)
	}
	if !strings.Contains(res.Cause, "all models failed") {
		t.Fatalf("cause = %q", res.Cause)
	}
}

func TestSolveExtractRetriesOnceOnNetworkError(t *testing.T) {
	ext := &extractorStub{errs: map[string]error{
		"https://quiz.example/start": fmt.Errorf("%w: connection refused", ErrNetwork),
	}}
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "FINAL: 4"}}},
		Interpret: markerInterpret,
	})

	res := loop.Solve(context.Background(), testReq())
	if res.Outcome != OutcomeError {
		t.Fatalf("outcome = %s, want error", res.Outcome)
	}
	if len(ext.calls) != 2 {
		t.Fatalf("extractor calls = %d, want retry (2)", len(ext.calls))
	}
}

func TestSolveIngestsReferencedFilesUpToCap(t *testing.T) {
	resources := []string{
		"https://quiz.example/a.csv",
		"https://quiz.example/b.pdf",
		"https://quiz.example/c.json",
	}
	ext := &extractorStub{pages: map[string]PageContent{
		"https://quiz.example/start": {URL: "https://quiz.example/start", Text: "sum the files", Resources: resources},
	}}
	ing := &ingestorStub{files: map[string]NormalizedFile{
		"https://quiz.example/a.csv": {Origin: "https://quiz.example/a.csv", Kind: KindCSV, Text: "1\t2", Confidence: 1},
	}}
	loop := NewLoop(testCfg(), 2, Deps{
		Extractor: ext,
		Ingestor:  ing,
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "FINAL: 3"}}},
		Interpret: markerInterpret,
	})

	res := loop.Solve(context.Background(), testReq())
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s (cause %q)", res.Outcome, res.Cause)
	}
	if len(ing.calls) != 2 {
		t.Fatalf("ingestor calls = %v, want capped at 2", ing.calls)
	}
}

func TestSolveNormalizesFinalAnswer(t *testing.T) {
	ext := &extractorStub{pages: map[string]PageContent{
		"https://quiz.example/start": {URL: "https://quiz.example/start", Text: "count", AnswerKind: AnswerNumber},
	}}
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "FINAL: The answer is 42."}}},
		Interpret: markerInterpret,
		Normalize: func(answer string, kind AnswerKind) string {
			if kind == AnswerNumber {
				return "42"
			}
			return answer
		},
	})

	res := loop.Solve(context.Background(), testReq())
	if res.FinalAnswer != "42" {
		t.Fatalf("final answer = %q, want normalized 42", res.FinalAnswer)
	}
}

func TestSolveGraderConfirmationIsDiagnostic(t *testing.T) {
	ext := &extractorStub{pages: map[string]PageContent{
		"https://quiz.example/start": {
			URL:        "https://quiz.example/start",
			Text:       "What is 2+2?",
			SubmitURL:  "https://quiz.example/grade",
			AnswerKind: AnswerNumber,
		},
	}}
	grader := &graderStub{verdict: GraderVerdict{Correct: false, Reason: "wrong"}}
	loop := NewLoop(testCfg(), 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner:  &reasonerStub{answers: []ModelAnswer{{RawText: "FINAL: 5"}}},
		Interpret: markerInterpret,
		Grader:    grader,
	})

	res := loop.Solve(context.Background(), testReq())
	// An incorrect verdict never flips the outcome.
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success", res.Outcome)
	}
	if res.Verdict == nil || res.Verdict.Correct {
		t.Fatalf("verdict = %+v, want recorded incorrect verdict", res.Verdict)
	}
	if grader.gotURL != "https://quiz.example/grade" {
		t.Fatalf("grader url = %q", grader.gotURL)
	}
	if grader.got.Email != "student@example.com" || grader.got.Secret != "s3cret" {
		t.Fatalf("grader credentials = %+v", grader.got)
	}
}

func TestSolveDeterministicAcrossRuns(t *testing.T) {
	build := func() *Loop {
		return NewLoop(testCfg(), 8, Deps{
			Extractor: &extractorStub{pages: map[string]PageContent{
				"https://quiz.example/start": {URL: "https://quiz.example/start", Text: "go on"},
				"https://quiz.example/two":   {URL: "https://quiz.example/two", Text: "answer"},
			}},
			Ingestor: &ingestorStub{},
			Reasoner: &reasonerStub{answers: []ModelAnswer{
				{RawText: "FOLLOW: https://quiz.example/two", Model: "m1"},
				{RawText: "FINAL: done", Model: "m1"},
			}},
			Interpret: markerInterpret,
		})
	}

	a := build().Solve(context.Background(), testReq())
	b := build().Solve(context.Background(), testReq())
	if a.Outcome != b.Outcome || a.FinalAnswer != b.FinalAnswer || a.StepCount != b.StepCount || a.Transcript != b.Transcript {
		t.Fatalf("runs diverged: %+v vs %+v", a, b)
	}
}

func TestSolveStepLimit(t *testing.T) {
	// Every page points at a fresh URL; the loop must stop at MaxSteps.
	next := 0
	ext := &extractorStub{pages: map[string]PageContent{}}
	reasoner := &reasonerStub{answers: []ModelAnswer{{RawText: "placeholder"}}}
	cfg := testCfg()
	cfg.MaxSteps = 3
	loop := NewLoop(cfg, 8, Deps{
		Extractor: ext,
		Ingestor:  &ingestorStub{},
		Reasoner:  reasoner,
		Interpret: func(ans ModelAnswer) Decision {
			next++
			return Decision{Kind: DecisionFollowUp, NextURL: fmt.Sprintf("https://quiz.example/p%d", next)}
		},
	})

	res := loop.Solve(context.Background(), testReq())
	if res.Outcome != OutcomeError {
		t.Fatalf("outcome = %s, want error", res.Outcome)
	}
	if !strings.Contains(res.Cause, "step limit") {
		t.Fatalf("cause = %q", res.Cause)
	}
	if res.StepCount != cfg.MaxSteps {
		t.Fatalf("step count = %d, want %d", res.StepCount, cfg.MaxSteps)
	}
}
