// Package submit posts a final answer back to the grader endpoint a
// quiz page declared. The verdict is diagnostic: it is recorded on the
// result but never overrides the interpreter's decision.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/quizchain/quizchain/internal/solver"
)

type Submitter struct {
	client *http.Client
	logger *log.Logger
}

func New(timeout time.Duration) *Submitter {
	return &Submitter{
		client: &http.Client{Timeout: timeout},
		logger: log.New(log.Writer(), "[SUBMIT] ", log.LstdFlags),
	}
}

// Submit posts sub to submitURL and parses the grader verdict.
func (s *Submitter) Submit(ctx context.Context, submitURL string, sub solver.GraderSubmission) (solver.GraderVerdict, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return solver.GraderVerdict{}, fmt.Errorf("marshal submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(body))
	if err != nil {
		return solver.GraderVerdict{}, fmt.Errorf("%w: %v", solver.ErrInvalidURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return solver.GraderVerdict{}, fmt.Errorf("%w: %v", solver.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return solver.GraderVerdict{}, fmt.Errorf("%w: grader status %d", solver.ErrNetwork, resp.StatusCode)
	}

	var verdict solver.GraderVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return solver.GraderVerdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	s.logger.Printf("grader verdict for %s: correct=%v reason=%q", sub.URL, verdict.Correct, verdict.Reason)
	return verdict, nil
}

// TypedAnswer converts a normalized answer string into the JSON value
// shape the grader expects for its declared kind.
func TypedAnswer(answer string, kind solver.AnswerKind) interface{} {
	switch kind {
	case solver.AnswerNumber:
		if i, err := strconv.ParseInt(answer, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(answer, 64); err == nil {
			return f
		}
		return answer
	case solver.AnswerBoolean:
		return answer == "true"
	case solver.AnswerJSON:
		var v interface{}
		if err := json.Unmarshal([]byte(answer), &v); err == nil {
			return v
		}
		return answer
	default:
		return answer
	}
}
