package reason

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/quizchain/quizchain/config"
	"github.com/quizchain/quizchain/internal/solver"
)

// Candidate is one provider/model pair in the escalation order.
type Candidate struct {
	Name     string // "provider/model", used for logging and traceability
	Model    string
	Provider Provider
}

// Chain tries a fixed ordered list of models. One attempt per model
// with a per-call timeout; a failure escalates to the next candidate.
// Escalation is the retry strategy — the same model is never re-invoked,
// which keeps worst-case latency linear in the chain length.
type Chain struct {
	candidates  []Candidate
	callTimeout time.Duration
	logger      *log.Logger
	record      func(model string, success bool, latency time.Duration)
}

// SetRecorder installs a per-call metrics hook. Optional.
func (c *Chain) SetRecorder(record func(model string, success bool, latency time.Duration)) {
	c.record = record
}

// NewChain builds the candidate list from configuration. Chain entries
// naming providers without credentials are skipped so one config file
// works in environments with only a subset of keys.
func NewChain(cfg config.LLMConfig) (*Chain, error) {
	opts := Options{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
	logger := log.New(log.Writer(), "[REASON] ", log.LstdFlags)

	providers := map[string]Provider{}
	for name, pc := range cfg.Providers {
		p, err := NewProvider(name, pc, opts)
		if err != nil {
			return nil, err
		}
		providers[name] = p
	}

	var candidates []Candidate
	for _, entry := range cfg.Chain {
		providerName, model, ok := config.SplitChainEntry(entry)
		if !ok {
			return nil, fmt.Errorf("malformed chain entry %q", entry)
		}
		p, exists := providers[providerName]
		if !exists {
			logger.Printf("skipping chain entry %s: provider %s not configured", entry, providerName)
			continue
		}
		candidates = append(candidates, Candidate{Name: entry, Model: model, Provider: p})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no usable chain candidates")
	}
	return &Chain{candidates: candidates, callTimeout: cfg.CallTimeout, logger: logger}, nil
}

// NewChainWithCandidates wires an explicit candidate list; used by tests
// and anywhere the config indirection is unwanted.
func NewChainWithCandidates(candidates []Candidate, callTimeout time.Duration) *Chain {
	return &Chain{
		candidates:  candidates,
		callTimeout: callTimeout,
		logger:      log.New(log.Writer(), "[REASON] ", log.LstdFlags),
	}
}

// Reason produces a ModelAnswer for prompt, or solver.ErrAllModelsFailed
// once every candidate has been tried. The answer records which model
// produced it and its 1-based position in the chain.
func (c *Chain) Reason(ctx context.Context, prompt string) (solver.ModelAnswer, error) {
	var lastErr error
	for i, cand := range c.candidates {
		if ctx.Err() != nil {
			break
		}
		timeout := c.callTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if timeout <= 0 {
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		callStart := time.Now()
		text, err := cand.Provider.Complete(callCtx, cand.Model, prompt)
		cancel()
		if c.record != nil {
			c.record(cand.Model, err == nil, time.Since(callStart))
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %s", solver.ErrModelTimeout, cand.Name)
			}
			c.logger.Printf("candidate %d/%d (%s) failed: %v", i+1, len(c.candidates), cand.Name, err)
			lastErr = err
			continue
		}
		return solver.ModelAnswer{RawText: text, Model: cand.Model, Attempt: i + 1}, nil
	}
	if lastErr != nil {
		return solver.ModelAnswer{}, fmt.Errorf("%w: last error: %v", solver.ErrAllModelsFailed, lastErr)
	}
	return solver.ModelAnswer{}, solver.ErrAllModelsFailed
}
