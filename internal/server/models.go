package server

// SolveRequestBody is the payload for POST /api/quiz.
type SolveRequestBody struct {
	URL string `json:"url"`
	// Email/Secret override the configured student identity for grader
	// submissions on this request only.
	Email  string `json:"email,omitempty"`
	Secret string `json:"secret,omitempty"`
}

// SolveResponse is the structured outcome of one solve run. Outcome is
// always one of success, timeout, error.
type SolveResponse struct {
	RequestID   string   `json:"request_id"`
	Outcome     string   `json:"outcome"`
	Answer      string   `json:"answer,omitempty"`
	Cause       string   `json:"cause,omitempty"`
	Steps       int      `json:"steps"`
	ElapsedMS   int64    `json:"elapsed_ms"`
	ModelsUsed  []string `json:"models_used,omitempty"`
	Transcript  string   `json:"transcript,omitempty"`
	GraderCheck *Verdict `json:"grader_check,omitempty"`
}

// Verdict mirrors the grader's confirmation response.
type Verdict struct {
	Correct bool   `json:"correct"`
	NextURL string `json:"next_url,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ConfigView is the non-sensitive configuration echo for GET /api/config.
type ConfigView struct {
	TotalBudget string   `json:"total_budget"`
	MaxSteps    int      `json:"max_steps"`
	Chain       []string `json:"chain"`
	MaxFiles    int      `json:"max_files"`
}
