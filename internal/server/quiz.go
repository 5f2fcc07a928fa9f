package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/quizchain/quizchain/internal/solver"
)

// handleSolve accepts a quiz URL, runs the solving loop under the
// configured total budget and returns the structured outcome. All three
// terminal outcomes map to 200; the Outcome field disambiguates.
func (s *Server) handleSolve(c echo.Context) error {
	var body SolveRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	if !strings.HasPrefix(body.URL, "http://") && !strings.HasPrefix(body.URL, "https://") {
		return echo.NewHTTPError(http.StatusBadRequest, "url must be absolute http or https")
	}

	email := body.Email
	secret := body.Secret
	if email == "" {
		email = s.cfg.Auth.StudentEmail
	}
	if secret == "" {
		secret = s.cfg.Auth.StudentSecret
	}
	// The grader rejects anonymous submissions; refuse early rather than
	// burn three minutes to find out.
	if s.cfg.Auth.StudentSecret != "" && body.Secret != "" && body.Secret != s.cfg.Auth.StudentSecret {
		return echo.NewHTTPError(http.StatusForbidden, "secret mismatch")
	}

	req := solver.SolveRequest{
		ID:        uuid.NewString(),
		StartURL:  body.URL,
		Requester: email,
		Secret:    secret,
		Deadline:  time.Now().Add(s.cfg.Solver.TotalBudget),
	}
	s.logger.Printf("[%s] solve %s for %s", req.ID, req.StartURL, req.Requester)

	result := s.loop.Solve(c.Request().Context(), req)

	resp := SolveResponse{
		RequestID:  req.ID,
		Outcome:    string(result.Outcome),
		Answer:     result.FinalAnswer,
		Cause:      result.Cause,
		Steps:      result.StepCount,
		ElapsedMS:  result.Elapsed.Milliseconds(),
		ModelsUsed: result.ModelsUsed,
		Transcript: result.Transcript,
	}
	if result.Verdict != nil {
		resp.GraderCheck = &Verdict{
			Correct: result.Verdict.Correct,
			NextURL: result.Verdict.NextURL,
			Reason:  result.Verdict.Reason,
		}
	}
	return c.JSON(http.StatusOK, resp)
}
