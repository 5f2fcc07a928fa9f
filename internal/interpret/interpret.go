// Package interpret turns free-text model output into a structured
// Decision. Parsing is strict by design: a small marker grammar with an
// explicit Unresolved fallback, never best-effort guessing, so the loop
// cannot silently follow malformed or hallucinated URLs.
package interpret

import (
	"net/url"
	"strings"

	"github.com/quizchain/quizchain/internal/solver"
)

const (
	finalMarker  = "FINAL:"
	followMarker = "FOLLOW:"
)

// Interpret parses ans into exactly one Decision.
//
// Grammar: the first line bearing a recognized marker wins.
//
//	FINAL: <answer text, may continue on following lines>
//	FOLLOW: <absolute http(s) url>
//
// Anything else, including a FOLLOW with an invalid URL, is Unresolved.
func Interpret(ans solver.ModelAnswer) solver.Decision {
	text := stripFences(ans.RawText)
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, finalMarker):
			answer := strings.TrimSpace(trimmed[len(finalMarker):])
			if answer == "" && i+1 < len(lines) {
				answer = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			} else if rest := strings.TrimSpace(strings.Join(lines[i+1:], "\n")); rest != "" && answer != "" {
				// Multi-line final answers keep their continuation.
				answer = answer + "\n" + rest
			}
			if answer == "" {
				return unresolved("empty FINAL answer")
			}
			return solver.Decision{Kind: solver.DecisionFinal, Answer: answer}

		case strings.HasPrefix(trimmed, followMarker):
			raw := strings.TrimSpace(trimmed[len(followMarker):])
			next, ok := validFollowURL(raw)
			if !ok {
				return unresolved("FOLLOW url failed validation: " + raw)
			}
			rationale := strings.TrimSpace(strings.Join(lines[:i], "\n"))
			return solver.Decision{Kind: solver.DecisionFollowUp, NextURL: next, Rationale: rationale}
		}
	}

	return unresolved("unparseable model output: no FINAL or FOLLOW marker")
}

func unresolved(reason string) solver.Decision {
	return solver.Decision{Kind: solver.DecisionUnresolved, Reason: reason}
}

func validFollowURL(raw string) (string, bool) {
	raw = strings.Trim(raw, `"'<>`)
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

// stripFences removes a wrapping markdown code fence, a common model
// habit that would otherwise hide the marker from line scanning.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
