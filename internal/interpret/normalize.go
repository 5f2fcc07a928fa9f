package interpret

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/quizchain/quizchain/internal/solver"
)

var (
	numberPattern = regexp.MustCompile(`-?\d+\.?\d*`)
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// NormalizeAnswer coerces a FINAL answer into the format the quiz page
// asked for. Coercion never fails; an unusable payload falls back to a
// conservative default for its kind.
func NormalizeAnswer(answer string, kind solver.AnswerKind) string {
	answer = strings.TrimSpace(answer)
	switch kind {
	case solver.AnswerNumber:
		return normalizeNumber(answer)
	case solver.AnswerBoolean:
		return normalizeBoolean(answer)
	case solver.AnswerJSON:
		return normalizeJSON(answer)
	case solver.AnswerBase64:
		return normalizeBase64(answer)
	default:
		return answer
	}
}

// normalizeNumber keeps the first numeric token, rendered as an integer
// when whole.
func normalizeNumber(answer string) string {
	m := numberPattern.FindString(answer)
	if m == "" {
		return "0"
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return "0"
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func normalizeBoolean(answer string) string {
	switch strings.ToLower(answer) {
	case "true", "yes", "1", "correct":
		return "true"
	default:
		return "false"
	}
}

// normalizeJSON recovers an embedded object when the model wrapped its
// JSON in prose; a payload with no parseable JSON is wrapped instead.
func normalizeJSON(answer string) string {
	var v interface{}
	if err := json.Unmarshal([]byte(answer), &v); err == nil {
		out, _ := json.Marshal(v)
		return string(out)
	}
	if m := objectPattern.FindString(answer); m != "" {
		if err := json.Unmarshal([]byte(m), &v); err == nil {
			out, _ := json.Marshal(v)
			return string(out)
		}
	}
	out, _ := json.Marshal(map[string]string{"answer": answer})
	return string(out)
}

// normalizeBase64 passes through payloads that already decode cleanly;
// everything else gets encoded. Avoids double encoding.
func normalizeBase64(answer string) string {
	if raw, err := base64.StdEncoding.DecodeString(answer); err == nil && len(raw) > 0 {
		return answer
	}
	return base64.StdEncoding.EncodeToString([]byte(answer))
}
