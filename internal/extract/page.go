package extract

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	xhtml "golang.org/x/net/html"

	"github.com/quizchain/quizchain/internal/solver"
)

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"']+`)
	hrefPattern   = regexp.MustCompile(`href=['"]?([^'" >]+)`)
	atobPattern   = regexp.MustCompile(`atob\(['"]([^'"]+)['"]\)`)
	base64Literal = regexp.MustCompile(`['"]([A-Za-z0-9+/]{20,}={0,2})['"]`)
	wsPattern     = regexp.MustCompile(`\s+`)

	// Phrases a page uses to announce its grader endpoint, tried before
	// the generic URL scan.
	submitPhrasePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Post your answer to\s+([^\s<>"']+)`),
		regexp.MustCompile(`(?i)Submit your answer to:?\s*([^\s<>"']+)`),
		regexp.MustCompile(`(?i)submit to\s+([^\s<>"']+)`),
		regexp.MustCompile(`(?i)POST to\s+([^\s<>"']+)`),
		regexp.MustCompile(`(?i)endpoint:\s*([^\s<>"']+)`),
		regexp.MustCompile(`(?i)url:\s*([^\s<>"']+)`),
	}

	headerPatterns = map[string][]*regexp.Regexp{
		"Authorization": {
			regexp.MustCompile(`(?i)Authorization:\s*([^\n<]+)`),
			regexp.MustCompile(`(?i)Use Authorization:\s*([^\n<]+)`),
			regexp.MustCompile(`(?i)Bearer\s+([^\s\n<]+)`),
		},
		"X-API-Key": {
			regexp.MustCompile(`(?i)X-API-Key:\s*([^\n<]+)`),
			regexp.MustCompile(`(?i)API[-\s]?key:\s*([^\n<]+)`),
		},
	}
)

var submitIndicators = []string{"submit", "answer", "check", "verify", "solution"}

var resourceIndicators = []string{
	".csv", ".pdf", ".json", ".xlsx", ".txt", ".png", ".jpg", ".jpeg",
	"/api/", "download", "data",
}

// stripTags is the fallback text extraction when readability gives up:
// drop script/style subtrees and collapse whitespace.
func stripTags(html string) string {
	doc, err := xhtml.Parse(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(wsPattern.ReplaceAllString(html, " "))
	}
	var sb strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == xhtml.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(wsPattern.ReplaceAllString(sb.String(), " "))
}

// scriptBodies returns the concatenated contents of all <script> tags.
func scriptBodies(html string) string {
	doc, err := xhtml.Parse(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && n.Data == "script" {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == xhtml.TextNode {
					sb.WriteString(c.Data)
					sb.WriteByte('\n')
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}

// decodeBase64Payloads recovers instructions hidden in script bodies:
// atob('...') arguments first, then long bare base64 literals.
func decodeBase64Payloads(scripts string) string {
	if scripts == "" {
		return ""
	}
	var decoded []string
	seen := map[string]struct{}{}
	tryDecode := func(enc string) {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil || !utf8.Valid(raw) {
			return
		}
		s := strings.TrimSpace(string(raw))
		if s == "" || !isPrintable(s) {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		decoded = append(decoded, s)
	}
	for _, m := range atobPattern.FindAllStringSubmatch(scripts, -1) {
		tryDecode(m[1])
	}
	for _, m := range base64Literal.FindAllStringSubmatch(scripts, -1) {
		tryDecode(m[1])
	}
	return strings.Join(decoded, "\n")
}

func isPrintable(s string) bool {
	printable := 0
	for _, r := range s {
		if r == '\n' || r == '\t' || (r >= 0x20 && r < 0x7f) {
			printable++
		}
	}
	return printable*10 >= len(s)*9
}

// submitURL finds the grader endpoint, preferring announced phrases over
// a generic scan. Empty when the page declares none.
func submitURL(text, html string, base *url.URL) string {
	for _, p := range submitPhrasePatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			candidate := strings.Trim(m[1], `"',.!;`)
			if looksLikeSubmitURL(candidate) {
				return normalizeURL(candidate, base)
			}
		}
	}
	for _, candidate := range urlPattern.FindAllString(text+"\n"+html, -1) {
		candidate = strings.Trim(candidate, `"',.!;`)
		if looksLikeSubmitURL(candidate) {
			return normalizeURL(candidate, base)
		}
	}
	return ""
}

func looksLikeSubmitURL(u string) bool {
	lower := strings.ToLower(u)
	for _, ind := range submitIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// resourceURLs collects file/API references from the page text and hrefs,
// excluding grader endpoints.
func resourceURLs(text, html string, base *url.URL) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(raw string) {
		raw = strings.Trim(raw, `"',.!;`)
		if !looksLikeResourceURL(raw) {
			return
		}
		u := normalizeURL(raw, base)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, m := range urlPattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range hrefPattern.FindAllStringSubmatch(html, -1) {
		if strings.HasPrefix(m[1], "http") {
			add(m[1])
		}
	}
	return out
}

func looksLikeResourceURL(u string) bool {
	lower := strings.ToLower(u)
	for _, ind := range submitIndicators[:3] { // submit, answer, check
		if strings.Contains(lower, ind) {
			return false
		}
	}
	for _, ind := range resourceIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// apiHeaders recovers header values stated in quiz instructions so that
// protected resources can be fetched.
func apiHeaders(text string) map[string]string {
	headers := map[string]string{}
	for name, patterns := range headerPatterns {
		for _, p := range patterns {
			m := p.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			value := strings.TrimSpace(m[1])
			if name == "Authorization" && !strings.HasPrefix(strings.ToLower(value), "bearer") {
				value = "Bearer " + value
			}
			headers[name] = value
			break
		}
	}
	return headers
}

// detectAnswerKind classifies the expected answer format from question
// wording. Keyword heuristics; defaults to string.
func detectAnswerKind(text string) solver.AnswerKind {
	lower := strings.ToLower(text)
	numberWords := []string{"sum", "count", "total", "how many", "average", "mean", "maximum", "minimum", "next number", "compute"}
	for _, w := range numberWords {
		if strings.Contains(lower, w) {
			return solver.AnswerNumber
		}
	}
	if strings.Contains(lower, "yes or no") || strings.Contains(lower, "yes/no") ||
		strings.Contains(lower, "answer with 'yes'") {
		return solver.AnswerString
	}
	if strings.Contains(lower, "true or false") || strings.Contains(lower, "true/false") {
		return solver.AnswerBoolean
	}
	for _, w := range []string{"json object", "json array", "as json", "valid json"} {
		if strings.Contains(lower, w) {
			return solver.AnswerJSON
		}
	}
	if strings.Contains(lower, "base64") || strings.Contains(lower, "upload") {
		return solver.AnswerBase64
	}
	return solver.AnswerString
}

// normalizeURL resolves raw against base when relative.
func normalizeURL(raw string, base *url.URL) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return ""
		}
		return u.String()
	}
	if base == nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
