package solver

import (
	"fmt"
	"strings"
)

// kindInstructions pin the answer format the grader enforces per kind.
var kindInstructions = map[AnswerKind]string{
	AnswerNumber:     "The answer MUST be a bare number. No units, no words.",
	AnswerString:     "The answer MUST be a short string. No extra commentary.",
	AnswerBoolean:    "The answer MUST be exactly 'true' or 'false'.",
	AnswerJSON:       "The answer MUST be valid JSON. Nothing outside the JSON value.",
	AnswerBase64: "The answer MUST be the file content encoded as base64.",
}

// hintRules map question phrasing to a sharper instruction. The model
// otherwise tends to narrate table arithmetic instead of doing it.
var hintRules = []struct {
	needles []string
	hint    string
}{
	{[]string{"yes or no"}, "Answer with only 'yes' or 'no'. Do not use true/false or numbers."},
	{[]string{"yes/no"}, "Answer with only 'yes' or 'no'. Do not use true/false or numbers."},
	{[]string{"table", "sum"}, "Extract the numbers from the table and compute the sum."},
	{[]string{"json", "sum"}, "Extract the numbers from the JSON and compute the sum."},
	{[]string{"json", "max"}, "Extract the numbers from the JSON and return the maximum."},
	{[]string{"json", "average"}, "Extract the numbers from the JSON and compute the average."},
	{[]string{"pdf"}, "The answer is inside the attached PDF text."},
}

// BuildPrompt assembles the single prompt for one reasoning step: page
// text, normalized file contents, transcript of earlier steps, and the
// marker grammar the interpreter parses.
func BuildPrompt(page PageContent, files []NormalizedFile, transcript string) string {
	var b strings.Builder

	b.WriteString("You are solving one step of a chained quiz. Read the page, use the attached data, and decide.\n\n")
	fmt.Fprintf(&b, "PAGE (%s):\n%s\n", page.URL, strings.TrimSpace(page.Text))

	for _, f := range files {
		if f.Text == "" {
			fmt.Fprintf(&b, "\nATTACHED %s (%s): unreadable, ignore it.\n", f.Kind, f.Origin)
			continue
		}
		fmt.Fprintf(&b, "\nATTACHED %s (%s):\n%s\n", f.Kind, f.Origin, f.Text)
		if f.Confidence < 1 {
			b.WriteString("(extracted text may contain recognition errors)\n")
		}
	}

	if transcript != "" {
		b.WriteString("\nEARLIER STEPS:\n")
		b.WriteString(transcript)
	}

	b.WriteString("\nRULES:\n")
	if inst, ok := kindInstructions[page.AnswerKind]; ok && page.AnswerKind != AnswerString {
		b.WriteString("- " + inst + "\n")
	}
	if hint := questionHint(page.Text); hint != "" {
		b.WriteString("- " + hint + "\n")
	}
	b.WriteString("- If the page tells you to visit another URL to continue, do not answer; follow it.\n")
	b.WriteString("- Reply with exactly one line, nothing before it:\n")
	b.WriteString("  FINAL: <answer>     when you can answer this question\n")
	b.WriteString("  FOLLOW: <url>       when the page points to a next page\n")

	return b.String()
}

func questionHint(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range hintRules {
		match := true
		for _, needle := range rule.needles {
			if !strings.Contains(lower, needle) {
				match = false
				break
			}
		}
		if match {
			return rule.hint
		}
	}
	return ""
}
