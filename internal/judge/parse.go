package judge

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseError indicates a model response without usable score tokens.
type ParseError struct {
	Response string
}

func (e *ParseError) Error() string {
	snippet := e.Response
	if len(snippet) > 80 {
		snippet = snippet[:80] + "..."
	}
	return fmt.Sprintf("unparseable judgment response: %q", snippet)
}

var (
	marketingRe = regexp.MustCompile(`(?i)marketing\s*=\s*(-?\d+(?:\.\d+)?)`)
	spamRe      = regexp.MustCompile(`(?i)spam\s*=\s*(-?\d+(?:\.\d+)?)`)
)

// ParseScores extracts the marketing and spam scores from a model
// response. Tokens are case- and order-insensitive; values are rounded
// and clamped to [0,10].
func ParseScores(response string) (marketing, spam int, err error) {
	m := marketingRe.FindStringSubmatch(response)
	s := spamRe.FindStringSubmatch(response)
	if m == nil || s == nil {
		return 0, 0, &ParseError{Response: response}
	}
	return clampScore(m[1]), clampScore(s[1]), nil
}

func clampScore(token string) int {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0
	}
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}

// buildPrompt renders the judgment prompt for one message.
func buildPrompt(subject, body string, languages []string) string {
	var sb strings.Builder
	sb.WriteString("You are rating an email for a mailbox triage tool.\n")
	sb.WriteString("Rate how likely it is marketing mail and how likely it is spam, each as an integer from 0 to 10.\n")
	if len(languages) > 0 {
		sb.WriteString("Mail in these languages is expected and should not be penalized for its language: ")
		sb.WriteString(strings.Join(languages, ", "))
		sb.WriteString(".\n")
	}
	sb.WriteString("Reply with exactly two tokens: marketing=<n> spam=<n>\n\n")
	sb.WriteString("Subject: ")
	sb.WriteString(subject)
	sb.WriteString("\n\nBody:\n")
	sb.WriteString(body)
	return sb.String()
}
