// Package rules implements the user-authored grouping DSL. Each non-blank,
// non-comment line holds an optional field prefix and one or more quoted
// regex literals; patterns within a line AND together, lines OR together
// with first-match-wins by ascending index.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mailsift/mailsift/internal/mail"
)

// Field selects which message content a pattern runs against.
type Field string

const (
	FieldSubject Field = "subject"
	FieldBody    Field = "body"
	FieldAny     Field = "any"
)

// Pattern is one case-insensitive regex bound to a field.
type Pattern struct {
	Field Field  `json:"field"`
	Regex string `json:"regex"`
}

// Line is one parsed rule line. All patterns must match for the line to
// claim a message.
type Line struct {
	Patterns  []Pattern `json:"patterns"`
	LineIndex int       `json:"lineIndex"`
	Raw       string    `json:"rawText"`
}

// Rules is the parsed form of an account's rule text. The original text is
// kept verbatim for round-trip editing.
type Rules struct {
	Text  string `json:"ruleText"`
	Lines []Line `json:"lines"`
}

// LineError reports a rule regex that failed to compile.
type LineError struct {
	LineIndex int
	Err       error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.LineIndex, e.Err)
}

// Parse turns free-form rule text into Rules. Blank lines and lines
// starting with '#' are skipped; a line contributing zero parseable
// patterns is dropped silently. Line indexes count only kept lines.
func Parse(text string) *Rules {
	r := &Rules{Text: text}
	for _, raw := range strings.Split(text, "\n") {
		line, ok := parseLine(raw, len(r.Lines))
		if !ok {
			continue
		}
		r.Lines = append(r.Lines, line)
	}
	return r
}

func parseLine(raw string, index int) (Line, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "#") {
		return Line{}, false
	}

	field := FieldAny
	switch {
	case strings.HasPrefix(s, "subject:"):
		field = FieldSubject
		s = strings.TrimSpace(s[len("subject:"):])
	case strings.HasPrefix(s, "body:"):
		field = FieldBody
		s = strings.TrimSpace(s[len("body:"):])
	}

	var regexes []string
	switch {
	case strings.HasPrefix(s, "["):
		regexes = parseArray(s)
	case strings.HasPrefix(s, `"`):
		if re, _, ok := parseQuoted(s); ok {
			regexes = []string{re}
		}
	}
	if len(regexes) == 0 {
		return Line{}, false
	}

	line := Line{LineIndex: index, Raw: raw}
	for _, re := range regexes {
		line.Patterns = append(line.Patterns, Pattern{Field: field, Regex: re})
	}
	return line, true
}

// parseArray scans a bracketed array of quoted regex literals. Content
// between literals (commas, whitespace) is skipped; the scan stops at the
// closing bracket.
func parseArray(s string) []string {
	var regexes []string
	s = s[1:] // past '['
	for {
		s = strings.TrimLeft(s, ", \t")
		if s == "" || s[0] == ']' {
			break
		}
		if s[0] != '"' {
			// Unquoted junk: skip to the next delimiter.
			idx := strings.IndexAny(s, `,"]`)
			if idx < 0 {
				break
			}
			s = s[idx:]
			continue
		}
		re, rest, ok := parseQuoted(s)
		if !ok {
			break
		}
		regexes = append(regexes, re)
		s = rest
	}
	return regexes
}

// parseQuoted scans one double-quoted literal with backslash escaping.
// \" and \\ unescape; any other backslash sequence is kept verbatim so
// regex escapes like \d survive.
func parseQuoted(s string) (value, rest string, ok bool) {
	if len(s) == 0 || s[0] != '"' {
		return "", s, false
	}
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) {
				return "", s, false
			}
			next := s[i+1]
			if next == '"' || next == '\\' {
				sb.WriteByte(next)
			} else {
				sb.WriteByte('\\')
				sb.WriteByte(next)
			}
			i++
		case '"':
			return sb.String(), s[i+1:], true
		default:
			sb.WriteByte(c)
		}
	}
	return "", s, false // unterminated
}

// quote renders a regex as a double-quoted literal.
func quote(re string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(re); i++ {
		switch re[i] {
		case '"', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteByte(re[i])
	}
	sb.WriteByte('"')
	return sb.String()
}

// Serialize renders the structured form back to rule text. Parsing the
// output yields the same structured form (stable round trip); the original
// raw text layout is not preserved.
func (r *Rules) Serialize() string {
	var lines []string
	for _, line := range r.Lines {
		if len(line.Patterns) == 0 {
			continue
		}
		var sb strings.Builder
		if f := line.Patterns[0].Field; f != FieldAny {
			sb.WriteString(string(f))
			sb.WriteByte(':')
		}
		if len(line.Patterns) == 1 {
			sb.WriteString(quote(line.Patterns[0].Regex))
		} else {
			quoted := make([]string, len(line.Patterns))
			for i, p := range line.Patterns {
				quoted[i] = quote(p.Regex)
			}
			sb.WriteString("[" + strings.Join(quoted, ",") + "]")
		}
		lines = append(lines, sb.String())
	}
	return strings.Join(lines, "\n")
}

// Validate compiles every pattern and reports the lines that fail.
func Validate(r *Rules) []LineError {
	var errs []LineError
	for _, line := range r.Lines {
		for _, p := range line.Patterns {
			if _, err := compilePattern(p.Regex); err != nil {
				errs = append(errs, LineError{LineIndex: line.LineIndex, Err: err})
				break
			}
		}
	}
	return errs
}

func compilePattern(re string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + re)
}

// matchPattern evaluates one pattern against the targeted field content.
// A pattern that fails to compile is treated as non-matching rather than
// failing the evaluation.
func matchPattern(p Pattern, msg *mail.Message, body mail.BodyParts) bool {
	re, err := compilePattern(p.Regex)
	if err != nil {
		return false
	}
	switch p.Field {
	case FieldSubject:
		return re.MatchString(msg.Subject)
	case FieldBody:
		return (body.Text != "" && re.MatchString(body.Text)) ||
			(body.HTML != "" && re.MatchString(body.HTML))
	default: // FieldAny
		return re.MatchString(msg.Subject) ||
			(body.Text != "" && re.MatchString(body.Text)) ||
			(body.HTML != "" && re.MatchString(body.HTML))
	}
}

// Match assigns a message to the first line (ascending index) whose
// patterns all match. ok is false when no line claims the message.
func (r *Rules) Match(msg *mail.Message, body mail.BodyParts) (lineIndex int, ok bool) {
	for _, line := range r.Lines {
		all := true
		for _, p := range line.Patterns {
			if !matchPattern(p, msg, body) {
				all = false
				break
			}
		}
		if all && len(line.Patterns) > 0 {
			return line.LineIndex, true
		}
	}
	return 0, false
}
