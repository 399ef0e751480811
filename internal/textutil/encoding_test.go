package textutil

import (
	"strings"
	"testing"
)

func TestEnsureUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid_ascii", "hello", "hello"},
		{"valid_multibyte", "héllo wörld", "héllo wörld"},
		// Windows-1252 smart quotes (0x93/0x94) are invalid UTF-8.
		{"windows1252_quotes", "\x93quoted\x94", "“quoted”"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnsureUTF8(tt.in); got != tt.want {
				t.Errorf("EnsureUTF8(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeUTF8(t *testing.T) {
	got := SanitizeUTF8("ok\xff\xfeok")
	if !strings.Contains(got, "�") {
		t.Errorf("SanitizeUTF8 did not insert replacement char: %q", got)
	}
	if !strings.HasPrefix(got, "ok") || !strings.HasSuffix(got, "ok") {
		t.Errorf("SanitizeUTF8 mangled valid bytes: %q", got)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  a\n\tb   c ", "a b c"},
		{"", ""},
		{"\r\n\r\n", ""},
		{"one", "one"},
	}
	for _, tt := range tests {
		if got := CollapseWhitespace(tt.in); got != tt.want {
			t.Errorf("CollapseWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateChars(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"}, // rune boundary, not byte
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateChars(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateChars(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
