package classifier

import (
	"testing"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "hello world",
			want: "hello world",
		},
		{
			name: "bracket citation rewritten",
			in:   "revenue grew 12% [3] last quarter",
			want: "revenue grew 12% {{cite:3}} last quarter",
		},
		{
			name: "multiple citations",
			in:   "see [1] and [2]",
			want: "see {{cite:1}} and {{cite:2}}",
		},
		{
			name: "non-numeric brackets kept",
			in:   "array[i] stays",
			want: "array[i] stays",
		},
		{
			name: "closed fence kept",
			in:   "before\n```sql\nSELECT 1;\n```\nafter",
			want: "before\n```sql\nSELECT 1;\n```\nafter",
		},
		{
			name: "unterminated trailing fence dropped",
			in:   "before\n```sql\nSELECT 1;",
			want: "before",
		},
		{
			name: "second fence unterminated",
			in:   "```go\ncode\n```\ntext\n```py\npartial",
			want: "```go\ncode\n```\ntext",
		},
		{
			name: "empty string",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeText(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Sanitization runs on every snapshot of a growing document, so applying
// it twice must equal applying it once.
func TestSanitizeTextIdempotent(t *testing.T) {
	inputs := []string{
		"plain",
		"cite [4] here",
		"text\n```sql\nSELECT",
		"closed\n```\nfence\n```\nplus [12]",
		"{{cite:7}} already rewritten",
	}

	for _, in := range inputs {
		once := SanitizeText(in)
		twice := SanitizeText(once)
		if once != twice {
			t.Errorf("SanitizeText not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
