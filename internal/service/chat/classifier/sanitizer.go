package classifier

import (
	"regexp"
	"strings"
)

// bracketCitation matches numeric bracket citations like [3] that the
// backend emits inline. They are rewritten to {{cite:3}} markers carrying
// the citation index so the rendering layer can resolve them against the
// citation list. The marker contains no brackets-with-digits, so re-running
// the rewrite on a grown string never corrupts earlier output.
var bracketCitation = regexp.MustCompile(`\[(\d+)\]`)

// SanitizeText cleans streamed markdown text. It is safe to re-run on a
// growing string on every snapshot:
//   - an unterminated trailing fenced code block (an artifact of
//     mid-stream truncation) is removed
//   - numeric bracket citations are rewritten to inline markers
func SanitizeText(s string) string {
	s = dropUnterminatedFence(s)
	return bracketCitation.ReplaceAllString(s, "{{cite:$1}}")
}

// dropUnterminatedFence removes a trailing code fence that has no closing
// marker yet. With an odd number of ``` fences the text after the last one
// is an incomplete block; it will reappear whole in a later snapshot.
func dropUnterminatedFence(s string) string {
	if strings.Count(s, "```")%2 == 0 {
		return s
	}
	idx := strings.LastIndex(s, "```")
	return strings.TrimRight(s[:idx], "\n")
}
