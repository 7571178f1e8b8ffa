// Package extract turns raw notebook content, decoded backup files and
// remote page HTML, into the plain-text pages the index consumes.
package extract

import (
	"regexp"
	"strings"
)

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockCloseRe  = regexp.MustCompile(`(?i)</(?:p|div|h[1-6]|li|tr|hr)[^>]*>`)
	brRe          = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&nbsp;", " ",
	"&quot;", `"`,
	"&#39;", "'",
)

// StripHTML extracts readable plain text from HTML. Block-level closing
// tags become newlines, all other tags are dropped, common entities are
// decoded, and blank lines are collapsed.
func StripHTML(html string) string {
	text := scriptStyleRe.ReplaceAllString(html, "")
	text = blockCloseRe.ReplaceAllString(text, "\n")
	text = brRe.ReplaceAllString(text, "\n")
	text = tagRe.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
