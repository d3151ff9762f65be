package export

import (
	"html"
	"regexp"
	"strings"
)

// StripFences removes an accidental markdown code fence wrapping the upstream
// text. Models occasionally frame the whole document in ```html ... ```
// despite instructions; the document inside passes through verbatim.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	idx := strings.IndexByte(trimmed, '\n')
	if idx < 0 {
		return trimmed
	}
	body := trimmed[idx+1:]

	body = strings.TrimRight(body, " \t\n")
	if strings.HasSuffix(body, "```") {
		body = body[:len(body)-3]
	}
	return strings.TrimSpace(body)
}

var (
	excludedBlockRe = regexp.MustCompile(`(?is)<(script|noscript|style)\b[^>]*>.*?</\s*(script|noscript|style)\s*>`)
	blockBreakRe    = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|section|article)>|<br\s*/?>`)
	tagRe           = regexp.MustCompile(`<[^>]*>`)
)

// ExtractText pulls the visible text out of a document for offline rendering.
// Script, noscript and style content is excluded from the draw.
func ExtractText(doc string) []string {
	doc = excludedBlockRe.ReplaceAllString(doc, "")
	doc = blockBreakRe.ReplaceAllString(doc, "\n")
	doc = tagRe.ReplaceAllString(doc, "")
	doc = html.UnescapeString(doc)

	var lines []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			// Collapse runs of blank lines into one separator.
			if len(lines) > 0 && lines[len(lines)-1] != "" {
				lines = append(lines, "")
			}
			continue
		}
		lines = append(lines, line)
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
