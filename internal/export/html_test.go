package export

import (
	"strings"
	"testing"
)

func TestStripFencesPassthrough(t *testing.T) {
	doc := "<!DOCTYPE html><html><body>hi</body></html>"
	if got := StripFences(doc); got != doc {
		t.Fatalf("unfenced document was altered: %q", got)
	}
}

func TestStripFencesRoundTrip(t *testing.T) {
	doc := "<!DOCTYPE html>\n<html><body><p>notes</p></body></html>"
	cases := []string{
		"```html\n" + doc + "\n```",
		"```\n" + doc + "\n```",
		"```html\n" + doc + "\n```\n",
		"  ```html\n" + doc + "\n```  ",
	}
	for _, wrapped := range cases {
		if got := StripFences(wrapped); got != doc {
			t.Errorf("StripFences(%q) = %q, want original document", wrapped, got)
		}
	}
}

func TestStripFencesLeavesInnerFencesAlone(t *testing.T) {
	doc := "<html><body><pre>```code```</pre></body></html>"
	if got := StripFences(doc); got != doc {
		t.Fatalf("inner fences must survive: %q", got)
	}
}

func TestExtractTextExcludesScripts(t *testing.T) {
	doc := `<html><head><style>body{color:red}</style></head><body>
<h1>Title</h1>
<script>alert("nope")</script>
<noscript>enable js</noscript>
<p>Visible &amp; escaped</p>
</body></html>`

	lines := ExtractText(doc)
	joined := strings.Join(lines, "\n")

	if !strings.Contains(joined, "Title") || !strings.Contains(joined, "Visible & escaped") {
		t.Fatalf("visible text missing from %q", joined)
	}
	for _, banned := range []string{"alert", "enable js", "color:red"} {
		if strings.Contains(joined, banned) {
			t.Errorf("excluded content leaked: %q", banned)
		}
	}
}

func TestExtractTextCollapsesBlankRuns(t *testing.T) {
	lines := ExtractText("<p>a</p>\n\n\n\n<p>b</p>")
	for i := 1; i < len(lines); i++ {
		if lines[i] == "" && lines[i-1] == "" {
			t.Fatal("blank lines were not collapsed")
		}
	}
	if len(lines) == 0 || lines[len(lines)-1] == "" {
		t.Fatal("trailing blank lines must be trimmed")
	}
}
