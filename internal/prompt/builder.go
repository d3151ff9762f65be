// Package prompt assembles the instruction text sent to the generation
// upstream. Building is pure: identical inputs always produce byte-identical
// prompts, which keeps retries and caching meaningful.
package prompt

import (
	"fmt"
	"strings"

	"github.com/noteforge/noteforge/internal/models"
)

// Template describes one visual style. The palette is a generation hint only;
// nothing downstream ever parses colors back out of the output.
type Template struct {
	ID          models.TemplateID
	Name        string
	Description string
	Emphasis    string
	Palette     []string
}

var templates = map[models.TemplateID]Template{
	models.TemplateClassic: {
		ID:          models.TemplateClassic,
		Name:        "Classic",
		Description: "clean ruled-notebook look with a serif heading and generous line spacing",
		Emphasis:    "underline key terms and keep a single accent color for headings",
		Palette:     []string{"#1d3557", "#457b9d", "#f1faee"},
	},
	models.TemplateVibrant: {
		ID:          models.TemplateVibrant,
		Name:        "Vibrant",
		Description: "bold color-blocked sections with rounded callout boxes",
		Emphasis:    "use colored callout boxes for definitions and highlight formulas",
		Palette:     []string{"#e63946", "#f4a261", "#2a9d8f", "#264653"},
	},
	models.TemplateMinimal: {
		ID:          models.TemplateMinimal,
		Name:        "Minimal",
		Description: "plenty of whitespace, thin dividers, monochrome with one accent",
		Emphasis:    "prefer short bullet lists over paragraphs, no decorative borders",
		Palette:     []string{"#111111", "#888888", "#0066cc"},
	},
	models.TemplateAcademic: {
		ID:          models.TemplateAcademic,
		Name:        "Academic",
		Description: "two-column lecture-note layout with numbered sections and margins for annotations",
		Emphasis:    "number every section and sub-point, cite terminology precisely",
		Palette:     []string{"#2b2d42", "#8d99ae", "#edf2f4"},
	},
	models.TemplateSketch: {
		ID:          models.TemplateSketch,
		Name:        "Sketch",
		Description: "hand-drawn feel with doodle-style boxes and arrows between ideas",
		Emphasis:    "connect related concepts with labelled arrows, keep text casual",
		Palette:     []string{"#6d4c41", "#ffb74d", "#aed581", "#4fc3f7"},
	},
}

// Lookup returns the template for id, falling back to the default for unknown ids.
func Lookup(id models.TemplateID) Template {
	if t, ok := templates[id]; ok {
		return t
	}
	return templates[models.DefaultTemplate]
}

// Templates lists the catalog in a stable order.
func Templates() []Template {
	ids := []models.TemplateID{
		models.TemplateClassic,
		models.TemplateVibrant,
		models.TemplateMinimal,
		models.TemplateAcademic,
		models.TemplateSketch,
	}
	out := make([]Template, 0, len(ids))
	for _, id := range ids {
		out = append(out, templates[id])
	}
	return out
}

// Build produces the full prompt for a topic, template and page count.
// The caller is responsible for rejecting empty topics and clamping pageCount.
func Build(topic string, templateID models.TemplateID, pageCount int) string {
	t := Lookup(templateID)

	var b strings.Builder
	b.WriteString("You are generating handwritten-style study notes as a single self-contained HTML document.\n\n")

	b.WriteString("OUTPUT CONTRACT:\n")
	b.WriteString("- Respond with the HTML document only: start at <!DOCTYPE html> and end at </html>.\n")
	b.WriteString("- Do not wrap the output in markdown code fences or add any commentary before or after it.\n")
	b.WriteString("- Inline all CSS in a single <style> block; no external resources, no <script> tags.\n\n")

	fmt.Fprintf(&b, "TOPIC: %s\n\n", topic)

	fmt.Fprintf(&b, "STYLE (%s): %s.\n", t.Name, t.Description)
	fmt.Fprintf(&b, "Emphasis rules: %s.\n", t.Emphasis)
	fmt.Fprintf(&b, "Accent palette: %s.\n\n", strings.Join(t.Palette, ", "))

	fmt.Fprintf(&b, "LENGTH: produce %d page(s) of notes.\n", pageCount)
	b.WriteString("Mark each page with <div class=\"page\">...</div>.\n")
	if pageCount > 1 {
		fmt.Fprintf(&b, "Distribute content evenly: each of the %d pages must carry a comparable amount of material, ", pageCount)
		b.WriteString("with no page left sparse and no page overloaded. Split the topic into per-page sub-themes before writing.\n")
	}

	return b.String()
}
