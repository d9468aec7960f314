package lecture

import (
	"fmt"
	"strings"

	"github.com/trezcool/kalamu/core"
)

const systemPrompt = "You turn university lecture slides into clear, well organized study notes in Markdown. " +
	"Use headings, bullet lists and tables where helpful. Stay faithful to the slides; " +
	"do not invent facts. Reply with the notes only, without any preamble."

func buildPrompt(title string, doc core.ExtractedDocument, detail Detail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lecture: %s\n", title)
	if doc.PageCount > 0 {
		fmt.Fprintf(&b, "Slides: %d\n", doc.PageCount)
	}
	b.WriteString(detail.instructions())
	b.WriteString("\n\n")

	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		b.WriteString("The slides are attached as a PDF document.")
		return b.String()
	}
	b.WriteString("Slide contents:\n\n")
	b.WriteString(core.Truncate(text, maxSourceRunes))
	return b.String()
}
