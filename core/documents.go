package core

import (
	"context"
	"strconv"
	"strings"
)

type (
	// PDFConverter converts office documents (PowerPoint) into PDF.
	PDFConverter interface {
		ConvertToPDF(ctx context.Context, filename string, data []byte) ([]byte, error)
	}

	ExtractedDocument struct {
		PageCount int
		Pages     []string // text per page; may be empty for scanned slides
	}

	// TextExtractor reads the pages of a PDF.
	TextExtractor interface {
		Extract(ctx context.Context, pdf []byte) (ExtractedDocument, error)
	}
)

// Text joins the non-empty pages, separated by page markers.
func (d ExtractedDocument) Text() string {
	var b strings.Builder
	for i, p := range d.Pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("--- Slide ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(" ---\n")
		b.WriteString(p)
	}
	return b.String()
}

