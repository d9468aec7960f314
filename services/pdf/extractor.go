// Package pdfsvc reads the text of PDF slide decks with pdfcpu.
package pdfsvc

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
)

var pageFileRegex = regexp.MustCompile(`(?i)page_(\d+)`)

type extractor struct {
	logger core.Logger
}

var _ core.TextExtractor = (*extractor)(nil)

func NewExtractor(logger core.Logger) core.TextExtractor {
	return &extractor{logger: logger}
}

func (e *extractor) Extract(ctx context.Context, pdf []byte) (core.ExtractedDocument, error) {
	dir, err := os.MkdirTemp("", "kalamu-pdf-")
	if err != nil {
		return core.ExtractedDocument{}, errors.Wrap(err, "creating temp dir")
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "lecture.pdf")
	if err = os.WriteFile(src, pdf, 0600); err != nil {
		return core.ExtractedDocument{}, errors.Wrap(err, "writing temp pdf")
	}

	pdfCtx, err := api.ReadContextFile(src)
	if err != nil {
		return core.ExtractedDocument{}, errors.Wrap(err, "reading pdf")
	}
	doc := core.ExtractedDocument{
		PageCount: pdfCtx.PageCount,
		Pages:     make([]string, pdfCtx.PageCount),
	}
	if err = ctx.Err(); err != nil {
		return doc, err
	}

	outDir := filepath.Join(dir, "content")
	if err = os.Mkdir(outDir, 0700); err != nil {
		return doc, errors.Wrap(err, "creating content dir")
	}
	if err = api.ExtractContentFile(src, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		// leave the pages empty: the model reads the pdf itself
		e.logger.Warn("extracting pdf content: "+err.Error(), err)
		return doc, nil
	}

	files, err := os.ReadDir(outDir)
	if err != nil {
		return doc, errors.Wrap(err, "reading content dir")
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := pageFileRegex.FindStringSubmatch(f.Name())
		if m == nil {
			continue
		}
		page, _ := strconv.Atoi(m[1])
		if page < 1 || page > doc.PageCount {
			continue
		}
		stream, err := os.ReadFile(filepath.Join(outDir, f.Name()))
		if err != nil {
			return doc, errors.Wrap(err, "reading page content")
		}
		if text := ContentText(stream); readable(text) {
			doc.Pages[page-1] = text
		}
	}
	return doc, nil
}
