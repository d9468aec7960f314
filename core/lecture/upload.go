// Package lecture turns uploaded slide decks into AI-written notes.
package lecture

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// MaxUploadBytes is the largest accepted upload (25 MiB).
const MaxUploadBytes = 25 << 20

var (
	ErrUnsupportedType = errors.New("Unsupported file type. Please upload a PDF or PowerPoint file (.pptx/.ppt).")
	ErrFileTooLarge    = errors.New("File too large (max 25MB)")
)

type Kind string

const (
	KindPDF        Kind = "pdf"
	KindPowerPoint Kind = "powerpoint"
)

const (
	mimePDF  = "application/pdf"
	mimePPT  = "application/vnd.ms-powerpoint"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// NeedsConversion reports whether the file must be turned into a PDF first.
func (k Kind) NeedsConversion() bool { return k == KindPowerPoint }

// ValidateUpload checks the file by MIME type or extension, then by size.
func ValidateUpload(filename, contentType string, size int64) (Kind, error) {
	kind, ok := detectKind(filename, contentType)
	if !ok {
		return "", ErrUnsupportedType
	}
	if size > MaxUploadBytes {
		return "", ErrFileTooLarge
	}
	return kind, nil
}

func detectKind(filename, contentType string) (Kind, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case mimePDF:
		return KindPDF, true
	case mimePPT, mimePPTX:
		return KindPowerPoint, true
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, true
	case ".ppt", ".pptx":
		return KindPowerPoint, true
	}
	return "", false
}

// DefaultTitle derives a note title from the uploaded file name.
func DefaultTitle(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

// PDFFilename is the name given to the converted PDF of a PowerPoint file.
func PDFFilename(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".pdf"
}
