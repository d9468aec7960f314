package lecture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		size        int64
		wantKind    Kind
		wantErr     error
	}{
		{name: "pdf by mime", filename: "blob", contentType: "application/pdf", size: 10, wantKind: KindPDF},
		{name: "pdf by extension", filename: "Week 1.PDF", contentType: "application/octet-stream", size: 10, wantKind: KindPDF},
		{name: "pptx by mime", filename: "x", contentType: mimePPTX, size: 10, wantKind: KindPowerPoint},
		{name: "ppt by mime with params", filename: "x", contentType: "application/vnd.ms-powerpoint; charset=binary", size: 10, wantKind: KindPowerPoint},
		{name: "pptx by extension", filename: "slides.pptx", size: 10, wantKind: KindPowerPoint},
		{name: "ppt by extension", filename: "slides.Ppt", size: 10, wantKind: KindPowerPoint},
		{name: "exactly the limit", filename: "a.pdf", size: MaxUploadBytes, wantKind: KindPDF},
		{name: "docx rejected", filename: "essay.docx", contentType: "application/msword", size: 10, wantErr: ErrUnsupportedType},
		{name: "no extension", filename: "README", size: 10, wantErr: ErrUnsupportedType},
		{name: "too large", filename: "a.pdf", size: MaxUploadBytes + 1, wantErr: ErrFileTooLarge},
		{name: "type checked before size", filename: "a.zip", size: MaxUploadBytes + 1, wantErr: ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := ValidateUpload(tt.filename, tt.contentType, tt.size)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Unsupported file type. Please upload a PDF or PowerPoint file (.pptx/.ppt).", ErrUnsupportedType.Error())
	assert.Equal(t, "File too large (max 25MB)", ErrFileTooLarge.Error())
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "Week 3 - Thermodynamics", DefaultTitle("Week 3 - Thermodynamics.pptx"))
	assert.Equal(t, "intro.v2", DefaultTitle("/tmp/intro.v2.pdf"))
	assert.Equal(t, "notes", DefaultTitle("notes"))
	assert.Equal(t, "", DefaultTitle(""))
}

func TestPDFFilename(t *testing.T) {
	assert.Equal(t, "deck.pdf", PDFFilename("deck.pptx"))
	assert.True(t, KindPowerPoint.NeedsConversion())
	assert.False(t, KindPDF.NeedsConversion())
}
