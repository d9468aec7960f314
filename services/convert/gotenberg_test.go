package convertsvc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kalamu/core"
)

func TestNewHTTPConverterDisabled(t *testing.T) {
	assert.Nil(t, NewHTTPConverter(&core.Config{}))
}

func TestConvertToPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, convertPath, r.URL.Path)
		f, hdr, err := r.FormFile("files")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		content, _ := io.ReadAll(f)
		assert.Equal(t, "deck.pptx", hdr.Filename)

		if string(content) == "broken" {
			http.Error(w, "libreoffice failed", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.7 converted"))
	}))
	defer srv.Close()

	conv := NewHTTPConverter(&core.Config{Converter: core.ConverterConfig{URL: srv.URL + "/"}})
	require.NotNil(t, conv)

	pdf, err := conv.ConvertToPDF(context.Background(), "/uploads/deck.pptx", []byte("pk"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 converted", string(pdf))

	_, err = conv.ConvertToPDF(context.Background(), "deck.pptx", []byte("broken"))
	assert.EqualError(t, err, "converter responded 503: libreoffice failed")
}
