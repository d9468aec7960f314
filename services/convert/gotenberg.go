// Package convertsvc converts PowerPoint decks to PDF through a Gotenberg-compatible HTTP service.
package convertsvc

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
)

const (
	convertPath    = "/forms/libreoffice/convert"
	maxPDFBytes    = 100 << 20
	defaultTimeout = 2 * time.Minute
)

type httpConverter struct {
	url    string
	client *http.Client
}

var _ core.PDFConverter = (*httpConverter)(nil)

// NewHTTPConverter returns nil when no converter URL is configured.
func NewHTTPConverter(conf *core.Config) core.PDFConverter {
	if conf.Converter.URL == "" {
		return nil
	}
	timeout := conf.Converter.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &httpConverter{
		url:    strings.TrimRight(conf.Converter.URL, "/") + convertPath,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *httpConverter) ConvertToPDF(ctx context.Context, filename string, data []byte) ([]byte, error) {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("files", filepath.Base(filename))
	if err != nil {
		return nil, errors.Wrap(err, "creating form file")
	}
	if _, err = fw.Write(data); err != nil {
		return nil, errors.Wrap(err, "writing form file")
	}
	if err = mw.Close(); err != nil {
		return nil, errors.Wrap(err, "closing form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calling converter")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("converter responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, errors.Wrap(err, "reading pdf")
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		return nil, errors.New("converter did not return a pdf")
	}
	return pdf, nil
}
