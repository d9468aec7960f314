package client

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core/lecture"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/quota"
)

// Upload is a lecture file with its processing options; zero options use the server defaults.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte

	Title      string
	FolderID   string
	ProgressID string
	Detail     lecture.Detail
	Model      string
}

type Usage struct {
	Plan  quota.Plan    `json:"plan"`
	Usage []quota.Usage `json:"usage"`
}

func writeMultipart(filename, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(filename)+`"`)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", errors.Wrap(err, "creating file part")
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", errors.Wrap(err, "writing file part")
	}
	for name, val := range fields {
		if val == "" {
			continue
		}
		if err := w.WriteField(name, val); err != nil {
			return nil, "", errors.Wrapf(err, "writing field %s", name)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "closing multipart writer")
	}
	return body, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// UploadLecture sends the file for processing and blocks until the note is created.
func (c *Client) UploadLecture(ctx context.Context, up Upload) (*note.Note, error) {
	body, contentType, err := writeMultipart(up.Filename, up.ContentType, up.Data, map[string]string{
		"title":        up.Title,
		"module_id":    up.FolderID,
		"progress_id":  up.ProgressID,
		"detail_level": string(up.Detail),
		"model":        up.Model,
	})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/lectures", nil, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	var n note.Note
	return &n, errors.Wrap(decodeJSON(res.Body, &n), "decoding note")
}

// ConvertToPDF converts a PowerPoint file on the server.
// It returns ErrConversionUnavailable when the server has no converter.
func (c *Client) ConvertToPDF(ctx context.Context, filename, contentType string, data []byte) ([]byte, error) {
	body, formType, err := writeMultipart(filename, contentType, data, nil)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/convert/pdf", nil, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", formType)

	res, err := c.do(req)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) || IsStatus(err, http.StatusNotImplemented) {
			return nil, ErrConversionUnavailable
		}
		return nil, err
	}
	defer res.Body.Close()
	pdf, err := io.ReadAll(res.Body)
	return pdf, errors.Wrap(err, "reading pdf")
}

// CreateProgress opens a progress channel to pass along an upload.
func (c *Client) CreateProgress(ctx context.Context) (string, error) {
	var res struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/progress", nil, nil, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (c *Client) Usage(ctx context.Context) (*Usage, error) {
	var u Usage
	if err := c.call(ctx, http.MethodGet, "/usage", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
