package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core/quota"
)

// ErrConversionUnavailable is returned when the server cannot convert PowerPoint files.
var ErrConversionUnavailable = errors.New(
	"PowerPoint conversion is not available in this environment. Please export your slides to PDF and upload the PDF.")

// APIError is any non-quota error answered by the API.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string // validation errors, by field
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return strings.Join(parts, "; ")
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// decodeError turns an error response into a *quota.ExceededError (402) or an *APIError.
func decodeError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))

	if res.StatusCode == http.StatusPaymentRequired {
		qe := new(quota.ExceededError)
		if err := json.Unmarshal(body, qe); err == nil && qe.Feature != "" {
			if qe.Kind == "" {
				qe.Kind = quota.KindExceeded
			}
			return qe
		}
	}

	apiErr := &APIError{StatusCode: res.StatusCode}
	var msg struct {
		Error string `json:"error"`
	}
	var fields map[string]string
	switch {
	case json.Unmarshal(body, &msg) == nil && msg.Error != "":
		apiErr.Message = msg.Error
	case json.Unmarshal(body, &fields) == nil && len(fields) > 0:
		apiErr.Fields = fields
		apiErr.Message = "invalid request"
	default:
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" || strings.HasPrefix(apiErr.Message, "<") {
			apiErr.Message = fmt.Sprintf("request failed: %s", http.StatusText(res.StatusCode))
		}
	}
	return apiErr
}
