package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core/progress"
)

// ProgressStream relays the server-sent updates of a progress channel.
// Updates is closed after the done update, on error, or after Close.
type ProgressStream struct {
	updates chan progress.Update
	cancel  context.CancelFunc

	mu   sync.Mutex
	err  error
	once sync.Once
}

func (s *ProgressStream) Updates() <-chan progress.Update { return s.updates }

// Err returns the error that ended the stream, if any; it is meaningful once Updates is closed.
func (s *ProgressStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream; it is safe to call more than once.
func (s *ProgressStream) Close() {
	s.once.Do(s.cancel)
}

func (s *ProgressStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// StreamProgress subscribes to the progress channel id.
func (c *Client) StreamProgress(ctx context.Context, id string) (*ProgressStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := c.newRequest(ctx, http.MethodGet, "/progress/stream", url.Values{"id": {id}}, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// the stream outlives any client timeout
	hc := *c.http
	hc.Timeout = 0
	res, err := hc.Do(req)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "opening progress stream")
	}
	if res.StatusCode >= http.StatusBadRequest {
		defer res.Body.Close()
		cancel()
		return nil, decodeError(res)
	}

	s := &ProgressStream{updates: make(chan progress.Update), cancel: cancel}
	go func() {
		defer close(s.updates)
		defer res.Body.Close()
		err := readEvents(ctx, res, func(data string) bool {
			var u progress.Update
			if err := json.Unmarshal([]byte(data), &u); err != nil {
				return true // skip malformed events
			}
			select {
			case s.updates <- u:
			case <-ctx.Done():
				return false
			}
			return !u.Done
		})
		if err != nil && ctx.Err() == nil {
			s.setErr(err)
		}
	}()
	return s, nil
}

// readEvents calls fn with the data of every event until fn returns false or the body ends.
func readEvents(ctx context.Context, res *http.Response, fn func(data string) bool) error {
	sc := bufio.NewScanner(res.Body)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			payload := strings.Join(data, "\n")
			data = data[:0]
			if !fn(payload) {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment, eg: keep-alive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "reading progress stream")
	}
	return nil
}
