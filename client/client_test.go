package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Login(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/users/login":
			var in loginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			if in.Password != "correct-Horse-42" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"token": "tok-" + in.Username})
		case "/v1/users/me":
			gotAuth = r.Header.Get("Authorization")
			writeJSON(w, http.StatusOK, map[string]string{"id": "u1", "username": "kim"})
		default:
			http.NotFound(w, r)
		}
	})

	_, err := c.Login(context.Background(), "kim", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid credentials", apiErr.Error())
	assert.Empty(t, c.Token())

	res, err := c.Login(context.Background(), "kim", "correct-Horse-42")
	require.NoError(t, err)
	assert.Equal(t, "tok-kim", res.Token)
	assert.Equal(t, "tok-kim", c.Token())

	usr, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kim", usr.Username)
	assert.Equal(t, "Bearer tok-kim", gotAuth)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		body   string
		assert func(t *testing.T, err error)
	}{
		{
			name: "quota exceeded",
			code: http.StatusPaymentRequired,
			body: `{"error":"quota_exceeded","kind":"quota_exceeded","plan":"free","feature":"lecture_upload","limit":3,"used":3,"remaining":0,"hide_upgrade":false}`,
			assert: func(t *testing.T, err error) {
				qe, ok := quota.AsExceeded(err)
				require.True(t, ok)
				assert.Equal(t, quota.PlanFree, qe.Plan)
				assert.Equal(t, quota.FeatureLectureUpload, qe.Feature)
				assert.Equal(t, 3, qe.Limit)
				assert.False(t, qe.HideUpgrade())
			},
		},
		{
			name: "validation",
			code: http.StatusBadRequest,
			body: `{"title":"this field is required","name":"too long"}`,
			assert: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, map[string]string{"title": "this field is required", "name": "too long"}, apiErr.Fields)
				assert.Equal(t, "name: too long; title: this field is required", apiErr.Error())
				assert.False(t, apiErr.Temporary())
			},
		},
		{
			name: "html error page",
			code: http.StatusBadGateway,
			body: `<html>bad gateway</html>`,
			assert: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "request failed: Bad Gateway", apiErr.Message)
				assert.True(t, apiErr.Temporary())
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.ListFolders(context.Background())
			require.Error(t, err)
			tc.assert(t, err)
		})
	}
}

func TestClient_ListNotes(t *testing.T) {
	fav := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/notes", r.URL.Path)
		assert.Equal(t, "f1", r.URL.Query().Get("folder_id"))
		assert.Equal(t, "true", r.URL.Query().Get("favorite"))
		assert.Equal(t, "-updated_at,title", r.URL.Query().Get("ordering"))
		writeJSON(w, http.StatusOK, []note.Note{{ID: "n1", Title: "Rome"}})
	})

	notes, err := c.ListNotes(context.Background(), NoteQuery{
		FolderID: "f1",
		Favorite: &fav,
		Ordering: []string{"-updated_at", "title"},
	})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Rome", notes[0].Title)
}

func TestClient_UpdateNote(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		gotQuery = r.URL.RawQuery
		var patch note.NotePatch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		writeJSON(w, http.StatusOK, note.Note{ID: "n1", Title: *patch.Title})
	})

	title := "Greece"
	n, err := c.UpdateNote(context.Background(), "n1", note.NotePatch{Title: &title}, true)
	require.NoError(t, err)
	assert.Equal(t, "Greece", n.Title)
	assert.Equal(t, "skip_embedding=true", gotQuery)

	_, err = c.UpdateNote(context.Background(), "n1", note.NotePatch{Title: &title}, false)
	require.NoError(t, err)
	assert.Empty(t, gotQuery)
}

func TestClient_UploadLecture(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/lectures", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, fh, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)

		assert.Equal(t, "physics.pdf", fh.Filename)
		assert.Equal(t, "application/pdf", fh.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.4", string(data))
		assert.Equal(t, "pg-1", r.FormValue("progress_id"))
		assert.Empty(t, r.Form["module_id"])
		writeJSON(w, http.StatusCreated, note.Note{ID: "n1", Title: r.FormValue("title"), Type: note.TypeLecture})
	})

	n, err := c.UploadLecture(context.Background(), Upload{
		Filename:    "physics.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4"),
		Title:       "Physics",
		ProgressID:  "pg-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Physics", n.Title)
	assert.Equal(t, note.TypeLecture, n.Type)
}

func TestClient_ConvertToPDF(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr error
	}{
		{name: "not implemented", code: http.StatusNotImplemented, wantErr: ErrConversionUnavailable},
		{name: "not found", code: http.StatusNotFound, wantErr: ErrConversionUnavailable},
		{name: "ok", code: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.code != http.StatusOK {
					writeJSON(w, tc.code, map[string]string{"error": "unavailable"})
					return
				}
				w.Header().Set("Content-Type", "application/pdf")
				_, _ = io.WriteString(w, "%PDF-1.7")
			})

			pdf, err := c.ConvertToPDF(context.Background(), "deck.pptx", "", []byte("pk"))
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "%PDF-1.7", string(pdf))
		})
	}
}

func sseHandler(updates []progress.Update, hold <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "pg-1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "progress not found"})
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, ": hello\n\n")
		for _, u := range updates {
			b, _ := json.Marshal(u)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
			}
		}
	}
}

func TestClient_StreamProgress(t *testing.T) {
	eta := 30
	updates := []progress.Update{
		{Progress: 20, Phase: "Extracting text from file", EtaSeconds: &eta},
		{Progress: 100, Phase: "Complete", Done: true},
		{Progress: 100, Phase: "ignored after done", Done: true},
	}
	c := newTestClient(t, sseHandler(updates, nil))

	_, err := c.StreamProgress(context.Background(), "unknown")
	assert.True(t, IsStatus(err, http.StatusNotFound))

	s, err := c.StreamProgress(context.Background(), "pg-1")
	require.NoError(t, err)
	defer s.Close()

	var got []progress.Update
	for u := range s.Updates() {
		got = append(got, u)
	}
	require.NoError(t, s.Err())
	require.Len(t, got, 2)
	assert.Equal(t, 30, *got[0].EtaSeconds)
	assert.True(t, got[1].Done)
}

func TestClient_StreamProgress_Close(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	c := newTestClient(t, sseHandler([]progress.Update{{Progress: 5, Phase: "Uploading file"}}, hold))

	s, err := c.StreamProgress(context.Background(), "pg-1")
	require.NoError(t, err)
	u := <-s.Updates()
	assert.Equal(t, 5, u.Progress)

	s.Close()
	s.Close()
	select {
	case _, ok := <-s.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
	assert.NoError(t, s.Err())
}
