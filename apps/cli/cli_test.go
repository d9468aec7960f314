package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/kalamu/core/flashcard"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/user"
)

const testToken = "tok-kim"

type fakeServer struct {
	*httptest.Server
	mu      sync.Mutex
	reviews map[string]bool
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{reviews: make(map[string]bool)}
	history := "f1"
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+testToken {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or malformed jwt"})
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("POST /v1/users/login", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "correct-Horse-42" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token": testToken,
			"user":  user.User{ID: "u1", Username: in.Username, Email: "kim@test.cd", Plan: quota.PlanFree},
		})
	})
	mux.HandleFunc("GET /v1/users/me", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, user.User{ID: "u1", Username: "kim", Email: "kim@test.cd", Plan: quota.PlanFree})
	}))
	mux.HandleFunc("GET /v1/notes", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []note.Note{
			{ID: "n1", Title: "Rome", FolderID: &history, IsFavorite: true},
			{ID: "n2", Title: "Loose ends"},
		})
	}))
	mux.HandleFunc("GET /v1/folders", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []note.Folder{{ID: "f1", Name: "History"}})
	}))
	mux.HandleFunc("POST /v1/progress", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	}))
	mux.HandleFunc("POST /v1/lectures", authed(func(w http.ResponseWriter, r *http.Request) {
		qe := quota.NewExceededError(quota.PlanFree, quota.FeatureLectureUpload, 3, 3)
		writeJSON(w, http.StatusPaymentRequired, qe)
	}))
	mux.HandleFunc("GET /v1/flashcards/sets/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, flashcard.Set{ID: r.PathValue("id"), Title: "Rome", Flashcards: []flashcard.Flashcard{
			{ID: "c1", Question: "Who founded Rome?", Answer: "Romulus", Difficulty: flashcard.DifficultyEasy},
			{ID: "c2", Question: "When did Rome fall?", Answer: "476", Difficulty: flashcard.DifficultyHard},
		}})
	}))
	mux.HandleFunc("POST /v1/flashcards/cards/{id}/review", authed(func(w http.ResponseWriter, r *http.Request) {
		var rev flashcard.Review
		_ = json.NewDecoder(r.Body).Decode(&rev)
		fs.mu.Lock()
		fs.reviews[r.PathValue("id")] = rev.Correct
		fs.mu.Unlock()
		writeJSON(w, http.StatusOK, flashcard.Flashcard{ID: r.PathValue("id")})
	}))

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

type result struct {
	out, errOut string
	err         error
}

// run executes the CLI; flag variables are reset first since cobra keeps them between runs.
func run(t *testing.T, srv *fakeServer, creds, stdin string, args ...string) result {
	t.Helper()
	verbose, jsonOutput = false, false
	loginUsername = ""
	notesFolder, notesUnassigned, notesFavorites = "", false, false
	noteTitle, noteFile = "", ""
	uploadTitle, uploadFolder, uploadDetail, uploadModel = "", "", "", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--server", srv.URL, "--credentials", creds))
	err := rootCmd.Execute()
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func saveToken(t *testing.T, path string) {
	t.Helper()
	b, err := yaml.Marshal(credentials{Username: "kim", Token: testToken})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}

func TestLogin(t *testing.T) {
	srv := newFakeServer(t)
	creds := filepath.Join(t.TempDir(), "kalamu", credentialsFile)

	res := run(t, srv, creds, "", "whoami")
	assert.Equal(t, errNotLoggedIn, res.err)

	readPasswordFunc = func(int) ([]byte, error) { return []byte("wrong"), nil }
	res = run(t, srv, creds, "", "login", "-u", "kim")
	require.Error(t, res.err)
	assert.Equal(t, "invalid credentials", res.err.Error())

	readPasswordFunc = func(int) ([]byte, error) { return []byte("correct-Horse-42"), nil }
	res = run(t, srv, creds, "kim\n", "login")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Logged in as kim")

	b, err := os.ReadFile(creds)
	require.NoError(t, err)
	var saved credentials
	require.NoError(t, yaml.Unmarshal(b, &saved))
	assert.Equal(t, credentials{Server: srv.URL, Username: "kim", Token: testToken}, saved)
	info, err := os.Stat(creds)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	res = run(t, srv, creds, "", "whoami")
	require.NoError(t, res.err)
	assert.Equal(t, "kim <kim@test.cd> (free plan)\n", res.out)

	res = run(t, srv, creds, "", "logout")
	require.NoError(t, res.err)
	res = run(t, srv, creds, "", "whoami")
	assert.Equal(t, errNotLoggedIn, res.err)
}

func TestNotesList(t *testing.T) {
	srv := newFakeServer(t)
	creds := filepath.Join(t.TempDir(), credentialsFile)
	saveToken(t, creds)

	res := run(t, srv, creds, "", "notes", "ls")
	require.NoError(t, res.err)
	lines := strings.Split(strings.TrimSpace(res.out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "* Rome")
	assert.Contains(t, lines[1], "History")
	assert.Contains(t, lines[2], "Loose ends")

	res = run(t, srv, creds, "", "notes", "ls", "--unassigned", "--json")
	require.NoError(t, res.err)
	var notes []note.Note
	require.NoError(t, json.Unmarshal([]byte(res.out), &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "n2", notes[0].ID)

	res = run(t, srv, creds, "", "folders", "ls")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "History")
	assert.Contains(t, res.out, "(unassigned)")
}

func TestUploadQuota(t *testing.T) {
	srv := newFakeServer(t)
	dir := t.TempDir()
	creds := filepath.Join(dir, credentialsFile)
	saveToken(t, creds)

	res := run(t, srv, creds, "", "upload", filepath.Join(dir, "missing.pdf"))
	require.Error(t, res.err)

	bad := filepath.Join(dir, "notes.docx")
	require.NoError(t, os.WriteFile(bad, []byte("doc"), 0o600))
	res = run(t, srv, creds, "", "upload", bad)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Unsupported file type")

	slides := filepath.Join(dir, "Week 1.pdf")
	require.NoError(t, os.WriteFile(slides, []byte("%PDF-1.4"), 0o600))
	res = run(t, srv, creds, "", "upload", slides)
	require.Error(t, res.err)
	assert.Equal(t, "quota exceeded", res.err.Error())
	assert.Contains(t, res.errOut, "Upgrade to Pro for 50 AI-processed lecture uploads per month.")
}

func TestStudy(t *testing.T) {
	srv := newFakeServer(t)
	creds := filepath.Join(t.TempDir(), credentialsFile)
	saveToken(t, creds)

	start := time.Now()
	// reveal, back (ignored on the first card), reveal, correct; reveal, wrong
	res := run(t, srv, creds, "b\n\ny\n\nn\n", "study", "s1")
	require.NoError(t, res.err)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond, "the summary waits for the completion delay")

	assert.Contains(t, res.out, "[1/2] (easy) Who founded Rome?")
	assert.Contains(t, res.out, "Answer: Romulus")
	assert.Contains(t, res.out, "Done! 1/2 correct (50%)")
	srv.mu.Lock()
	assert.Equal(t, map[string]bool{"c1": true, "c2": false}, srv.reviews)
	srv.mu.Unlock()
}
