package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/kalamu/apps/api/echo"
	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/lecture"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
	testutil "github.com/trezcool/kalamu/tests"
)

var pdfBytes = []byte("%PDF-1.4 fake deck")

func Test_lectureApi_upload(t *testing.T) {
	f := setup(t)
	usr := f.createUser(t, "user", "")
	token := getToken(t, f.conf, usr)
	folder := testutil.CreateFolder(t, f.noteRepo, usr.ID, "Physics")

	t.Run("auth required", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/lectures", "", "deck.pdf", pdfBytes, nil)
		f.serve(req, rec)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("file required", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/lectures", token, "", nil, map[string]string{"title": "x"})
		f.serve(req, rec)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"file"`)
	})

	t.Run("unsupported type", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/lectures", token, "essay.docx", []byte("doc"), nil)
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"file": lecture.ErrUnsupportedType.Error()}),
		}, rec)
	})

	t.Run("powerpoint without converter", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/lectures", token, "deck.pptx", []byte("pk"), nil)
		f.serve(req, rec)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		fields := map[string]string{"title": "Thermo", "module_id": folder.ID, "detail_level": "summary"}
		req, rec := newUploadRequest(t, "/v1/lectures", token, "deck.pdf", pdfBytes, fields)
		f.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var n note.Note
		decode(t, rec, &n)
		assert.Equal(t, "Thermo", n.Title)
		assert.Equal(t, note.TypeLecture, n.Type)
		assert.True(t, n.InFolder(folder.ID))
		assert.Equal(t, "deck.pdf", n.SourceFilename)
		assert.Equal(t, 2, n.PageCount)
		assert.Contains(t, n.Content, "Entropy always increases")

		usage, err := f.quota.Usage(context.Background(), usr.ID, usr.Plan)
		require.NoError(t, err)
		for _, u := range usage {
			if u.Feature == quota.FeatureLectureUpload {
				assert.Equal(t, 1, u.Used)
			}
		}
	})

	t.Run("quota exceeded", func(t *testing.T) {
		ctx := context.Background()
		for i := 1; i < quota.DefaultLimits.Of(quota.PlanFree, quota.FeatureLectureUpload); i++ {
			require.NoError(t, f.quota.Consume(ctx, usr.ID, usr.Plan, quota.FeatureLectureUpload))
		}
		req, rec := newUploadRequest(t, "/v1/lectures", token, "deck.pdf", pdfBytes, nil)
		f.serve(req, rec)
		require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())

		var body map[string]interface{}
		decode(t, rec, &body)
		assert.Equal(t, string(quota.FeatureLectureUpload), body["feature"])
		assert.Equal(t, false, body["hide_upgrade"])
		assert.Contains(t, body["message"], "Upgrade to Pro")
	})
}

func Test_lectureApi_uploadPowerPoint(t *testing.T) {
	f := setup(t, withConverter())
	usr := f.createUser(t, "user", quota.PlanPro)

	req, rec := newUploadRequest(t, "/v1/lectures", getToken(t, f.conf, usr), "Week 3 - Optics.pptx", []byte("pk"), nil)
	f.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var n note.Note
	decode(t, rec, &n)
	assert.Equal(t, note.TypeLecture, n.Type)
	assert.NotEmpty(t, n.Title)
}

func Test_lectureApi_unavailableAI(t *testing.T) {
	f := setup(t, withAI(nil))
	usr := f.createUser(t, "user", "")

	req, rec := newUploadRequest(t, "/v1/lectures", getToken(t, f.conf, usr), "deck.pdf", pdfBytes, nil)
	f.serve(req, rec)
	assert.Equal(t, http.StatusNotImplemented, rec.Code, rec.Body.String())
}

func readEvents(t *testing.T, body string) []progress.Update {
	t.Helper()
	var updates []progress.Update
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var u progress.Update
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &u))
		updates = append(updates, u)
	}
	return updates
}

func Test_lectureApi_progress(t *testing.T) {
	f := setup(t)
	usr := f.createUser(t, "user", "")
	other := f.createUser(t, "other", "")
	token := getToken(t, f.conf, usr)

	t.Run("unknown channel", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/progress/stream?id=lol")
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: progress.ErrNotFound.Error()})}, rec)
	})

	req, rec := newAuthRequest(http.MethodPost, "/v1/progress", token)
	f.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created echoapi.IDResponse
	decode(t, rec, &created)
	require.NotEmpty(t, created.ID)

	t.Run("channel of someone else is ignored", func(t *testing.T) {
		fields := map[string]string{"progress_id": created.ID}
		req, rec := newUploadRequest(t, "/v1/lectures", getToken(t, f.conf, other), "deck.pdf", pdfBytes, fields)
		f.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		latest, err := f.tracker.Latest(created.ID)
		require.NoError(t, err)
		assert.False(t, latest.Done)
	})

	t.Run("stream replays completion", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/lectures", token, "deck.pdf", pdfBytes, map[string]string{"progress_id": created.ID})
		f.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		// no token needed: the id is the capability
		req, rec = newRequest(http.MethodGet, "/v1/progress/stream?id="+created.ID)
		f.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		updates := readEvents(t, rec.Body.String())
		require.Len(t, updates, 1)
		assert.Equal(t, progress.Update{Progress: 100, Phase: lecture.PhaseComplete, EtaSeconds: updates[0].EtaSeconds, Done: true}, updates[0])
	})

	t.Run("stream relays live updates", func(t *testing.T) {
		id := f.tracker.Create(usr.ID)
		go func() {
			f.tracker.Publish(id, progress.Update{Progress: 40, Phase: lecture.PhaseGenerating, EtaSeconds: progress.Seconds(0)})
			f.tracker.Publish(id, progress.Update{Progress: 100, Phase: lecture.PhaseComplete, Done: true})
		}()

		req, rec := newRequest(http.MethodGet, "/v1/progress/stream?id="+id)
		f.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		updates := readEvents(t, rec.Body.String())
		require.NotEmpty(t, updates)
		assert.True(t, updates[len(updates)-1].Done)
		for i := 1; i < len(updates); i++ {
			assert.GreaterOrEqual(t, updates[i].Progress, updates[i-1].Progress)
		}
	})
}

func Test_lectureApi_convert(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		f := setup(t)
		usr := f.createUser(t, "user", "")
		req, rec := newUploadRequest(t, "/v1/convert/pdf", getToken(t, f.conf, usr), "deck.pptx", []byte("pk"), nil)
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotImplemented,
			wantData: marchallObj(t, httpErr{Error: (&core.Unavailable{Feature: "PowerPoint conversion"}).Error()}),
		}, rec)
	})

	f := setup(t, withConverter())
	usr := f.createUser(t, "user", "")
	token := getToken(t, f.conf, usr)

	t.Run("pdf is rejected", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/convert/pdf", token, "deck.pdf", pdfBytes, nil)
		f.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/convert/pdf", token, "deck.pptx", []byte("pk"), nil)
		f.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="deck.pdf"`)
		assert.Equal(t, "%PDF-1.7 converted", rec.Body.String())
	})
}

func Test_lectureApi_usage(t *testing.T) {
	f := setup(t)
	usr := f.createUser(t, "user", quota.PlanPro)
	require.NoError(t, f.quota.Consume(context.Background(), usr.ID, usr.Plan, quota.FeatureFlashcards))

	req, rec := newAuthRequest(http.MethodGet, "/v1/usage", getToken(t, f.conf, usr))
	f.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp echoapi.UsageResponse
	decode(t, rec, &resp)
	assert.Equal(t, quota.PlanPro, resp.Plan)
	require.Len(t, resp.Usage, len(quota.Features))
	for _, u := range resp.Usage {
		limit := quota.DefaultLimits.Of(quota.PlanPro, u.Feature)
		assert.Equal(t, limit, u.Limit)
		assert.Equal(t, limit-u.Used, u.Remaining)
		if u.Feature == quota.FeatureFlashcards {
			assert.Equal(t, 1, u.Used)
		}
	}
}
