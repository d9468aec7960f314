package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kalamu/core/flashcard"
	"github.com/trezcool/kalamu/core/quota"
	testutil "github.com/trezcool/kalamu/tests"
)

func Test_flashcardApi(t *testing.T) {
	f := setup(t)
	usr := f.createUser(t, "user", "")
	other := f.createUser(t, "other", "")
	token := getToken(t, f.conf, usr)

	folder := testutil.CreateFolder(t, f.noteRepo, usr.ID, "History")
	n := testutil.CreateNote(t, f.noteRepo, usr.ID, "Rome",
		"<p>Rome was founded in 753 BC.</p><p>The republic fell in 27 BC.</p><p>Latin was its language.</p>", &folder.ID)
	foreign := testutil.CreateNote(t, f.noteRepo, other.ID, "Theirs", "<p>secret</p>", nil)

	var set flashcard.Set
	t.Run("generate", func(t *testing.T) {
		tests := []struct {
			name     string
			data     flashcard.GenerateRequest
			wantCode int
		}{
			{name: "notes required", data: flashcard.GenerateRequest{FolderID: folder.ID, Title: "Rome"}, wantCode: http.StatusBadRequest},
			{name: "bad count", data: flashcard.GenerateRequest{NoteIDs: []string{n.ID}, FolderID: folder.ID, Title: "Rome", CardCount: 7}, wantCode: http.StatusBadRequest},
			{name: "unknown folder", data: flashcard.GenerateRequest{NoteIDs: []string{n.ID}, FolderID: "lol", Title: "Rome"}, wantCode: http.StatusBadRequest},
			{name: "foreign note", data: flashcard.GenerateRequest{NoteIDs: []string{foreign.ID}, FolderID: folder.ID, Title: "Rome"}, wantCode: http.StatusBadRequest},
			{name: "success", data: flashcard.GenerateRequest{NoteIDs: []string{n.ID}, FolderID: folder.ID, Title: " Rome ", CardCount: 5}, wantCode: http.StatusCreated},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodPost, "/v1/flashcards/generate", token, marchallObj(t, tt.data))
				f.serve(req, rec)
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			})
		}

		req, rec := newAuthRequest(http.MethodGet, "/v1/flashcards/sets?module_id="+folder.ID, token)
		f.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		var sets []flashcard.Set
		decode(t, rec, &sets)
		require.Len(t, sets, 1)
		set = sets[0]
		assert.Equal(t, "Rome", set.Title)
		assert.Equal(t, "Generated from Rome", set.Description)
		assert.Greater(t, set.TotalCards, 0)
		assert.LessOrEqual(t, set.TotalCards, 5)
		assert.Zero(t, set.StudiedCards)
	})

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/flashcards/sets/"+set.ID, token)
		f.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &set)
		require.Len(t, set.Flashcards, set.TotalCards)
		for i, c := range set.Flashcards {
			assert.Equal(t, i, c.Position)
			assert.True(t, c.Difficulty.Valid())
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/flashcards/sets/"+set.ID, getToken(t, f.conf, other))
		f.serve(req, rec)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("review", func(t *testing.T) {
		card := set.Flashcards[0]
		for _, correct := range []bool{true, false} {
			req, rec := newAuthRequest(http.MethodPost, "/v1/flashcards/cards/"+card.ID+"/review", token, marchallObj(t, flashcard.Review{Correct: correct}))
			f.serve(req, rec)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}
		got, err := f.fcRepo.GetCard(context.Background(), usr.ID, card.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.ReviewCount)
		assert.Equal(t, 1, got.CorrectCount)

		req, rec := newAuthRequest(http.MethodPost, "/v1/flashcards/cards/"+card.ID+"/review", getToken(t, f.conf, other), []byte(`{"correct":true}`))
		f.serve(req, rec)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/flashcards/stats?module_id="+folder.ID, token)
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, flashcard.Stats{Sets: 1, Cards: set.TotalCards, StudiedCards: 1}),
		}, rec)
	})

	t.Run("quota exceeded", func(t *testing.T) {
		ctx := context.Background()
		for i := 1; i < quota.DefaultLimits.Of(quota.PlanFree, quota.FeatureFlashcards); i++ {
			require.NoError(t, f.quota.Consume(ctx, usr.ID, usr.Plan, quota.FeatureFlashcards))
		}
		data := flashcard.GenerateRequest{NoteIDs: []string{n.ID}, FolderID: folder.ID, Title: "Again"}
		req, rec := newAuthRequest(http.MethodPost, "/v1/flashcards/generate", token, marchallObj(t, data))
		f.serve(req, rec)
		require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"feature":"flashcard_generation"`)
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/flashcards/sets/"+set.ID, token)
		f.serve(req, rec)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodDelete, "/v1/flashcards/sets/"+set.ID, token)
		f.serve(req, rec)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
