package study

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kalamu/core/flashcard"
	"github.com/trezcool/kalamu/core/quota"
)

type review struct {
	cardID  string
	correct bool
}

type fakeAPI struct {
	mu        sync.Mutex
	set       *flashcard.Set
	genErr    error
	reviewErr error
	reviews   []review
}

func (api *fakeAPI) GenerateSet(context.Context, flashcard.GenerateRequest) (*flashcard.Set, error) {
	if api.genErr != nil {
		return nil, api.genErr
	}
	return api.set, nil
}

func (api *fakeAPI) GetSet(_ context.Context, id string) (*flashcard.Set, error) {
	if api.set == nil || api.set.ID != id {
		return nil, errors.New("flashcard set not found")
	}
	return api.set, nil
}

func (api *fakeAPI) ReviewCard(_ context.Context, cardID string, correct bool) (*flashcard.Flashcard, error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.reviews = append(api.reviews, review{cardID, correct})
	if api.reviewErr != nil {
		return nil, api.reviewErr
	}
	return &flashcard.Flashcard{ID: cardID}, nil
}

func (api *fakeAPI) Reviews() []review {
	api.mu.Lock()
	defer api.mu.Unlock()
	return append([]review(nil), api.reviews...)
}

func newSet(n int) *flashcard.Set {
	set := &flashcard.Set{ID: "s1", Title: "Rome", TotalCards: n}
	for i := 0; i < n; i++ {
		set.Flashcards = append(set.Flashcards, flashcard.Flashcard{
			ID:       string(rune('a' + i)),
			SetID:    "s1",
			Position: i,
			Question: "Q",
			Answer:   "A",
		})
	}
	return set
}

type completions struct {
	mu  sync.Mutex
	got []Summary
}

func (c *completions) record(s Summary) {
	c.mu.Lock()
	c.got = append(c.got, s)
	c.mu.Unlock()
}

func (c *completions) Get() []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Summary(nil), c.got...)
}

func TestSession_FourCards(t *testing.T) {
	api := &fakeAPI{set: newSet(4)}
	done := new(completions)
	s := New(api, WithCompletionDelay(20*time.Millisecond), OnComplete(done.record))

	_, err := s.Open(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, Studying, s.State())

	ctx := context.Background()
	for i, correct := range []bool{true, false, true, true} {
		card, ok := s.Card()
		require.True(t, ok)
		assert.Equal(t, i, card.Position)
		assert.False(t, s.ShowAnswer())
		s.Reveal()
		assert.True(t, s.ShowAnswer())
		require.NoError(t, s.Answer(ctx, correct))
	}

	assert.Equal(t, Complete, s.State())
	assert.Equal(t, 75, s.Accuracy())
	doneCards, total := s.Progress()
	assert.Equal(t, 4, doneCards)
	assert.Equal(t, 4, total)
	assert.Equal(t, ErrNotStudying, s.Answer(ctx, true), "complete sessions take no more answers")

	_, shown := s.Summary()
	assert.False(t, shown, "the summary waits for the completion delay")
	require.Eventually(t, func() bool { return len(done.Get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, []Summary{{Correct: 3, Answered: 4, Accuracy: 75}}, done.Get())

	sum, shown := s.Summary()
	assert.True(t, shown)
	assert.Equal(t, 75, sum.Accuracy)

	set := s.Set()
	assert.Equal(t, 4, set.StudiedCards)
	assert.Equal(t, 1, set.Flashcards[1].ReviewCount)
	assert.Equal(t, 0, set.Flashcards[1].CorrectCount)
	assert.Len(t, api.Reviews(), 4)
	assert.Equal(t, review{"b", false}, api.Reviews()[1])
}

func TestSession_Back(t *testing.T) {
	api := &fakeAPI{set: newSet(3)}
	s := New(api)
	s.Start(*api.set)
	ctx := context.Background()

	s.Back()
	doneCards, _ := s.Progress()
	assert.Equal(t, 0, doneCards, "back is ignored on the first card")

	require.NoError(t, s.Answer(ctx, false))
	s.Reveal()
	s.Back()
	assert.False(t, s.ShowAnswer())
	card, _ := s.Card()
	assert.Equal(t, "a", card.ID)

	// the first answer stays counted; the second one is persisted only
	require.NoError(t, s.Answer(ctx, true))
	assert.Equal(t, 0, s.Accuracy())
	require.NoError(t, s.Answer(ctx, true))
	require.NoError(t, s.Answer(ctx, true))

	assert.Equal(t, Complete, s.State())
	assert.Len(t, api.Reviews(), 4)
	set := s.Set()
	assert.Equal(t, 2, set.Flashcards[0].ReviewCount)
	assert.Equal(t, 1, set.Flashcards[0].CorrectCount)
	assert.Equal(t, 67, s.Accuracy())
	s.Close()
}

func TestSession_ReviewFailureDoesNotBlock(t *testing.T) {
	api := &fakeAPI{set: newSet(2), reviewErr: errors.New("offline")}
	s := New(api, WithCompletionDelay(time.Millisecond))
	s.Start(*api.set)

	require.NoError(t, s.Answer(context.Background(), true))
	require.NoError(t, s.Answer(context.Background(), true))
	assert.Equal(t, Complete, s.State())
	assert.Equal(t, 100, s.Accuracy())
}

func TestSession_EmptySet(t *testing.T) {
	done := new(completions)
	s := New(new(fakeAPI), OnComplete(done.record))
	s.Start(flashcard.Set{ID: "empty"})

	assert.Equal(t, Complete, s.State())
	assert.Equal(t, 0, s.Accuracy())
	_, ok := s.Card()
	assert.False(t, ok)
	assert.Equal(t, ErrNotStudying, s.Answer(context.Background(), true))
	assert.Equal(t, []Summary{{}}, done.Get())
}

func TestSession_Generate(t *testing.T) {
	api := &fakeAPI{genErr: quota.NewExceededError(quota.PlanFree, quota.FeatureFlashcards, 5, 5)}
	s := New(api)
	req := flashcard.GenerateRequest{NoteIDs: []string{"n1"}, FolderID: "f1", Title: "Rome"}

	_, err := s.Generate(context.Background(), req)
	assert.True(t, quota.IsExceeded(err))
	assert.Equal(t, Overview, s.State())

	api.genErr, api.set = nil, newSet(2)
	set, err := s.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "s1", set.ID)
	assert.Equal(t, Studying, s.State())
}

func TestSession_RestartIgnoresPendingSummary(t *testing.T) {
	api := &fakeAPI{set: newSet(1)}
	done := new(completions)
	s := New(api, WithCompletionDelay(30*time.Millisecond), OnComplete(done.record))
	s.Start(*api.set)

	require.NoError(t, s.Answer(context.Background(), true))
	s.Restart()
	assert.Equal(t, Studying, s.State())
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, done.Get())

	require.NoError(t, s.Answer(context.Background(), false))
	require.Eventually(t, func() bool { return len(done.Get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Summary{Correct: 0, Answered: 1, Accuracy: 0}, done.Get()[0])
}
