package quota

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	counts map[string]int
}

func newMemRepo() *memRepo { return &memRepo{counts: make(map[string]int)} }

func (r *memRepo) key(userID string, f Feature, period string) string {
	return fmt.Sprintf("%s|%s|%s", userID, f, period)
}

func (r *memRepo) GetUsage(_ context.Context, userID string, f Feature, period string) (int, error) {
	return r.counts[r.key(userID, f, period)], nil
}

func (r *memRepo) IncrementUsage(_ context.Context, userID string, f Feature, period string, n int) error {
	r.counts[r.key(userID, f, period)] += n
	return nil
}

func (r *memRepo) DeleteUsageBefore(_ context.Context, period string) (int64, error) {
	var n int64
	for k := range r.counts {
		if k[len(k)-7:] < period {
			delete(r.counts, k)
			n++
		}
	}
	return n, nil
}

func TestService_CheckAndConsume(t *testing.T) {
	NowFunc = func() time.Time { return time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC) }
	defer func() { NowFunc = time.Now }()

	ctx := context.Background()
	svc := NewService(newMemRepo(), Limits{
		PlanFree: {FeatureLectureUpload: 2},
		PlanPro:  {FeatureLectureUpload: 3},
	})

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.Check(ctx, "u1", PlanFree, FeatureLectureUpload))
		require.NoError(t, svc.Consume(ctx, "u1", PlanFree, FeatureLectureUpload))
	}

	err := svc.Check(ctx, "u1", PlanFree, FeatureLectureUpload)
	qe, ok := AsExceeded(err)
	require.True(t, ok, "want *ExceededError, got %v", err)
	assert.Equal(t, KindExceeded, qe.Kind)
	assert.Equal(t, PlanFree, qe.Plan)
	assert.Equal(t, 2, qe.Limit)
	assert.Equal(t, 0, qe.Remaining)
	assert.False(t, qe.HideUpgrade())
	assert.Equal(t, "Upgrade to Pro for 50 AI-processed lecture uploads per month.", qe.Message())

	// upgrading lifts the limit
	assert.NoError(t, svc.Check(ctx, "u1", PlanPro, FeatureLectureUpload))

	// other users are not affected
	assert.NoError(t, svc.Check(ctx, "u2", PlanFree, FeatureLectureUpload))

	// next month resets
	NowFunc = func() time.Time { return time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC) }
	assert.NoError(t, svc.Check(ctx, "u1", PlanFree, FeatureLectureUpload))
}

func TestService_Usage(t *testing.T) {
	NowFunc = func() time.Time { return time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC) }
	defer func() { NowFunc = time.Now }()

	ctx := context.Background()
	svc := NewService(newMemRepo(), nil)
	require.NoError(t, svc.Consume(ctx, "u1", PlanPro, FeatureFlashcards))

	usage, err := svc.Usage(ctx, "u1", PlanPro)
	require.NoError(t, err)
	require.Len(t, usage, len(Features))
	for _, u := range usage {
		assert.Equal(t, "2026-10", u.Period)
		if u.Feature == FeatureFlashcards {
			assert.Equal(t, 1, u.Used)
			assert.Equal(t, 199, u.Remaining)
		} else {
			assert.Zero(t, u.Used)
		}
	}
}

func TestExceededError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *ExceededError
		want string
		hide bool
	}{
		{
			name: "pro lecture uploads",
			err:  NewExceededError(PlanPro, FeatureLectureUpload, 50, 50),
			want: "You've used all of this month's AI usage for lecture uploads. It will reset next month.",
			hide: true,
		},
		{
			name: "free references",
			err:  NewExceededError(PlanFree, FeatureReferences, 5, 7),
			want: "Upgrade to Pro to unlock more academic references.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Message())
			assert.Equal(t, tt.hide, tt.err.HideUpgrade())
			assert.Zero(t, tt.err.Remaining)
		})
	}
}

func TestService_Prune(t *testing.T) {
	NowFunc = func() time.Time { return time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC) }
	defer func() { NowFunc = time.Now }()

	ctx := context.Background()
	repo := newMemRepo()
	_ = repo.IncrementUsage(ctx, "u1", FeatureFlashcards, "2025-01", 3)
	_ = repo.IncrementUsage(ctx, "u1", FeatureFlashcards, "2026-09", 1)
	svc := NewService(repo, nil)

	n, err := svc.Prune(ctx, 12)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	used, _ := repo.GetUsage(ctx, "u1", FeatureFlashcards, "2026-09")
	assert.Equal(t, 1, used)
}
