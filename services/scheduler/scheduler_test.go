package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
)

type fakeQuota struct {
	quota.Service
	keep int
}

func (f *fakeQuota) Prune(_ context.Context, keepMonths int) (int64, error) {
	f.keep = keepMonths
	return 3, nil
}

func TestSweepProgress(t *testing.T) {
	tracker := progress.NewTracker()
	old := tracker.Create("u1")
	s := New(tracker, &fakeQuota{}, core.NopLogger{}, &core.Config{ProgressTTL: time.Minute})

	progress.NowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	defer func() { progress.NowFunc = time.Now }()
	fresh := tracker.Create("u2")

	s.SweepProgress()
	_, err := tracker.Latest(old)
	assert.Equal(t, progress.ErrNotFound, err)
	_, err = tracker.Latest(fresh)
	assert.NoError(t, err)
}

func TestPruneUsage(t *testing.T) {
	q := &fakeQuota{}
	s := New(progress.NewTracker(), q, core.NopLogger{}, &core.Config{})
	s.PruneUsage()
	assert.Equal(t, usageKeepMonths, q.keep)
}

func TestStartStop(t *testing.T) {
	s := New(progress.NewTracker(), &fakeQuota{}, core.NopLogger{}, &core.Config{})
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
