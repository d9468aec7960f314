package quota

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var NowFunc = time.Now // mockable

type (
	Repository interface {
		GetUsage(ctx context.Context, userID string, feature Feature, period string) (int, error)
		IncrementUsage(ctx context.Context, userID string, feature Feature, period string, n int) error
		DeleteUsageBefore(ctx context.Context, period string) (int64, error)
	}

	Service interface {
		// Check fails with an *ExceededError if the feature has no allowance left this month.
		Check(ctx context.Context, userID string, plan Plan, feature Feature) error
		// Consume records one use of the feature.
		Consume(ctx context.Context, userID string, plan Plan, feature Feature) error
		Usage(ctx context.Context, userID string, plan Plan) ([]Usage, error)
		// Prune deletes usage older than keepMonths months.
		Prune(ctx context.Context, keepMonths int) (int64, error)
	}

	service struct {
		repo   Repository
		limits Limits
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, limits Limits) Service {
	if limits == nil {
		limits = DefaultLimits
	}
	return &service{repo: repo, limits: limits}
}

func (svc *service) Check(ctx context.Context, userID string, plan Plan, feature Feature) error {
	limit := svc.limits.Of(plan, feature)
	used, err := svc.repo.GetUsage(ctx, userID, feature, Period(NowFunc()))
	if err != nil {
		return errors.Wrap(err, "getting usage")
	}
	if used >= limit {
		return NewExceededError(plan, feature, limit, used)
	}
	return nil
}

func (svc *service) Consume(ctx context.Context, userID string, plan Plan, feature Feature) error {
	return errors.Wrap(
		svc.repo.IncrementUsage(ctx, userID, feature, Period(NowFunc()), 1),
		"incrementing usage")
}

func (svc *service) Usage(ctx context.Context, userID string, plan Plan) ([]Usage, error) {
	period := Period(NowFunc())
	usage := make([]Usage, 0, len(Features))
	for _, f := range Features {
		used, err := svc.repo.GetUsage(ctx, userID, f, period)
		if err != nil {
			return nil, errors.Wrap(err, "getting usage")
		}
		limit := svc.limits.Of(plan, f)
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		usage = append(usage, Usage{
			Feature:   f,
			Label:     f.Label(),
			Period:    period,
			Used:      used,
			Limit:     limit,
			Remaining: remaining,
		})
	}
	return usage, nil
}

func (svc *service) Prune(ctx context.Context, keepMonths int) (int64, error) {
	cutoff := NowFunc().UTC().AddDate(0, -keepMonths, 0)
	n, err := svc.repo.DeleteUsageBefore(ctx, Period(cutoff))
	return n, errors.Wrap(err, "deleting old usage")
}
