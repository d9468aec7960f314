package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/quota"
)

type usageRepository struct {
	repository
}

var _ quota.Repository = (*usageRepository)(nil) // interface compliance check

func NewUsageRepository(exec core.DBExecutor) *usageRepository {
	return &usageRepository{repository{exec: exec}}
}

func (repo usageRepository) GetUsage(ctx context.Context, userID string, feature quota.Feature, period string) (int, error) {
	exe := repo.exec
	var count int
	err := sqlx.GetContext(ctx, exe, &count,
		exe.Rebind("SELECT count FROM feature_usage WHERE user_id = ? AND feature = ? AND period = ?"),
		userID, string(feature), period)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, errors.Wrap(err, "getting usage")
}

func (repo usageRepository) IncrementUsage(ctx context.Context, userID string, feature quota.Feature, period string, n int) error {
	exe := repo.exec
	_, err := exe.ExecContext(ctx, exe.Rebind(`
		INSERT INTO feature_usage (user_id, feature, period, count) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, feature, period) DO UPDATE SET count = feature_usage.count + excluded.count`),
		userID, string(feature), period, n)
	return errors.Wrap(err, "incrementing usage")
}

func (repo usageRepository) DeleteUsageBefore(ctx context.Context, period string) (int64, error) {
	exe := repo.exec
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM feature_usage WHERE period < ?"), period)
	if err != nil {
		return 0, errors.Wrap(err, "deleting usage")
	}
	return res.RowsAffected()
}
