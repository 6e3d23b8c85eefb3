package repository

import (
	"context"
	"errors"
	"time"

	usagedomain "github.com/smallbiznis/creditline/internal/usage/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerRepo struct{}

func Provide() usagedomain.Repository {
	return &ledgerRepo{}
}

func (r *ledgerRepo) Consume(ctx context.Context, db *gorm.DB, params usagedomain.ConsumeParams) (*usagedomain.UsageBalance, error) {
	if params.Amount <= 0 {
		return nil, usagedomain.ErrInvalidUsageAmount
	}
	if params.CreditsTotal < 0 {
		return nil, usagedomain.ErrInvalidUsageTotal
	}

	periodStart := datatypes.Date(params.PeriodStart)
	var balance usagedomain.UsageBalance

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := usagedomain.UsageBalance{
			UserID:       params.UserID,
			PeriodStart:  periodStart,
			PeriodEnd:    datatypes.Date(params.PeriodEnd),
			CreditsTotal: params.CreditsTotal,
			CreditsUsed:  0,
			CreatedAt:    params.Now,
			UpdatedAt:    params.Now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_start"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		res := tx.Exec(
			`UPDATE usage_balances
			 SET credits_used = credits_used + ?,
			     updated_at = ?
			 WHERE user_id = ?
			   AND period_start = ?
			   AND credits_used + ? <= credits_total`,
			params.Amount,
			params.Now,
			params.UserID,
			periodStart,
			params.Amount,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return usagedomain.ErrUsageLimitExceeded
		}

		event := usagedomain.UsageEvent{
			ID:          params.EventID,
			UserID:      params.UserID,
			Feature:     params.Feature,
			Amount:      params.Amount,
			PeriodStart: periodStart,
			CreatedAt:   params.Now,
		}
		if params.Metadata != nil {
			event.Metadata = datatypes.JSONMap(params.Metadata)
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		return tx.Where("user_id = ? AND period_start = ?", params.UserID, periodStart).
			Take(&balance).Error
	})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *ledgerRepo) GetBalance(ctx context.Context, db *gorm.DB, userID string, periodStart time.Time) (*usagedomain.UsageBalance, error) {
	var balance usagedomain.UsageBalance
	err := db.WithContext(ctx).
		Where("user_id = ? AND period_start = ?", userID, datatypes.Date(periodStart)).
		Take(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *ledgerRepo) ListBalances(ctx context.Context, db *gorm.DB, userID string) ([]usagedomain.UsageBalance, error) {
	var balances []usagedomain.UsageBalance
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("period_start DESC").
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *ledgerRepo) ListEvents(ctx context.Context, db *gorm.DB, filter usagedomain.EventFilter) ([]*usagedomain.UsageEvent, error) {
	stmt := db.WithContext(ctx).Where("user_id = ?", filter.UserID)
	if filter.PeriodStart != nil {
		stmt = stmt.Where("period_start = ?", datatypes.Date(*filter.PeriodStart))
	}
	if filter.BeforeID != nil {
		stmt = stmt.Where("id < ?", *filter.BeforeID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var events []*usagedomain.UsageEvent
	if err := stmt.Order("id DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *ledgerRepo) DeleteByUser(ctx context.Context, db *gorm.DB, userID string) error {
	if err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&usagedomain.UsageEvent{}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&usagedomain.UsageBalance{}).Error
}
