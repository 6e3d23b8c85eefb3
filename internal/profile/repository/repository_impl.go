package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/creditline/internal/plan"
	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() profiledomain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, userID string) (*profiledomain.Profile, error) {
	var profile profiledomain.Profile
	err := db.WithContext(ctx).Where("id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) GetPlan(ctx context.Context, db *gorm.DB, userID string) (profiledomain.PlanInfo, error) {
	profile, err := r.Get(ctx, db, userID)
	if err != nil {
		return profiledomain.PlanInfo{}, err
	}
	if profile == nil {
		return profiledomain.DefaultPlan(), nil
	}

	info := profiledomain.PlanInfo{
		PlanID:     plan.Normalize(plan.ID(profile.PlanID)),
		PlanStatus: plan.NormalizeStatus(plan.Status(profile.PlanStatus)),
	}
	if info.PlanID == "" {
		info.PlanID = plan.Free
	}
	if info.PlanStatus == "" {
		info.PlanStatus = plan.StatusFree
	}
	return info, nil
}

func (r *repo) SetPlan(ctx context.Context, db *gorm.DB, userID string, info profiledomain.PlanInfo, now time.Time) error {
	profile := profiledomain.Profile{
		ID:         userID,
		PlanID:     string(plan.Normalize(info.PlanID)),
		PlanStatus: string(plan.NormalizeStatus(info.PlanStatus)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if strings.TrimSpace(profile.PlanID) == "" {
		return profiledomain.ErrInvalidPlan
	}
	if strings.TrimSpace(profile.PlanStatus) == "" {
		return profiledomain.ErrInvalidPlanStatus
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan_id", "plan_status", "updated_at"}),
	}).Create(&profile).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Where("id = ?", userID).Delete(&profiledomain.Profile{}).Error
}
