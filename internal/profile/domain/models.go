// Package domain holds the profile fields the usage subsystem reads.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/creditline/internal/plan"
	"gorm.io/gorm"
)

// Profile mirrors the subscription state written by the billing integration.
type Profile struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	Email      *string   `gorm:"type:text" json:"email,omitempty"`
	PlanID     string    `gorm:"type:text;not null;default:free" json:"plan_id"`
	PlanStatus string    `gorm:"type:text;not null;default:free" json:"plan_status"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Profile) TableName() string { return "profiles" }

// PlanInfo is the (plan, status) pair that drives allowance resolution.
type PlanInfo struct {
	PlanID     plan.ID     `json:"plan_id"`
	PlanStatus plan.Status `json:"plan_status"`
}

// DefaultPlan applies when a user has no profile row yet.
func DefaultPlan() PlanInfo {
	return PlanInfo{PlanID: plan.Free, PlanStatus: plan.StatusFree}
}

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, userID string) (*Profile, error)
	GetPlan(ctx context.Context, db *gorm.DB, userID string) (PlanInfo, error)
	SetPlan(ctx context.Context, db *gorm.DB, userID string, info PlanInfo, now time.Time) error
	Delete(ctx context.Context, db *gorm.DB, userID string) error
}

var (
	ErrInvalidPlan       = errors.New("invalid_plan")
	ErrInvalidPlanStatus = errors.New("invalid_plan_status")
)
