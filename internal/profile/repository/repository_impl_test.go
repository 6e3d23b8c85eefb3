package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditline/internal/plan"
	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupProfileDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&profiledomain.Profile{}))
	return db
}

func TestGetPlanDefaultsToFree(t *testing.T) {
	db := setupProfileDB(t)
	repo := Provide()

	info, err := repo.GetPlan(context.Background(), db, "missing")
	require.NoError(t, err)
	assert.Equal(t, profiledomain.DefaultPlan(), info)

	profile, err := repo.Get(context.Background(), db, "missing")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestSetPlanUpserts(t *testing.T) {
	db := setupProfileDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SetPlan(ctx, db, "user-1", profiledomain.PlanInfo{PlanID: "Starter", PlanStatus: " ACTIVE "}, now))
	info, err := repo.GetPlan(ctx, db, "user-1")
	require.NoError(t, err)
	assert.Equal(t, plan.Starter, info.PlanID)
	assert.Equal(t, plan.StatusActive, info.PlanStatus)

	require.NoError(t, repo.SetPlan(ctx, db, "user-1", profiledomain.PlanInfo{PlanID: plan.Pro, PlanStatus: plan.StatusCanceled}, now.Add(time.Hour)))
	info, err = repo.GetPlan(ctx, db, "user-1")
	require.NoError(t, err)
	assert.Equal(t, plan.Pro, info.PlanID)
	assert.Equal(t, plan.StatusCanceled, info.PlanStatus)

	var count int64
	require.NoError(t, db.Model(&profiledomain.Profile{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSetPlanRejectsBlankValues(t *testing.T) {
	db := setupProfileDB(t)
	repo := Provide()
	now := time.Now().UTC()

	err := repo.SetPlan(context.Background(), db, "user-1", profiledomain.PlanInfo{PlanStatus: plan.StatusActive}, now)
	assert.ErrorIs(t, err, profiledomain.ErrInvalidPlan)

	err = repo.SetPlan(context.Background(), db, "user-1", profiledomain.PlanInfo{PlanID: plan.Pro}, now)
	assert.ErrorIs(t, err, profiledomain.ErrInvalidPlanStatus)
}

func TestDeleteRemovesProfile(t *testing.T) {
	db := setupProfileDB(t)
	repo := Provide()
	ctx := context.Background()

	require.NoError(t, repo.SetPlan(ctx, db, "user-1", profiledomain.DefaultPlan(), time.Now().UTC()))
	require.NoError(t, repo.Delete(ctx, db, "user-1"))

	profile, err := repo.Get(ctx, db, "user-1")
	require.NoError(t, err)
	assert.Nil(t, profile)
}
