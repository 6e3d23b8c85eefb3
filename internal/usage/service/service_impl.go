package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditline/internal/clock"
	obsmetrics "github.com/smallbiznis/creditline/internal/observability/metrics"
	"github.com/smallbiznis/creditline/internal/plan"
	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
	usagedomain "github.com/smallbiznis/creditline/internal/usage/domain"
	"github.com/smallbiznis/creditline/internal/usage/period"
	"github.com/smallbiznis/creditline/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxFeatureLength = 128
	// Amounts above 2^53 cannot be represented exactly as float64.
	maxConsumeAmount = 1 << 53
)

type ServiceParam struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          usagedomain.Repository
	Profiles      profiledomain.Repository
	Plans         plan.Resolver
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	LedgerMetrics *obsmetrics.LedgerMetrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID         *snowflake.Node
	clock         clock.Clock
	repo          usagedomain.Repository
	profiles      profiledomain.Repository
	plans         plan.Resolver
	obsMetrics    *obsmetrics.Metrics
	ledgerMetrics *obsmetrics.LedgerMetrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		profiles:      p.Profiles,
		plans:         p.Plans,
		obsMetrics:    p.ObsMetrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

func (s *Service) Consume(ctx context.Context, req usagedomain.ConsumeRequest) (*usagedomain.Allowance, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, usagedomain.Invalid(usagedomain.ErrInvalidUser)
	}

	feature := strings.TrimSpace(req.Feature)
	if feature == "" || len(feature) > maxFeatureLength {
		s.recordConsume(ctx, feature, obsmetrics.OutcomeInvalid, 0)
		return nil, usagedomain.Invalid(usagedomain.ErrInvalidFeature)
	}

	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		s.recordConsume(ctx, feature, obsmetrics.OutcomeInvalid, 0)
		return nil, err
	}

	now := s.clock.Now()
	current := period.Current(now)

	info, err := s.profiles.GetPlan(ctx, s.db, userID)
	if err != nil {
		return nil, s.storageFailure(ctx, feature, "resolve plan", err)
	}
	creditsTotal := s.plans.CreditsFor(info.PlanID, info.PlanStatus)

	start := time.Now()
	balance, err := s.repo.Consume(ctx, s.db, usagedomain.ConsumeParams{
		EventID:      s.genID.Generate(),
		UserID:       userID,
		Feature:      feature,
		Amount:       amount,
		CreditsTotal: creditsTotal,
		PeriodStart:  current.Start,
		PeriodEnd:    current.End,
		Metadata:     req.Metadata,
		Now:          now,
	})
	switch {
	case err == nil:
		s.ledgerMetrics.ObserveConsume(obsmetrics.OutcomeSuccess, time.Since(start))
	case errors.Is(err, usagedomain.ErrUsageLimitExceeded):
		s.ledgerMetrics.ObserveConsume(obsmetrics.OutcomeLimitExceeded, time.Since(start))
		s.recordConsume(ctx, feature, obsmetrics.OutcomeLimitExceeded, 0)
		s.log.Debug("usage limit exceeded",
			zap.String("user_id", userID),
			zap.String("feature", feature),
			zap.Int64("amount", amount),
			zap.String("period_start", current.StartDate()),
		)
		return nil, usagedomain.ErrUsageLimitExceeded
	case errors.Is(err, usagedomain.ErrInvalidUsageAmount), errors.Is(err, usagedomain.ErrInvalidUsageTotal):
		s.recordConsume(ctx, feature, obsmetrics.OutcomeInvalid, 0)
		return nil, usagedomain.Invalid(err)
	default:
		s.ledgerMetrics.ObserveConsume(obsmetrics.OutcomeStorageError, time.Since(start))
		return nil, s.storageFailure(ctx, feature, "consume", err)
	}

	s.recordConsume(ctx, feature, obsmetrics.OutcomeSuccess, amount)
	s.log.Info("usage consumed",
		zap.String("user_id", userID),
		zap.String("feature", feature),
		zap.Int64("amount", amount),
		zap.Int64("credits_used", balance.CreditsUsed),
		zap.Int64("credits_total", balance.CreditsTotal),
	)

	return toAllowance(current, balance.CreditsTotal, balance.CreditsUsed), nil
}

func (s *Service) Allowance(ctx context.Context, userID string) (*usagedomain.Allowance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, usagedomain.Invalid(usagedomain.ErrInvalidUser)
	}

	current := period.Current(s.clock.Now())

	balance, err := s.repo.GetBalance(ctx, s.db, userID, current.Start)
	if err != nil {
		return nil, s.storageFailure(ctx, "", "get balance", err)
	}
	if balance != nil {
		return toAllowance(current, balance.CreditsTotal, balance.CreditsUsed), nil
	}

	info, err := s.profiles.GetPlan(ctx, s.db, userID)
	if err != nil {
		return nil, s.storageFailure(ctx, "", "resolve plan", err)
	}
	return toAllowance(current, s.plans.CreditsFor(info.PlanID, info.PlanStatus), 0), nil
}

func (s *Service) ListEvents(ctx context.Context, req usagedomain.ListEventsRequest) (usagedomain.ListEventsResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return usagedomain.ListEventsResponse{}, usagedomain.Invalid(usagedomain.ErrInvalidUser)
	}

	pageSize := pagination.NormalizePageSize(req.PageSize)
	filter := usagedomain.EventFilter{
		UserID: userID,
		Limit:  int(pageSize) + 1,
	}

	if raw := strings.TrimSpace(req.PeriodStart); raw != "" {
		p, err := period.Parse(raw)
		if err != nil {
			return usagedomain.ListEventsResponse{}, usagedomain.Invalid(usagedomain.ErrInvalidPeriodFilter)
		}
		filter.PeriodStart = &p.Start
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return usagedomain.ListEventsResponse{}, usagedomain.Invalid(usagedomain.ErrInvalidPageToken)
		}
		beforeID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return usagedomain.ListEventsResponse{}, usagedomain.Invalid(usagedomain.ErrInvalidPageToken)
		}
		filter.BeforeID = &beforeID
	}

	items, err := s.repo.ListEvents(ctx, s.db, filter)
	if err != nil {
		return usagedomain.ListEventsResponse{}, s.storageFailure(ctx, "", "list events", err)
	}

	page, pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(e *usagedomain.UsageEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: e.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	events := make([]usagedomain.UsageEvent, 0, len(page))
	for _, item := range page {
		events = append(events, *item)
	}

	return usagedomain.ListEventsResponse{
		PageInfo: *pageInfo,
		Events:   events,
	}, nil
}

// normalizeAmount accepts only finite positive whole numbers.
func normalizeAmount(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, usagedomain.Invalid(usagedomain.ErrInvalidUsageAmount)
	}
	if amount != math.Trunc(amount) || amount > maxConsumeAmount {
		return 0, usagedomain.Invalid(usagedomain.ErrInvalidUsageAmount)
	}
	return int64(amount), nil
}

func (s *Service) storageFailure(ctx context.Context, feature, op string, err error) error {
	s.ledgerMetrics.IncStorageError(err)
	if feature != "" {
		s.recordConsume(ctx, feature, obsmetrics.OutcomeStorageError, 0)
	}
	s.log.Error("usage storage failure",
		zap.String("op", op),
		zap.String("reason", obsmetrics.ClassifyLedgerError(err)),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %w", usagedomain.ErrStorageUnavailable, err)
}

func (s *Service) recordConsume(ctx context.Context, feature, outcome string, credits int64) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordUsageConsume(ctx, feature, outcome, credits)
}

func toAllowance(p period.Period, total, used int64) *usagedomain.Allowance {
	remaining := total - used
	if remaining < 0 {
		remaining = 0
	}
	return &usagedomain.Allowance{
		PeriodStart:      p.StartDate(),
		PeriodEnd:        p.EndDate(),
		CreditsTotal:     total,
		CreditsUsed:      used,
		CreditsRemaining: remaining,
	}
}
