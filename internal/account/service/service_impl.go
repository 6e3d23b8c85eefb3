package service

import (
	"context"
	"strings"

	accountdomain "github.com/smallbiznis/creditline/internal/account/domain"
	apikeydomain "github.com/smallbiznis/creditline/internal/apikey/domain"
	"github.com/smallbiznis/creditline/internal/cache"
	"github.com/smallbiznis/creditline/internal/clock"
	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
	usagedomain "github.com/smallbiznis/creditline/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Profiles    profiledomain.Repository
	APIKeys     apikeydomain.Repository
	Usage       usagedomain.Repository
	APIKeyCache cache.APIKeyCache `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	profiles    profiledomain.Repository
	apiKeys     apikeydomain.Repository
	usage       usagedomain.Repository
	apiKeyCache cache.APIKeyCache
}

func New(p Params) accountdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("account.service"),
		clock:       p.Clock,
		profiles:    p.Profiles,
		apiKeys:     p.APIKeys,
		usage:       p.Usage,
		apiKeyCache: p.APIKeyCache,
	}
}

func (s *Service) Export(ctx context.Context, userID string) (*accountdomain.Export, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, accountdomain.ErrInvalidUser
	}

	profile, err := s.profiles.Get(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	balances, err := s.usage.ListBalances(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.usage.ListEvents(ctx, s.db, usagedomain.EventFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	events := make([]usagedomain.UsageEvent, 0, len(items))
	for _, item := range items {
		events = append(events, *item)
	}
	if balances == nil {
		balances = []usagedomain.UsageBalance{}
	}

	return &accountdomain.Export{
		UserID:        userID,
		ExportedAt:    s.clock.Now(),
		Profile:       profile,
		UsageBalances: balances,
		UsageEvents:   events,
	}, nil
}

func (s *Service) Delete(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return accountdomain.ErrInvalidUser
	}

	var revokedHashes []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keys, err := s.apiKeys.List(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, key := range keys {
			revokedHashes = append(revokedHashes, key.KeyHash)
		}

		if err := s.apiKeys.DeleteByUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.usage.DeleteByUser(ctx, tx, userID); err != nil {
			return err
		}
		return s.profiles.Delete(ctx, tx, userID)
	})
	if err != nil {
		s.log.Error("account delete failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	if s.apiKeyCache != nil {
		for _, hash := range revokedHashes {
			s.apiKeyCache.Invalidate(hash)
		}
	}

	s.log.Info("account deleted", zap.String("user_id", userID), zap.Int("api_keys", len(revokedHashes)))
	return nil
}
