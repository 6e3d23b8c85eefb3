package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/creditline/internal/apikey/domain"
	"github.com/smallbiznis/creditline/internal/cache"
	"github.com/smallbiznis/creditline/internal/clock"
	"github.com/smallbiznis/creditline/internal/usercontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix      = "cl_live_"
	apiKeySecretBytes = 32
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  apikeydomain.Repository
	Cache cache.APIKeyCache
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  apikeydomain.Repository
	genID *snowflake.Node
	cache cache.APIKeyCache
	clock clock.Clock
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
		cache: p.Cache,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context) ([]apikeydomain.Response, error) {
	userID, err := s.userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}

	return resp, nil
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	userID, err := s.userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	keyID := newKeyID(id)
	plain, hash, err := generateAPIKey(keyID)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        id,
		UserID:    userID,
		KeyID:     keyID,
		Name:      name,
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: req.ExpiresAt,
	}

	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key created", zap.String("user_id", userID), zap.String("key_id", keyID))
	return &apikeydomain.SecretResponse{KeyID: key.KeyID, APIKey: plain}, nil
}

func (s *Service) Revoke(ctx context.Context, keyID string) error {
	userID, err := s.userIDFromContext(ctx)
	if err != nil {
		return err
	}

	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, userID, trimmed)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	if err := s.repo.Deactivate(ctx, s.db, userID, trimmed, s.clock.Now()); err != nil {
		return err
	}
	s.cache.Invalidate(key.KeyHash)
	return nil
}

func (s *Service) Authenticate(ctx context.Context, rawKey string) (string, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return "", apikeydomain.ErrUnauthorized
	}

	hash := apikeydomain.HashAPIKey(rawKey)
	if identity, ok := s.cache.Get(hash); ok {
		return identity.UserID, nil
	}

	key, err := s.repo.FindActiveByHash(ctx, s.db, hash, s.clock.Now())
	if err != nil {
		return "", err
	}
	if key == nil || subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return "", apikeydomain.ErrUnauthorized
	}

	s.cache.Set(hash, cache.APIKeyIdentity{KeyID: key.KeyID, UserID: key.UserID})
	return key.UserID, nil
}

func (s *Service) userIDFromContext(ctx context.Context) (string, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return "", apikeydomain.ErrInvalidUser
	}
	return userID, nil
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:      key.KeyID,
		Name:       key.Name,
		IsActive:   key.IsActive,
		CreatedAt:  key.CreatedAt,
		LastUsedAt: key.LastUsedAt,
		ExpiresAt:  key.ExpiresAt,
	}
}

func generateAPIKey(keyID string) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	trimmed := strings.TrimPrefix(keyID, "key_")
	plain := fmt.Sprintf("%s%s_%s", apiKeyPrefix, trimmed, secretPart)
	return plain, apikeydomain.HashAPIKey(plain), nil
}

func newKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}

