package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	List(ctx context.Context) ([]Response, error)
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	Revoke(ctx context.Context, keyID string) error
	// Authenticate resolves a raw bearer key to its owning user.
	Authenticate(ctx context.Context, rawKey string) (string, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindActiveByHash(ctx context.Context, db *gorm.DB, keyHash string, now time.Time) (*APIKey, error)
	FindByKeyID(ctx context.Context, db *gorm.DB, userID, keyID string) (*APIKey, error)
	List(ctx context.Context, db *gorm.DB, userID string) ([]APIKey, error)
	Deactivate(ctx context.Context, db *gorm.DB, userID, keyID string, now time.Time) error
	DeleteByUser(ctx context.Context, db *gorm.DB, userID string) error
}

type CreateRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type Response struct {
	KeyID      string     `json:"key_id"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

var (
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidKeyID = errors.New("invalid_key_id")
	ErrNotFound     = errors.New("not_found")
	ErrUnauthorized = errors.New("unauthorized")
)
