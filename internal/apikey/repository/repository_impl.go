package repository

import (
	"context"
	"time"

	apikeydomain "github.com/smallbiznis/creditline/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (id, user_id, key_id, name, key_hash, is_active, created_at, updated_at, last_used_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.UserID,
		key.KeyID,
		key.Name,
		key.KeyHash,
		key.IsActive,
		key.CreatedAt,
		key.UpdatedAt,
		key.LastUsedAt,
		key.ExpiresAt,
	).Error
}

func (r *repo) FindActiveByHash(ctx context.Context, db *gorm.DB, keyHash string, now time.Time) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, key_id, name, key_hash, is_active, created_at, updated_at, last_used_at, expires_at
		 FROM api_keys
		 WHERE key_hash = ?
		   AND is_active = ?
		   AND (expires_at IS NULL OR expires_at > ?)
		 LIMIT 1`,
		keyHash,
		true,
		now,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, userID, keyID string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, key_id, name, key_hash, is_active, created_at, updated_at, last_used_at, expires_at
		 FROM api_keys WHERE user_id = ? AND key_id = ?`,
		userID,
		keyID,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID string) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, key_id, name, key_hash, is_active, created_at, updated_at, last_used_at, expires_at
		 FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, userID, keyID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys
		 SET is_active = ?, updated_at = ?, expires_at = COALESCE(expires_at, ?)
		 WHERE user_id = ? AND key_id = ?`,
		false,
		now,
		now,
		userID,
		keyID,
	).Error
}

func (r *repo) DeleteByUser(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Exec(`DELETE FROM api_keys WHERE user_id = ?`, userID).Error
}
