package cache

import "time"

const defaultAPIKeyTTL = 30 * time.Second

// APIKeyIdentity is what an authenticated API key resolves to.
type APIKeyIdentity struct {
	KeyID  string
	UserID string
}

// APIKeyCache stores key-hash lookups for the authentication hot path.
type APIKeyCache interface {
	Get(keyHash string) (APIKeyIdentity, bool)
	Set(keyHash string, identity APIKeyIdentity)
	Invalidate(keyHash string)
}

type apiKeyCache struct {
	entries Cache[string, APIKeyIdentity]
	ttl     time.Duration
}

// NewAPIKeyCache returns a cache whose entries live for ttl. A non-positive ttl
// falls back to the default.
func NewAPIKeyCache(ttl time.Duration) APIKeyCache {
	if ttl <= 0 {
		ttl = defaultAPIKeyTTL
	}
	return &apiKeyCache{
		entries: NewTTLCache[string, APIKeyIdentity](),
		ttl:     ttl,
	}
}

func (c *apiKeyCache) Get(keyHash string) (APIKeyIdentity, bool) {
	return c.entries.Get(keyHash)
}

func (c *apiKeyCache) Set(keyHash string, identity APIKeyIdentity) {
	if keyHash == "" || identity.UserID == "" {
		return
	}
	c.entries.Set(keyHash, identity, c.ttl)
}

func (c *apiKeyCache) Invalidate(keyHash string) {
	c.entries.Delete(keyHash)
}
