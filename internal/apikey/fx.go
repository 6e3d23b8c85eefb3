package apikey

import (
	"time"

	"github.com/smallbiznis/creditline/internal/apikey/repository"
	"github.com/smallbiznis/creditline/internal/apikey/service"
	"github.com/smallbiznis/creditline/internal/cache"
	"github.com/smallbiznis/creditline/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) cache.APIKeyCache {
		return cache.NewAPIKeyCache(time.Duration(cfg.APIKeyCacheTTLSeconds) * time.Second)
	}),
	fx.Provide(service.New),
)
