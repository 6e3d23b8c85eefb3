package seed

import (
	"context"
	"errors"
	"strings"

	apikeydomain "github.com/smallbiznis/creditline/internal/apikey/domain"
	"github.com/smallbiznis/creditline/internal/config"
	"github.com/smallbiznis/creditline/internal/usercontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const bootstrapKeyName = "bootstrap"

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, svc apikeydomain.Service, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				_, err := EnsureBootstrapKey(ctx, cfg, svc, log)
				return err
			},
		})
	}),
)

// EnsureBootstrapKey issues an API key for cfg.BootstrapUserID when that user
// has none yet. It never runs in production. The secret is only returned and
// logged when a key is created.
func EnsureBootstrapKey(ctx context.Context, cfg config.Config, svc apikeydomain.Service, log *zap.Logger) (*apikeydomain.SecretResponse, error) {
	userID := strings.TrimSpace(cfg.BootstrapUserID)
	if userID == "" || cfg.IsProduction() {
		return nil, nil
	}
	if svc == nil {
		return nil, errors.New("seed api key service is required")
	}

	ctx = usercontext.WithUserID(ctx, userID)
	keys, err := svc.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if key.IsActive {
			return nil, nil
		}
	}

	secret, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: bootstrapKeyName})
	if err != nil {
		return nil, err
	}

	log.Named("seed").Info("bootstrap api key issued",
		zap.String("user_id", userID),
		zap.String("key_id", secret.KeyID),
		zap.String("api_key", secret.APIKey),
	)
	return secret, nil
}
