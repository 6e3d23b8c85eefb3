package plan

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/creditline/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CatalogHolder serves the current catalog and swaps it when plans.yml changes.
type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

var _ Resolver = (*CatalogHolder)(nil)

// NewStaticHolder serves a fixed catalog.
func NewStaticHolder(catalog Catalog) *CatalogHolder {
	h := &CatalogHolder{}
	h.current.Store(catalog)
	return h
}

// NewCatalogHolder loads plans.yml when present and watches it for changes.
// Without a file the built-in table is used.
func NewCatalogHolder(cfg config.Config, log *zap.Logger) (*CatalogHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.PlansConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/creditline")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read plans config: %w", err)
		}
		log.Info("plans config not found, using built-in allowances")
		return NewStaticHolder(DefaultCatalog()), nil
	}

	catalog, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticHolder(catalog)

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCatalog(v)
		if err != nil {
			log.Warn("plans config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plans config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

func (h *CatalogHolder) CreditsFor(planID ID, status Status) int64 {
	return h.Get().CreditsFor(planID, status)
}

func decodeCatalog(v *viper.Viper) (Catalog, error) {
	raw := map[string]Limit{}
	if err := v.UnmarshalKey("plans", &raw); err != nil {
		return nil, fmt.Errorf("decode plans: %w", err)
	}
	catalog := make(Catalog, len(raw))
	for id, limit := range raw {
		catalog[Normalize(ID(id))] = limit
	}
	if err := validateCatalog(catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

func validateCatalog(catalog Catalog) error {
	if _, ok := catalog[Free]; !ok {
		return errors.New("plans.free is required")
	}
	for id, limit := range catalog {
		if limit.CreditsMonthly < 0 {
			return fmt.Errorf("plans.%s.creditsMonthly must not be negative", id)
		}
	}
	return nil
}
