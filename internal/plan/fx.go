package plan

import "go.uber.org/fx"

var Module = fx.Module("plan",
	fx.Provide(
		NewCatalogHolder,
		func(h *CatalogHolder) Resolver { return h },
	),
)
