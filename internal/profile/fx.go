package profile

import (
	"github.com/smallbiznis/creditline/internal/profile/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.repository",
	fx.Provide(repository.Provide),
)
