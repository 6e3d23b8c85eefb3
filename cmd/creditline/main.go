package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditline/internal/account"
	"github.com/smallbiznis/creditline/internal/apikey"
	"github.com/smallbiznis/creditline/internal/clock"
	"github.com/smallbiznis/creditline/internal/config"
	"github.com/smallbiznis/creditline/internal/migration"
	"github.com/smallbiznis/creditline/internal/observability"
	"github.com/smallbiznis/creditline/internal/plan"
	"github.com/smallbiznis/creditline/internal/profile"
	"github.com/smallbiznis/creditline/internal/ratelimit"
	"github.com/smallbiznis/creditline/internal/seed"
	"github.com/smallbiznis/creditline/internal/server"
	"github.com/smallbiznis/creditline/internal/usage"
	"github.com/smallbiznis/creditline/internal/usagemetrics"
	"github.com/smallbiznis/creditline/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		plan.Module,
		profile.Module,
		apikey.Module,
		usage.Module,
		account.Module,
		ratelimit.Module,
		seed.Module,
		usagemetrics.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) {
			s.RegisterHealthRoutes()
			s.RegisterAPIRoutes()
			s.RegisterDevRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
