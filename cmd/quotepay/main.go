package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotepay/internal/clock"
	"github.com/smallbiznis/quotepay/internal/config"
	"github.com/smallbiznis/quotepay/internal/migration"
	"github.com/smallbiznis/quotepay/internal/observability"
	"github.com/smallbiznis/quotepay/internal/payment"
	"github.com/smallbiznis/quotepay/internal/providers/mollie"
	"github.com/smallbiznis/quotepay/internal/quote"
	"github.com/smallbiznis/quotepay/internal/ratelimit"
	"github.com/smallbiznis/quotepay/internal/scheduler"
	"github.com/smallbiznis/quotepay/internal/server"
	"github.com/smallbiznis/quotepay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Payment provider
		mollie.Module,

		// Functional domains
		quote.Module,
		payment.Module,
		scheduler.Module,

		server.Module,
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
