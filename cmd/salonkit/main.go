package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/salonkit/salonkit/internal/booking"
	"github.com/salonkit/salonkit/internal/business"
	"github.com/salonkit/salonkit/internal/clock"
	"github.com/salonkit/salonkit/internal/config"
	"github.com/salonkit/salonkit/internal/invoice"
	"github.com/salonkit/salonkit/internal/locking"
	"github.com/salonkit/salonkit/internal/migration"
	"github.com/salonkit/salonkit/internal/notification"
	"github.com/salonkit/salonkit/internal/observability"
	"github.com/salonkit/salonkit/internal/payment"
	"github.com/salonkit/salonkit/internal/providers/email"
	"github.com/salonkit/salonkit/internal/providers/pdf"
	"github.com/salonkit/salonkit/internal/server"
	"github.com/salonkit/salonkit/internal/stripeapi"
	"github.com/salonkit/salonkit/pkg/db"
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

		email.Module,
		pdf.Module,
		notification.Module,
		locking.Module,
		stripeapi.Module,

		business.Module,
		booking.Module,
		invoice.Module,
		payment.Module,

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
