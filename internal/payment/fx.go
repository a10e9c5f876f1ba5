package payment

import (
	"github.com/salonkit/salonkit/internal/clock"
	"github.com/salonkit/salonkit/internal/config"
	"github.com/salonkit/salonkit/internal/payment/repository"
	"github.com/salonkit/salonkit/internal/payment/service"
	"github.com/salonkit/salonkit/internal/payment/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		service.NewService,
		newVerifier,
	),
)

func newVerifier(cfg config.Config, clk clock.Clock) (*stripe.Verifier, error) {
	return stripe.NewVerifier(cfg.StripeWebhookSecret, stripe.DefaultTolerance, clk)
}
