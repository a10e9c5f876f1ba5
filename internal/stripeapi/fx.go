package stripeapi

import (
	"github.com/salonkit/salonkit/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("stripeapi",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) *Client {
	return NewClient(Config{
		SecretKey: cfg.StripeSecretKey,
		BaseURL:   cfg.StripeAPIBaseURL,
	})
}
