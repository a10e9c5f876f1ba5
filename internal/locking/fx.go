package locking

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/salonkit/salonkit/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("locking",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns a nil Locker when redis is not configured; all
// Locker methods tolerate the nil receiver.
func NewFromConfig(cfg config.Config) *Locker {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return NewLocker(client)
}
