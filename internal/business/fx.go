package business

import (
	"github.com/salonkit/salonkit/internal/business/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("business",
	fx.Provide(repository.Provide),
)
