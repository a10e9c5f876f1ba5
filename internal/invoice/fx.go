package invoice

import (
	"github.com/salonkit/salonkit/internal/invoice/repository"
	"github.com/salonkit/salonkit/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
