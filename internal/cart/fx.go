package cart

import (
	"github.com/stockerhq/stocker/internal/cart/repository"
	"github.com/stockerhq/stocker/internal/cart/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cart.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
