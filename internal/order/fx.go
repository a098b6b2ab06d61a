package order

import (
	"github.com/stockerhq/stocker/internal/order/repository"
	"github.com/stockerhq/stocker/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
