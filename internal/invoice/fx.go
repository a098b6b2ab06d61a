package invoice

import (
	"github.com/stockerhq/stocker/internal/invoice/repository"
	"github.com/stockerhq/stocker/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
