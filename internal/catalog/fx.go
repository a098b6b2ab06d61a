package catalog

import (
	"github.com/stockerhq/stocker/internal/catalog/repository"
	"github.com/stockerhq/stocker/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
