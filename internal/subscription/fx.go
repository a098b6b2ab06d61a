package subscription

import (
	"github.com/stockerhq/stocker/internal/subscription/repository"
	"github.com/stockerhq/stocker/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewActivator),
)
