package payment

import (
	"github.com/stockerhq/stocker/internal/config"
	"github.com/stockerhq/stocker/internal/payment/adapters"
	"github.com/stockerhq/stocker/internal/payment/adapters/iyzico"
	"github.com/stockerhq/stocker/internal/payment/adapters/lemonsqueezy"
	"github.com/stockerhq/stocker/internal/payment/webhook"
	"go.uber.org/fx"
)

func newRegistry(cfg config.Config) *adapters.Registry {
	return adapters.NewRegistry(
		iyzico.New(cfg.IyzicoWebhookSecret),
		lemonsqueezy.New(cfg.LemonSqueezyWebhookSecret),
	)
}

var Module = fx.Module("payment.webhook",
	fx.Provide(newRegistry),
	fx.Provide(webhook.NewService),
)
