package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	"github.com/stockerhq/stocker/internal/clock"
	orderdomain "github.com/stockerhq/stocker/internal/order/domain"
	"github.com/stockerhq/stocker/internal/outbox"
	subscriptiondomain "github.com/stockerhq/stocker/internal/subscription/domain"
	"github.com/stockerhq/stocker/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Activator provisions subscriptions for paid orders. It runs inside the
// order service's transaction; each call loads the aggregate under the
// same row lock.
type Activator struct {
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   subscriptiondomain.Repository
	outbox *outbox.Writer
}

type ActivatorParam struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   subscriptiondomain.Repository
	Outbox *outbox.Writer
}

func NewActivator(p ActivatorParam) orderdomain.Activator {
	return &Activator{
		log:    p.Log.Named("subscription.activator"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		outbox: p.Outbox,
	}
}

// EnsureSubscription returns the subscription backing the order, creating
// an active custom-package subscription on the first call. Retried
// activations reuse the one already linked.
func (a *Activator) EnsureSubscription(ctx context.Context, tx *gorm.DB, order *orderdomain.SubscriptionOrder) (snowflake.ID, error) {
	if order.SubscriptionID != nil {
		existing, err := a.repo.FindByIDForUpdate(ctx, tx, order.TenantID, *order.SubscriptionID)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			return existing.ID, nil
		}
	}

	now := a.clock.Now()
	recurring := money.Money{
		Amount:   order.SubTotalAmount - order.DiscountTotalAmount,
		Currency: order.Currency,
	}
	sub, err := subscriptiondomain.NewSubscription(
		a.genID.Generate(), newSubscriptionNumber(), order.TenantID, nil,
		order.BillingCycle, recurring, 1, now,
	)
	if err != nil {
		return 0, err
	}
	if err := sub.Activate(now); err != nil {
		return 0, err
	}

	if err := a.repo.Insert(ctx, tx, sub); err != nil {
		return 0, err
	}
	if err := a.outbox.Append(ctx, tx, order.TenantID, sub.DrainEvents()); err != nil {
		return 0, err
	}

	a.log.Info("subscription provisioned for order",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("order_id", order.ID.String()),
	)
	return sub.ID, nil
}

// ActivateItem grants one order line on the subscription. Re-granting an
// already-present module is treated as success so retries are idempotent.
func (a *Activator) ActivateItem(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, order *orderdomain.SubscriptionOrder, item *orderdomain.SubscriptionOrderItem) error {
	sub, err := a.repo.FindByIDForUpdate(ctx, tx, order.TenantID, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return subscriptiondomain.ErrSubscriptionNotFound
	}

	now := a.clock.Now()
	switch item.ItemType {
	case cartdomain.CartItemTypeModule, cartdomain.CartItemTypeAddOn:
		err = sub.AddModule(a.genID.Generate(), item.Code, item.Name, item.LineTotal(), item.TrialDays, now)
		if errors.Is(err, subscriptiondomain.ErrModuleAlreadyGranted) {
			err = nil
		}
	case cartdomain.CartItemTypeBundle:
		for _, code := range item.IncludedModuleCodes {
			grantErr := sub.AddModule(a.genID.Generate(), code, code, money.Money{Currency: item.Currency}, item.TrialDays, now)
			if grantErr != nil && !errors.Is(grantErr, subscriptiondomain.ErrModuleAlreadyGranted) {
				err = grantErr
				break
			}
		}
	case cartdomain.CartItemTypeStoragePlan:
		err = sub.SetStorageBucket(order.TenantID.String(), item.StorageGB, now)
	case cartdomain.CartItemTypeUsers:
		err = sub.UpdateUserCount(item.Quantity, now)
	default:
		err = orderdomain.ErrItemNotFound
	}
	if err != nil {
		return err
	}

	if err := a.repo.Save(ctx, tx, sub); err != nil {
		return err
	}
	return a.outbox.Append(ctx, tx, order.TenantID, sub.DrainEvents())
}
