package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	"github.com/stockerhq/stocker/internal/clock"
	"github.com/stockerhq/stocker/internal/config"
	orderdomain "github.com/stockerhq/stocker/internal/order/domain"
	"github.com/stockerhq/stocker/internal/outbox"
	"github.com/stockerhq/stocker/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	repo      orderdomain.Repository
	cartRepo  cartdomain.Repository
	activator orderdomain.Activator
	billing   *config.BillingConfigHolder
	outbox    *outbox.Writer
}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      orderdomain.Repository
	CartRepo  cartdomain.Repository
	Activator orderdomain.Activator
	Billing   *config.BillingConfigHolder
	Outbox    *outbox.Writer
}

func NewService(p ServiceParam) orderdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("order.service"),

		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		cartRepo:  p.CartRepo,
		activator: p.Activator,
		billing:   p.Billing,
		outbox:    p.Outbox,
	}
}

// Checkout freezes the cart into a pending order. The cart moves to
// CheckoutPending and stays there until the payment outcome settles it.
func (s *Service) Checkout(ctx context.Context, req orderdomain.CheckoutRequest) (*orderdomain.SubscriptionOrder, error) {
	tenantID, cartID, err := s.parseRef(ctx, req.CartID, cartdomain.ErrCartNotFound)
	if err != nil {
		return nil, err
	}

	policy := s.billing.Get()
	now := s.clock.Now()

	var order *orderdomain.SubscriptionOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.cartRepo.FindByIDForUpdate(ctx, tx, tenantID, cartID)
		if err != nil {
			return err
		}
		if cart == nil {
			return cartdomain.ErrCartNotFound
		}
		if err := cart.StartCheckout(now); err != nil {
			return err
		}

		itemIDs := make([]snowflake.ID, len(cart.Items))
		for i := range itemIDs {
			itemIDs[i] = s.genID.Generate()
		}
		order, err = orderdomain.NewFromCart(s.genID.Generate(), newOrderNumber(), cart, itemIDs, policy.TaxRate, now)
		if err != nil {
			return err
		}
		if req.BillingAddress != nil {
			if err := order.SetBillingAddress(*req.BillingAddress, now); err != nil {
				return err
			}
		}

		if err := s.cartRepo.Save(ctx, tx, cart); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, order); err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, tx, tenantID, cart.DrainEvents()); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, tenantID, order.DrainEvents())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("total", order.TotalAmount),
	)
	return order, nil
}

func (s *Service) GetByID(ctx context.Context, orderID string) (*orderdomain.SubscriptionOrder, error) {
	tenantID, id, err := s.parseRef(ctx, orderID, orderdomain.ErrOrderNotFound)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

// GetByProviderOrderID resolves the order a webhook refers to. Webhooks
// carry no tenant header, so the lookup is provider-scoped.
func (s *Service) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*orderdomain.SubscriptionOrder, error) {
	order, err := s.repo.FindByProviderOrderID(ctx, s.db, strings.TrimSpace(providerOrderID))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) SetBillingAddress(ctx context.Context, orderID string, addr orderdomain.BillingAddress) (*orderdomain.SubscriptionOrder, error) {
	return s.mutate(ctx, orderID, func(order *orderdomain.SubscriptionOrder, _ *gorm.DB, now time.Time) error {
		return order.SetBillingAddress(addr, now)
	})
}

func (s *Service) InitiatePayment(ctx context.Context, req orderdomain.InitiatePaymentRequest) (*orderdomain.SubscriptionOrder, error) {
	return s.mutate(ctx, req.OrderID, func(order *orderdomain.SubscriptionOrder, _ *gorm.DB, now time.Time) error {
		return order.InitiatePayment(req.Method, req.ProviderOrderID, req.ProviderToken, now)
	})
}

// CompletePayment settles the order and its source cart.
func (s *Service) CompletePayment(ctx context.Context, req orderdomain.PaymentResultRequest) (*orderdomain.SubscriptionOrder, error) {
	return s.mutate(ctx, req.OrderID, func(order *orderdomain.SubscriptionOrder, tx *gorm.DB, now time.Time) error {
		if err := order.CompletePayment(req.TransactionID, now); err != nil {
			return err
		}
		return s.settleCart(ctx, tx, order, now, true)
	})
}

// FailPayment records the failure and hands the cart back to the customer.
func (s *Service) FailPayment(ctx context.Context, req orderdomain.PaymentResultRequest) (*orderdomain.SubscriptionOrder, error) {
	return s.mutate(ctx, req.OrderID, func(order *orderdomain.SubscriptionOrder, tx *gorm.DB, now time.Time) error {
		if err := order.FailPayment(req.Reason, now); err != nil {
			return err
		}
		return s.settleCart(ctx, tx, order, now, false)
	})
}

// Activate provisions the subscription and walks the unactivated lines.
// Lines that fail keep their error and are retried on the next call; the
// order completes only once every line is activated.
func (s *Service) Activate(ctx context.Context, orderID string) (*orderdomain.SubscriptionOrder, error) {
	return s.mutate(ctx, orderID, func(order *orderdomain.SubscriptionOrder, tx *gorm.DB, now time.Time) error {
		if order.Status == orderdomain.OrderStatusPaymentCompleted {
			if err := order.StartActivation(now); err != nil {
				return err
			}
		}
		if order.Status != orderdomain.OrderStatusActivating {
			return orderdomain.ErrInvalidTransition
		}

		subscriptionID, err := s.activator.EnsureSubscription(ctx, tx, order)
		if err != nil {
			return err
		}
		for _, item := range order.UnactivatedItems() {
			if err := s.activator.ActivateItem(ctx, tx, subscriptionID, order, item); err != nil {
				s.log.Warn("order item activation failed",
					zap.String("order_id", order.ID.String()),
					zap.String("item_code", item.Code),
					zap.Error(err),
				)
				if markErr := order.MarkItemActivationFailed(item.ID, err.Error(), now); markErr != nil {
					return markErr
				}
				continue
			}
			if err := order.MarkItemActivated(item.ID, now); err != nil {
				return err
			}
		}

		if len(order.UnactivatedItems()) == 0 {
			return order.Complete(subscriptionID, now)
		}
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, orderID, reason string) (*orderdomain.SubscriptionOrder, error) {
	return s.mutate(ctx, orderID, func(order *orderdomain.SubscriptionOrder, tx *gorm.DB, now time.Time) error {
		prev := order.Status
		if err := order.Cancel(reason, now); err != nil {
			return err
		}
		// a cancelled checkout releases the cart back to the customer
		if prev == orderdomain.OrderStatusPending || prev == orderdomain.OrderStatusPaymentProcessing {
			return s.settleCart(ctx, tx, order, now, false)
		}
		return nil
	})
}

func (s *Service) RequestRefund(ctx context.Context, orderID, reason string) (*orderdomain.SubscriptionOrder, error) {
	return s.mutate(ctx, orderID, func(order *orderdomain.SubscriptionOrder, _ *gorm.DB, now time.Time) error {
		return order.RequestRefund(reason, now)
	})
}

func (s *Service) CompleteRefund(ctx context.Context, orderID string) (*orderdomain.SubscriptionOrder, error) {
	return s.mutate(ctx, orderID, func(order *orderdomain.SubscriptionOrder, _ *gorm.DB, now time.Time) error {
		return order.CompleteRefund(now)
	})
}

// settleCart closes or releases the CheckoutPending cart behind an order.
// A cart already settled by an earlier outcome is left alone.
func (s *Service) settleCart(ctx context.Context, tx *gorm.DB, order *orderdomain.SubscriptionOrder, now time.Time, completed bool) error {
	cart, err := s.cartRepo.FindByIDForUpdate(ctx, tx, order.TenantID, order.CartID)
	if err != nil {
		return err
	}
	if cart == nil || cart.Status != cartdomain.CartStatusCheckoutPending {
		return nil
	}

	if completed {
		err = cart.Complete(now)
	} else {
		err = cart.FailCheckout(now)
	}
	if err != nil {
		return err
	}
	if err := s.cartRepo.Save(ctx, tx, cart); err != nil {
		return err
	}
	return s.outbox.Append(ctx, tx, cart.TenantID, cart.DrainEvents())
}

func (s *Service) mutate(ctx context.Context, orderID string, fn func(order *orderdomain.SubscriptionOrder, tx *gorm.DB, now time.Time) error) (*orderdomain.SubscriptionOrder, error) {
	tenantID, id, err := s.parseRef(ctx, orderID, orderdomain.ErrOrderNotFound)
	if err != nil {
		return nil, err
	}

	var order *orderdomain.SubscriptionOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err = s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}

		if err := fn(order, tx, s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, order); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, tenantID, order.DrainEvents())
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) parseRef(ctx context.Context, ref string, notFound error) (snowflake.ID, snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return 0, 0, notFound
	}

	id, err := snowflake.ParseString(strings.TrimSpace(ref))
	if err != nil {
		return 0, 0, notFound
	}
	return tenantID, id, nil
}

func newOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}
