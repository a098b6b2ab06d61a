package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/internal/billingcycle"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	catalogdomain "github.com/stockerhq/stocker/internal/catalog/domain"
	"github.com/stockerhq/stocker/internal/clock"
	"github.com/stockerhq/stocker/internal/config"
	"github.com/stockerhq/stocker/internal/outbox"
	"github.com/stockerhq/stocker/internal/tenantctx"
	"github.com/stockerhq/stocker/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       cartdomain.Repository
	catalogsvc catalogdomain.Service
	billing    *config.BillingConfigHolder
	outbox     *outbox.Writer
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       cartdomain.Repository
	CatalogSvc catalogdomain.Service
	Billing    *config.BillingConfigHolder
	Outbox     *outbox.Writer
}

func NewService(p ServiceParam) cartdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("cart.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		catalogsvc: p.CatalogSvc,
		billing:    p.Billing,
		outbox:     p.Outbox,
	}
}

// Create opens a new active cart for the tenant. Exactly one active cart
// may exist per tenant; the lookup-before-create check plus the partial
// unique index in the schema enforce it.
func (s *Service) Create(ctx context.Context, req cartdomain.CreateCartRequest) (*cartdomain.SubscriptionCart, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, cartdomain.ErrCartNotFound
	}

	existing, err := s.repo.FindActiveByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, cartdomain.ErrActiveCartExists
	}

	cycle, err := billingcycle.Parse(req.BillingCycle)
	if err != nil {
		return nil, err
	}

	policy := s.billing.Get()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = policy.DefaultCurrency
	}

	var userID *snowflake.ID
	if trimmed := strings.TrimSpace(req.UserID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			return nil, cartdomain.ErrCartNotFound
		}
		userID = &parsed
	}

	now := s.clock.Now()
	cart, err := cartdomain.NewSubscriptionCart(
		s.genID.Generate(),
		tenantID,
		userID,
		cycle,
		currency,
		now,
		time.Duration(policy.CartExpiryHours)*time.Hour,
	)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, cart); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, tenantID, cart.DrainEvents())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cart created",
		zap.String("cart_id", cart.ID.String()),
		zap.String("tenant_id", tenantID.String()),
	)
	return cart, nil
}

func (s *Service) GetByID(ctx context.Context, cartID string) (*cartdomain.SubscriptionCart, error) {
	tenantID, id, err := s.parseCartRef(ctx, cartID)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, cartdomain.ErrCartNotFound
	}
	return cart, nil
}

func (s *Service) GetActive(ctx context.Context) (*cartdomain.SubscriptionCart, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, cartdomain.ErrCartNotFound
	}

	cart, err := s.repo.FindActiveByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, cartdomain.ErrCartNotFound
	}
	return cart, nil
}

func (s *Service) AddItem(ctx context.Context, req cartdomain.AddItemRequest) (*cartdomain.SubscriptionCart, error) {
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	return s.mutate(ctx, req.CartID, func(cart *cartdomain.SubscriptionCart, now time.Time) error {
		itemID := s.genID.Generate()
		switch cartdomain.CartItemType(strings.ToUpper(strings.TrimSpace(req.ItemType))) {
		case cartdomain.CartItemTypeModule:
			module, err := s.catalogsvc.GetModule(ctx, req.Code)
			if err != nil {
				return err
			}
			return cart.AddModule(itemID, module, quantity, now)
		case cartdomain.CartItemTypeBundle:
			bundle, err := s.catalogsvc.GetBundle(ctx, req.Code)
			if err != nil {
				return err
			}
			return cart.AddBundle(itemID, bundle, now)
		case cartdomain.CartItemTypeAddOn:
			addOn, err := s.catalogsvc.GetAddOn(ctx, req.Code)
			if err != nil {
				return err
			}
			return cart.AddAddOn(itemID, addOn, quantity, now)
		case cartdomain.CartItemTypeStoragePlan:
			plan, err := s.catalogsvc.GetStoragePlan(ctx, req.Code)
			if err != nil {
				return err
			}
			return cart.AddStoragePlan(itemID, plan, now)
		case cartdomain.CartItemTypeUsers:
			tier, err := s.catalogsvc.GetUserTier(ctx, req.Code)
			if err != nil {
				return err
			}
			return cart.AddUsers(itemID, tier, quantity, now)
		default:
			return catalogdomain.ErrInvalidCode
		}
	})
}

func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (*cartdomain.SubscriptionCart, error) {
	parsedItemID, err := snowflake.ParseString(strings.TrimSpace(itemID))
	if err != nil {
		return nil, cartdomain.ErrItemNotFound
	}

	return s.mutate(ctx, cartID, func(cart *cartdomain.SubscriptionCart, now time.Time) error {
		return cart.RemoveItem(parsedItemID, now)
	})
}

func (s *Service) UpdateItemQuantity(ctx context.Context, req cartdomain.UpdateQuantityRequest) (*cartdomain.SubscriptionCart, error) {
	itemID, err := snowflake.ParseString(strings.TrimSpace(req.ItemID))
	if err != nil {
		return nil, cartdomain.ErrItemNotFound
	}

	return s.mutate(ctx, req.CartID, func(cart *cartdomain.SubscriptionCart, now time.Time) error {
		return cart.UpdateItemQuantity(itemID, req.Quantity, now)
	})
}

func (s *Service) ApplyCoupon(ctx context.Context, req cartdomain.ApplyCouponRequest) (*cartdomain.SubscriptionCart, error) {
	policy := s.billing.Get()
	if req.Percent > policy.MaxCouponPercent {
		return nil, cartdomain.ErrInvalidCoupon
	}

	return s.mutate(ctx, req.CartID, func(cart *cartdomain.SubscriptionCart, now time.Time) error {
		maxDiscount, err := money.New(req.MaxDiscountAmount, cart.Currency)
		if err != nil {
			return err
		}
		return cart.ApplyCoupon(strings.TrimSpace(req.Code), req.Percent, maxDiscount, now)
	})
}

func (s *Service) RemoveCoupon(ctx context.Context, cartID string) (*cartdomain.SubscriptionCart, error) {
	return s.mutate(ctx, cartID, func(cart *cartdomain.SubscriptionCart, now time.Time) error {
		return cart.RemoveCoupon(now)
	})
}

func (s *Service) ChangeBillingCycle(ctx context.Context, req cartdomain.ChangeBillingCycleRequest) (*cartdomain.SubscriptionCart, error) {
	cycle, err := billingcycle.Parse(req.BillingCycle)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, req.CartID, func(cart *cartdomain.SubscriptionCart, now time.Time) error {
		return cart.ChangeBillingCycle(cycle, now)
	})
}

func (s *Service) Clear(ctx context.Context, cartID string) (*cartdomain.SubscriptionCart, error) {
	return s.mutate(ctx, cartID, func(cart *cartdomain.SubscriptionCart, now time.Time) error {
		return cart.Clear(now)
	})
}

func (s *Service) ExtendExpiration(ctx context.Context, req cartdomain.ExtendExpirationRequest) (*cartdomain.SubscriptionCart, error) {
	if req.Hours <= 0 {
		return nil, cartdomain.ErrInvalidExpiration
	}

	return s.mutate(ctx, req.CartID, func(cart *cartdomain.SubscriptionCart, now time.Time) error {
		return cart.ExtendExpiration(now.Add(time.Duration(req.Hours)*time.Hour), now)
	})
}

func (s *Service) Abandon(ctx context.Context, cartID string) error {
	_, err := s.mutate(ctx, cartID, func(cart *cartdomain.SubscriptionCart, now time.Time) error {
		return cart.Abandon(now)
	})
	return err
}

// ExpireStale terminates carts whose expiry window has passed. The
// scheduler calls this periodically; carts never self-transition.
func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	stale, err := s.repo.ListExpired(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		cart := &stale[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := s.repo.FindByIDForUpdate(ctx, tx, cart.TenantID, cart.ID)
			if err != nil {
				return err
			}
			if locked == nil || !locked.HasExpired(now) {
				return nil
			}
			if err := locked.Expire(now); err != nil {
				return nil // already terminal, raced with another transition
			}
			if err := s.repo.Save(ctx, tx, locked); err != nil {
				return err
			}
			expired++
			return s.outbox.Append(ctx, tx, locked.TenantID, locked.DrainEvents())
		})
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// mutate loads the aggregate under a row lock, applies fn, and saves the
// cart plus its drained events in one transaction.
func (s *Service) mutate(ctx context.Context, cartID string, fn func(cart *cartdomain.SubscriptionCart, now time.Time) error) (*cartdomain.SubscriptionCart, error) {
	tenantID, id, err := s.parseCartRef(ctx, cartID)
	if err != nil {
		return nil, err
	}

	var cart *cartdomain.SubscriptionCart
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err = s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if cart == nil {
			return cartdomain.ErrCartNotFound
		}

		if err := fn(cart, s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, cart); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, tenantID, cart.DrainEvents())
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Service) parseCartRef(ctx context.Context, cartID string) (snowflake.ID, snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return 0, 0, cartdomain.ErrCartNotFound
	}

	id, err := snowflake.ParseString(strings.TrimSpace(cartID))
	if err != nil {
		return 0, 0, cartdomain.ErrCartNotFound
	}
	return tenantID, id, nil
}
