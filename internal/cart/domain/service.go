package domain

import (
	"context"
	"errors"
)

var (
	ErrCartNotFound           = errors.New("cart_not_found")
	ErrCartNotActive          = errors.New("cart_not_active")
	ErrCartExpired            = errors.New("cart_expired")
	ErrCartEmpty              = errors.New("cart_empty")
	ErrItemNotFound           = errors.New("cart_item_not_found")
	ErrInvalidQuantity        = errors.New("invalid_quantity")
	ErrInvalidCoupon          = errors.New("invalid_coupon")
	ErrInvalidExpiration      = errors.New("invalid_expiration")
	ErrDuplicateItem          = errors.New("duplicate_cart_item")
	ErrModuleIncludedInBundle = errors.New("module_included_in_bundle")
	ErrRequiredModuleMissing  = errors.New("required_module_missing")
	ErrUserCountOutOfRange    = errors.New("user_count_out_of_range")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrActiveCartExists       = errors.New("active_cart_exists")
)

type CreateCartRequest struct {
	UserID       string `json:"user_id,omitempty"`
	BillingCycle string `json:"billing_cycle"`
	Currency     string `json:"currency,omitempty"`
}

type AddItemRequest struct {
	CartID   string `json:"-"`
	ItemType string `json:"item_type"`
	Code     string `json:"code"`
	Quantity int64  `json:"quantity,omitempty"`
}

type UpdateQuantityRequest struct {
	CartID   string `json:"-"`
	ItemID   string `json:"-"`
	Quantity int64  `json:"quantity"`
}

type ApplyCouponRequest struct {
	CartID            string  `json:"-"`
	Code              string  `json:"code"`
	Percent           float64 `json:"percent"`
	MaxDiscountAmount int64   `json:"max_discount_amount"`
}

type ChangeBillingCycleRequest struct {
	CartID       string `json:"-"`
	BillingCycle string `json:"billing_cycle"`
}

type ExtendExpirationRequest struct {
	CartID string `json:"-"`
	Hours  int    `json:"hours"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Create(ctx context.Context, req CreateCartRequest) (*SubscriptionCart, error)
	GetByID(ctx context.Context, cartID string) (*SubscriptionCart, error)
	GetActive(ctx context.Context) (*SubscriptionCart, error)
	AddItem(ctx context.Context, req AddItemRequest) (*SubscriptionCart, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (*SubscriptionCart, error)
	UpdateItemQuantity(ctx context.Context, req UpdateQuantityRequest) (*SubscriptionCart, error)
	ApplyCoupon(ctx context.Context, req ApplyCouponRequest) (*SubscriptionCart, error)
	RemoveCoupon(ctx context.Context, cartID string) (*SubscriptionCart, error)
	ChangeBillingCycle(ctx context.Context, req ChangeBillingCycleRequest) (*SubscriptionCart, error)
	Clear(ctx context.Context, cartID string) (*SubscriptionCart, error)
	ExtendExpiration(ctx context.Context, req ExtendExpirationRequest) (*SubscriptionCart, error)
	Abandon(ctx context.Context, cartID string) error
	ExpireStale(ctx context.Context, limit int) (int, error)
}
