package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderEmpty           = errors.New("order_empty")
	ErrItemNotFound         = errors.New("order_item_not_found")
	ErrItemsNotActivated    = errors.New("order_items_not_activated")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrRefundReasonRequired = errors.New("refund_reason_required")
)

// BillingAddress carries the customer billing fields captured at checkout.
type BillingAddress struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	TaxID   string `json:"tax_id,omitempty"`
}

type CheckoutRequest struct {
	CartID         string          `json:"-"`
	BillingAddress *BillingAddress `json:"billing_address,omitempty"`
}

type InitiatePaymentRequest struct {
	OrderID         string `json:"-"`
	Method          string `json:"method"`
	ProviderOrderID string `json:"provider_order_id,omitempty"`
	ProviderToken   string `json:"provider_token,omitempty"`
}

type PaymentResultRequest struct {
	OrderID       string `json:"-"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

//go:generate mockgen -source=service.go -destination=../mocks/service_mock.go -package=mocks

// Activator provisions entitlements for a paid order. Implemented by the
// subscription layer; split per item so one failed line does not block the
// rest and can be retried on its own.
type Activator interface {
	EnsureSubscription(ctx context.Context, tx *gorm.DB, order *SubscriptionOrder) (snowflake.ID, error)
	ActivateItem(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, order *SubscriptionOrder, item *SubscriptionOrderItem) error
}

// Service drives orders through checkout, payment and activation.
type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*SubscriptionOrder, error)
	GetByID(ctx context.Context, orderID string) (*SubscriptionOrder, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*SubscriptionOrder, error)
	SetBillingAddress(ctx context.Context, orderID string, addr BillingAddress) (*SubscriptionOrder, error)
	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*SubscriptionOrder, error)
	CompletePayment(ctx context.Context, req PaymentResultRequest) (*SubscriptionOrder, error)
	FailPayment(ctx context.Context, req PaymentResultRequest) (*SubscriptionOrder, error)
	Activate(ctx context.Context, orderID string) (*SubscriptionOrder, error)
	Cancel(ctx context.Context, orderID, reason string) (*SubscriptionOrder, error)
	RequestRefund(ctx context.Context, orderID, reason string) (*SubscriptionOrder, error)
	CompleteRefund(ctx context.Context, orderID string) (*SubscriptionOrder, error)
}
