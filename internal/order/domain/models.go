// Package domain contains the subscription order aggregate. An order is an
// immutable snapshot of a checked-out cart moving through a linear payment
// and activation state machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/internal/billingcycle"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	outboxdomain "github.com/stockerhq/stocker/internal/outbox/domain"
	"github.com/stockerhq/stocker/pkg/money"
	"gorm.io/datatypes"
)

// OrderStatus represents order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "PENDING"
	OrderStatusPaymentProcessing OrderStatus = "PAYMENT_PROCESSING"
	OrderStatusPaymentCompleted  OrderStatus = "PAYMENT_COMPLETED"
	OrderStatusActivating        OrderStatus = "ACTIVATING"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
	OrderStatusPaymentFailed     OrderStatus = "PAYMENT_FAILED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
	OrderStatusRefundRequested   OrderStatus = "REFUND_REQUESTED"
	OrderStatusRefunded          OrderStatus = "REFUNDED"
)

// SubscriptionOrder is created once from a cart at checkout. Its item lines
// never change after creation; only its status and payment metadata do.
type SubscriptionOrder struct {
	ID             snowflake.ID       `gorm:"primaryKey"`
	OrderNumber    string             `gorm:"type:text;not null;uniqueIndex"`
	TenantID       snowflake.ID       `gorm:"not null;index"`
	UserID         *snowflake.ID      `gorm:""`
	CartID         snowflake.ID       `gorm:"not null;index"`
	SubscriptionID *snowflake.ID      `gorm:"index"`
	Status         OrderStatus        `gorm:"type:text;not null;default:'PENDING'"`
	BillingCycle   billingcycle.Cycle `gorm:"type:text;not null"`
	Currency       string             `gorm:"type:text;not null"`

	SubTotalAmount      int64   `gorm:"not null"`
	DiscountTotalAmount int64   `gorm:"not null;default:0"`
	TaxRate             float64 `gorm:"not null;default:0"`
	TaxAmount           int64   `gorm:"not null;default:0"`
	TotalAmount         int64   `gorm:"not null"`
	CouponCode          *string `gorm:"type:text"`

	PaymentMethod   string     `gorm:"type:text"`
	ProviderOrderID string     `gorm:"type:text;index"`
	ProviderToken   string     `gorm:"type:text"`
	TransactionID   string     `gorm:"type:text"`
	FailureReason   string     `gorm:"type:text"`
	CancelReason    string     `gorm:"type:text"`
	RefundReason    string     `gorm:"type:text"`
	PaidAt          *time.Time `gorm:""`
	CompletedAt     *time.Time `gorm:""`

	BillingName    string `gorm:"type:text"`
	BillingEmail   string `gorm:"type:text"`
	BillingAddress string `gorm:"type:text"`
	BillingCity    string `gorm:"type:text"`
	BillingCountry string `gorm:"type:text"`
	BillingTaxID   string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []SubscriptionOrderItem `gorm:"foreignKey:OrderID"`

	pendingEvents []outboxdomain.Event `gorm:"-"`
}

// TableName sets the database table name.
func (SubscriptionOrder) TableName() string { return "subscription_orders" }

// SubTotal returns the pre-discount item total.
func (o *SubscriptionOrder) SubTotal() money.Money {
	return money.Money{Amount: o.SubTotalAmount, Currency: o.Currency}
}

// Total returns the amount the customer is charged.
func (o *SubscriptionOrder) Total() money.Money {
	return money.Money{Amount: o.TotalAmount, Currency: o.Currency}
}

// SubscriptionOrderItem is an immutable copy of a cart line plus per-line
// activation bookkeeping. Activation state is the only mutable part.
type SubscriptionOrderItem struct {
	ID              snowflake.ID              `gorm:"primaryKey"`
	OrderID         snowflake.ID              `gorm:"not null;index"`
	ItemType        cartdomain.CartItemType   `gorm:"type:text;not null"`
	ItemID          snowflake.ID              `gorm:"not null"`
	Code            string                    `gorm:"type:text;not null"`
	Name            string                    `gorm:"type:text;not null"`
	UnitPriceAmount int64                     `gorm:"not null"`
	Currency        string                    `gorm:"type:text;not null"`
	Quantity        int64                     `gorm:"not null;default:1"`
	LineTotalAmount int64                     `gorm:"not null"`

	TrialDays           int                         `gorm:"not null;default:0"`
	IncludedModuleCodes datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	StorageGB           int                         `gorm:"not null;default:0"`

	IsActivated     bool       `gorm:"not null;default:false"`
	ActivatedAt     *time.Time `gorm:""`
	ActivationError string     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionOrderItem) TableName() string { return "subscription_order_items" }

// LineTotal returns the line total as a Money value.
func (i SubscriptionOrderItem) LineTotal() money.Money {
	return money.Money{Amount: i.LineTotalAmount, Currency: i.Currency}
}
