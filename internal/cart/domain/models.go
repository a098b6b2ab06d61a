// Package domain contains the shopping cart aggregate for subscription
// purchases. The cart is the only mutable stage of the pipeline; checkout
// snapshots it into an order.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/internal/billingcycle"
	outboxdomain "github.com/stockerhq/stocker/internal/outbox/domain"
	"github.com/stockerhq/stocker/pkg/money"
	"gorm.io/datatypes"
)

// CartStatus represents cart lifecycle states.
type CartStatus string

const (
	CartStatusActive          CartStatus = "ACTIVE"
	CartStatusCheckoutPending CartStatus = "CHECKOUT_PENDING"
	CartStatusCompleted       CartStatus = "COMPLETED"
	CartStatusExpired         CartStatus = "EXPIRED"
	CartStatusAbandoned       CartStatus = "ABANDONED"
)

// CartItemType discriminates cart lines and controls uniqueness rules:
// module and bundle lines are unique per code, storage and user lines are
// single-slot.
type CartItemType string

const (
	CartItemTypeModule      CartItemType = "MODULE"
	CartItemTypeBundle      CartItemType = "BUNDLE"
	CartItemTypeAddOn       CartItemType = "ADD_ON"
	CartItemTypeStoragePlan CartItemType = "STORAGE_PLAN"
	CartItemTypeUsers       CartItemType = "USERS"
)

// SubscriptionCart is the pre-purchase aggregate root. Items are owned
// exclusively by the cart and mutated only through it.
type SubscriptionCart struct {
	ID              snowflake.ID       `gorm:"primaryKey"`
	TenantID        snowflake.ID       `gorm:"not null;index"`
	UserID          *snowflake.ID      `gorm:""`
	Status          CartStatus         `gorm:"type:text;not null;default:'ACTIVE'"`
	BillingCycle    billingcycle.Cycle `gorm:"type:text;not null"`
	Currency        string             `gorm:"type:text;not null"`
	CouponCode      *string            `gorm:"type:text"`
	DiscountPercent float64            `gorm:"not null;default:0"`
	DiscountAmount  int64              `gorm:"not null;default:0"`
	ExpiresAt       time.Time          `gorm:"not null"`
	CreatedAt       time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []SubscriptionCartItem `gorm:"foreignKey:CartID"`

	pendingEvents []outboxdomain.Event `gorm:"-"`
}

// TableName sets the database table name.
func (SubscriptionCart) TableName() string { return "subscription_carts" }

// SubscriptionCartItem is a priced, typed line owned by one cart.
// Type-specific metadata rides on the line so checkout can snapshot it
// without another catalog round trip.
type SubscriptionCartItem struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	CartID          snowflake.ID `gorm:"not null;index"`
	ItemType        CartItemType `gorm:"type:text;not null"`
	ItemID          snowflake.ID `gorm:"not null"`
	Code            string       `gorm:"type:text;not null"`
	Name            string       `gorm:"type:text;not null"`
	UnitPriceAmount int64        `gorm:"not null"`
	Currency        string       `gorm:"type:text;not null"`
	Quantity        int64        `gorm:"not null;default:1"`
	LineTotalAmount int64        `gorm:"not null"`

	TrialDays           int                         `gorm:"not null;default:0"`
	DiscountPercent     float64                     `gorm:"not null;default:0"`
	IncludedModuleCodes datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	RequiredModuleCode  string                      `gorm:"type:text"`
	StorageGB           int                         `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionCartItem) TableName() string { return "subscription_cart_items" }

// UnitPrice returns the line's unit price as a Money value.
func (i SubscriptionCartItem) UnitPrice() money.Money {
	return money.Money{Amount: i.UnitPriceAmount, Currency: i.Currency}
}

// LineTotal returns the line total as a Money value.
func (i SubscriptionCartItem) LineTotal() money.Money {
	return money.Money{Amount: i.LineTotalAmount, Currency: i.Currency}
}
