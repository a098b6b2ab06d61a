// Package domain contains the subscription aggregate: the entitlement a
// completed order grants a tenant, with its renewal date math, module
// grants, storage quota and usage records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/internal/billingcycle"
	outboxdomain "github.com/stockerhq/stocker/internal/outbox/domain"
	"github.com/stockerhq/stocker/pkg/money"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents subscription lifecycle states.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "PENDING"
	SubscriptionStatusTrial     SubscriptionStatus = "TRIAL"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
)

const bytesPerGB = int64(1) << 30

// Subscription is the aggregate root for a tenant's entitlements. A nil
// PackageID marks a custom package assembled from individual lines, in
// which case ModuleCodes carries the selection instead of a catalog ref.
type Subscription struct {
	ID                 snowflake.ID       `gorm:"primaryKey"`
	SubscriptionNumber string             `gorm:"type:text;not null;uniqueIndex"`
	TenantID           snowflake.ID       `gorm:"not null;index"`
	PackageID          *snowflake.ID      `gorm:""`
	Status             SubscriptionStatus `gorm:"type:text;not null;default:'PENDING'"`
	BillingCycle       billingcycle.Cycle `gorm:"type:text;not null"`
	PriceAmount        int64              `gorm:"not null"`
	Currency           string             `gorm:"type:text;not null"`

	StartDate          time.Time  `gorm:"not null"`
	CurrentPeriodStart time.Time  `gorm:"not null"`
	CurrentPeriodEnd   time.Time  `gorm:"not null;index"`
	TrialEndDate       *time.Time `gorm:"index"`
	CancelledAt        *time.Time `gorm:""`
	CancelReason       string     `gorm:"type:text"`
	SuspendReason      string     `gorm:"type:text"`
	AutoRenew          bool       `gorm:"not null;default:true"`
	UserCount          int64      `gorm:"not null;default:1"`

	ModuleCodes datatypes.JSONSlice[string] `gorm:"type:jsonb"`

	StorageBucketName    string     `gorm:"type:text"`
	StorageQuotaGB       int        `gorm:"not null;default:0"`
	StorageUsedBytes     int64      `gorm:"not null;default:0"`
	StorageLastCheckedAt *time.Time `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Modules []SubscriptionModule `gorm:"foreignKey:SubscriptionID"`
	Usages  []SubscriptionUsage  `gorm:"foreignKey:SubscriptionID"`

	pendingEvents []outboxdomain.Event `gorm:"-"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Price returns the recurring charge per billing period.
func (s *Subscription) Price() money.Money {
	return money.Money{Amount: s.PriceAmount, Currency: s.Currency}
}

// IsCustomPackage reports whether the selection was assembled line by line
// rather than taken from a catalog package.
func (s *Subscription) IsCustomPackage() bool { return s.PackageID == nil }

// SubscriptionModule is one module grant owned by a subscription.
type SubscriptionModule struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID `gorm:"not null;index"`
	ModuleCode     string       `gorm:"type:text;not null"`
	Name           string       `gorm:"type:text;not null"`
	PriceAmount    int64        `gorm:"not null;default:0"`
	Currency       string       `gorm:"type:text;not null"`
	TrialDays      int          `gorm:"not null;default:0"`
	AddedAt        time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (SubscriptionModule) TableName() string { return "subscription_modules" }

// SubscriptionUsage is an append-only metered usage record.
type SubscriptionUsage struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID `gorm:"not null;index"`
	MetricCode     string       `gorm:"type:text;not null;index"`
	Quantity       int64        `gorm:"not null"`
	PeriodStart    time.Time    `gorm:"not null"`
	PeriodEnd      time.Time    `gorm:"not null"`
	RecordedAt     time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (SubscriptionUsage) TableName() string { return "subscription_usages" }
