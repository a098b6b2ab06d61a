// Package domain contains the read-mostly pricing catalog models. The
// commerce pipeline consumes prices and entitlement metadata from here and
// never mutates catalog rows.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/pkg/money"
	"gorm.io/datatypes"
)

// Package is a curated set of modules, storage and seats sold as one plan.
type Package struct {
	ID              snowflake.ID                 `gorm:"primaryKey"`
	Code            string                       `gorm:"type:text;not null;uniqueIndex"`
	Name            string                       `gorm:"type:text;not null"`
	Description     string                       `gorm:"type:text"`
	BasePriceAmount int64                        `gorm:"not null;default:0"`
	Currency        string                       `gorm:"type:text;not null"`
	TrialDays       int                          `gorm:"not null;default:0"`
	ModuleCodes     datatypes.JSONSlice[string]  `gorm:"type:jsonb"`
	StorageGB       int                          `gorm:"not null;default:0"`
	MaxUsers        int                          `gorm:"not null;default:0"`
	IsActive        bool                         `gorm:"not null;default:true"`
	CreatedAt       time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Package) TableName() string { return "packages" }

// BasePrice returns the package price as a Money value.
func (p Package) BasePrice() money.Money {
	return money.Money{Amount: p.BasePriceAmount, Currency: p.Currency}
}

// ModuleDefinition is a single sellable feature module.
type ModuleDefinition struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Code        string       `gorm:"type:text;not null;uniqueIndex"`
	Name        string       `gorm:"type:text;not null"`
	Description string       `gorm:"type:text"`
	PriceAmount int64        `gorm:"not null;default:0"`
	Currency    string       `gorm:"type:text;not null"`
	TrialDays   int          `gorm:"not null;default:0"`
	IsActive    bool         `gorm:"not null;default:true"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ModuleDefinition) TableName() string { return "module_definitions" }

func (m ModuleDefinition) Price() money.Money {
	return money.Money{Amount: m.PriceAmount, Currency: m.Currency}
}

// Bundle prices a group of modules below their individual sum.
type Bundle struct {
	ID                  snowflake.ID                `gorm:"primaryKey"`
	Code                string                      `gorm:"type:text;not null;uniqueIndex"`
	Name                string                      `gorm:"type:text;not null"`
	PriceAmount         int64                       `gorm:"not null;default:0"`
	Currency            string                      `gorm:"type:text;not null"`
	DiscountPercent     float64                     `gorm:"not null;default:0"`
	IncludedModuleCodes datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	IsActive            bool                        `gorm:"not null;default:true"`
	CreatedAt           time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Bundle) TableName() string { return "bundles" }

func (b Bundle) Price() money.Money {
	return money.Money{Amount: b.PriceAmount, Currency: b.Currency}
}

// AddOn extends a module with extra capability; it requires the module to
// be part of the same purchase.
type AddOn struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	Code               string       `gorm:"type:text;not null;uniqueIndex"`
	Name               string       `gorm:"type:text;not null"`
	PriceAmount        int64        `gorm:"not null;default:0"`
	Currency           string       `gorm:"type:text;not null"`
	RequiredModuleCode string       `gorm:"type:text;not null"`
	IsActive           bool         `gorm:"not null;default:true"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AddOn) TableName() string { return "add_ons" }

func (a AddOn) Price() money.Money {
	return money.Money{Amount: a.PriceAmount, Currency: a.Currency}
}

// StoragePlan sells a storage quota in whole gigabytes.
type StoragePlan struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Code        string       `gorm:"type:text;not null;uniqueIndex"`
	Name        string       `gorm:"type:text;not null"`
	PriceAmount int64        `gorm:"not null;default:0"`
	Currency    string       `gorm:"type:text;not null"`
	StorageGB   int          `gorm:"not null"`
	IsActive    bool         `gorm:"not null;default:true"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (StoragePlan) TableName() string { return "storage_plans" }

func (s StoragePlan) Price() money.Money {
	return money.Money{Amount: s.PriceAmount, Currency: s.Currency}
}

// UserTier prices user seats; the unit price applies per seat.
type UserTier struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	Code               string       `gorm:"type:text;not null;uniqueIndex"`
	Name               string       `gorm:"type:text;not null"`
	PricePerUserAmount int64        `gorm:"not null;default:0"`
	Currency           string       `gorm:"type:text;not null"`
	MinUsers           int          `gorm:"not null;default:1"`
	MaxUsers           int          `gorm:"not null;default:0"`
	IsActive           bool         `gorm:"not null;default:true"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UserTier) TableName() string { return "user_tiers" }

func (u UserTier) PricePerUser() money.Money {
	return money.Money{Amount: u.PricePerUserAmount, Currency: u.Currency}
}
