// Package seed loads the reference catalog so a fresh install can sell
// something out of the box. Rows are keyed by code and never overwritten,
// so operators can reprice without fighting the seeder.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/stockerhq/stocker/internal/catalog/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const seedCurrency = "TRY"

// EnsureCatalog inserts the default catalog rows if they are missing.
func EnsureCatalog(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureModules(tx, node); err != nil {
			return err
		}
		if err := ensureBundles(tx, node); err != nil {
			return err
		}
		if err := ensurePackages(tx, node); err != nil {
			return err
		}
		if err := ensureAddOns(tx, node); err != nil {
			return err
		}
		if err := ensureStoragePlans(tx, node); err != nil {
			return err
		}
		return ensureUserTiers(tx, node)
	})
}

func insertIgnoringCode(tx *gorm.DB, rows any) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(rows).Error
}

func ensureModules(tx *gorm.DB, node *snowflake.Node) error {
	modules := []catalogdomain.ModuleDefinition{
		{ID: node.Generate(), Code: "CRM", Name: "Customer Management", Description: "Customers, contacts and deal tracking", PriceAmount: 29900, Currency: seedCurrency, TrialDays: 14, IsActive: true},
		{ID: node.Generate(), Code: "INVENTORY", Name: "Inventory", Description: "Stock levels, warehouses and transfers", PriceAmount: 39900, Currency: seedCurrency, TrialDays: 14, IsActive: true},
		{ID: node.Generate(), Code: "ACCOUNTING", Name: "Accounting", Description: "Invoicing, expenses and ledgers", PriceAmount: 49900, Currency: seedCurrency, TrialDays: 7, IsActive: true},
		{ID: node.Generate(), Code: "HR", Name: "Human Resources", Description: "Employees, leave and payroll exports", PriceAmount: 34900, Currency: seedCurrency, IsActive: true},
		{ID: node.Generate(), Code: "ECOMMERCE", Name: "E-Commerce", Description: "Online storefront and order sync", PriceAmount: 59900, Currency: seedCurrency, TrialDays: 14, IsActive: true},
	}
	return insertIgnoringCode(tx, &modules)
}

func ensureBundles(tx *gorm.DB, node *snowflake.Node) error {
	bundles := []catalogdomain.Bundle{
		{
			ID: node.Generate(), Code: "COMMERCE_SUITE", Name: "Commerce Suite",
			PriceAmount: 84900, Currency: seedCurrency, DiscountPercent: 15,
			IncludedModuleCodes: datatypes.NewJSONSlice([]string{"CRM", "INVENTORY", "ECOMMERCE"}),
			IsActive:            true,
		},
		{
			ID: node.Generate(), Code: "BACK_OFFICE", Name: "Back Office",
			PriceAmount: 71900, Currency: seedCurrency, DiscountPercent: 15,
			IncludedModuleCodes: datatypes.NewJSONSlice([]string{"ACCOUNTING", "HR"}),
			IsActive:            true,
		},
	}
	return insertIgnoringCode(tx, &bundles)
}

func ensurePackages(tx *gorm.DB, node *snowflake.Node) error {
	packages := []catalogdomain.Package{
		{
			ID: node.Generate(), Code: "STARTER", Name: "Starter",
			Description:     "CRM and inventory for small teams",
			BasePriceAmount: 59900, Currency: seedCurrency, TrialDays: 14,
			ModuleCodes: datatypes.NewJSONSlice([]string{"CRM", "INVENTORY"}),
			StorageGB:   10, MaxUsers: 5, IsActive: true,
		},
		{
			ID: node.Generate(), Code: "PROFESSIONAL", Name: "Professional",
			Description:     "Full commerce stack with accounting",
			BasePriceAmount: 129900, Currency: seedCurrency, TrialDays: 14,
			ModuleCodes: datatypes.NewJSONSlice([]string{"CRM", "INVENTORY", "ACCOUNTING", "ECOMMERCE"}),
			StorageGB:   50, MaxUsers: 20, IsActive: true,
		},
		{
			ID: node.Generate(), Code: "ENTERPRISE", Name: "Enterprise",
			Description:     "Every module, priority support",
			BasePriceAmount: 199900, Currency: seedCurrency, TrialDays: 30,
			ModuleCodes: datatypes.NewJSONSlice([]string{"CRM", "INVENTORY", "ACCOUNTING", "HR", "ECOMMERCE"}),
			StorageGB:   200, MaxUsers: 100, IsActive: true,
		},
	}
	return insertIgnoringCode(tx, &packages)
}

func ensureAddOns(tx *gorm.DB, node *snowflake.Node) error {
	addOns := []catalogdomain.AddOn{
		{ID: node.Generate(), Code: "CRM_AUTOMATION", Name: "CRM Automation", PriceAmount: 14900, Currency: seedCurrency, RequiredModuleCode: "CRM", IsActive: true},
		{ID: node.Generate(), Code: "BARCODE_SCANNING", Name: "Barcode Scanning", PriceAmount: 9900, Currency: seedCurrency, RequiredModuleCode: "INVENTORY", IsActive: true},
		{ID: node.Generate(), Code: "E_INVOICE", Name: "E-Invoice Integration", PriceAmount: 19900, Currency: seedCurrency, RequiredModuleCode: "ACCOUNTING", IsActive: true},
	}
	return insertIgnoringCode(tx, &addOns)
}

func ensureStoragePlans(tx *gorm.DB, node *snowflake.Node) error {
	plans := []catalogdomain.StoragePlan{
		{ID: node.Generate(), Code: "STORAGE_50", Name: "50 GB Storage", PriceAmount: 9900, Currency: seedCurrency, StorageGB: 50, IsActive: true},
		{ID: node.Generate(), Code: "STORAGE_200", Name: "200 GB Storage", PriceAmount: 29900, Currency: seedCurrency, StorageGB: 200, IsActive: true},
		{ID: node.Generate(), Code: "STORAGE_1000", Name: "1 TB Storage", PriceAmount: 99900, Currency: seedCurrency, StorageGB: 1000, IsActive: true},
	}
	return insertIgnoringCode(tx, &plans)
}

func ensureUserTiers(tx *gorm.DB, node *snowflake.Node) error {
	tiers := []catalogdomain.UserTier{
		{ID: node.Generate(), Code: "TEAM", Name: "Team Seats", PricePerUserAmount: 4900, Currency: seedCurrency, MinUsers: 1, MaxUsers: 25, IsActive: true},
		{ID: node.Generate(), Code: "BUSINESS", Name: "Business Seats", PricePerUserAmount: 3900, Currency: seedCurrency, MinUsers: 26, MaxUsers: 100, IsActive: true},
		{ID: node.Generate(), Code: "ENTERPRISE_SEATS", Name: "Enterprise Seats", PricePerUserAmount: 2900, Currency: seedCurrency, MinUsers: 101, MaxUsers: 0, IsActive: true},
	}
	return insertIgnoringCode(tx, &tiers)
}
