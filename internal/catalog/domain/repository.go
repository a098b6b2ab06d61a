package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindPackageByCode(ctx context.Context, db *gorm.DB, code string) (*Package, error)
	FindModuleByCode(ctx context.Context, db *gorm.DB, code string) (*ModuleDefinition, error)
	FindBundleByCode(ctx context.Context, db *gorm.DB, code string) (*Bundle, error)
	FindAddOnByCode(ctx context.Context, db *gorm.DB, code string) (*AddOn, error)
	FindStoragePlanByCode(ctx context.Context, db *gorm.DB, code string) (*StoragePlan, error)
	FindUserTierByCode(ctx context.Context, db *gorm.DB, code string) (*UserTier, error)
	ListPackages(ctx context.Context, db *gorm.DB) ([]Package, error)
	ListModules(ctx context.Context, db *gorm.DB) ([]ModuleDefinition, error)
	ListBundles(ctx context.Context, db *gorm.DB) ([]Bundle, error)
}
