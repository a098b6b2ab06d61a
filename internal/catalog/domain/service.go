package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidCode         = errors.New("invalid_code")
	ErrPackageNotFound     = errors.New("package_not_found")
	ErrModuleNotFound      = errors.New("module_not_found")
	ErrBundleNotFound      = errors.New("bundle_not_found")
	ErrAddOnNotFound       = errors.New("add_on_not_found")
	ErrStoragePlanNotFound = errors.New("storage_plan_not_found")
	ErrUserTierNotFound    = errors.New("user_tier_not_found")
	ErrCatalogItemInactive = errors.New("catalog_item_inactive")
)

// Service resolves catalog entries by code for cart construction.
// Lookups only return active entries.
type Service interface {
	GetPackage(ctx context.Context, code string) (Package, error)
	GetModule(ctx context.Context, code string) (ModuleDefinition, error)
	GetBundle(ctx context.Context, code string) (Bundle, error)
	GetAddOn(ctx context.Context, code string) (AddOn, error)
	GetStoragePlan(ctx context.Context, code string) (StoragePlan, error)
	GetUserTier(ctx context.Context, code string) (UserTier, error)
	ListPackages(ctx context.Context) ([]Package, error)
	ListModules(ctx context.Context) ([]ModuleDefinition, error)
	ListBundles(ctx context.Context) ([]Bundle, error)
}
