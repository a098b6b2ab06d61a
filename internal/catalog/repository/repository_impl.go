package repository

import (
	"context"
	"errors"

	catalogdomain "github.com/stockerhq/stocker/internal/catalog/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() catalogdomain.Repository {
	return &repository{}
}

func findByCode[T any](ctx context.Context, db *gorm.DB, code string) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindPackageByCode(ctx context.Context, db *gorm.DB, code string) (*catalogdomain.Package, error) {
	return findByCode[catalogdomain.Package](ctx, db, code)
}

func (r *repository) FindModuleByCode(ctx context.Context, db *gorm.DB, code string) (*catalogdomain.ModuleDefinition, error) {
	return findByCode[catalogdomain.ModuleDefinition](ctx, db, code)
}

func (r *repository) FindBundleByCode(ctx context.Context, db *gorm.DB, code string) (*catalogdomain.Bundle, error) {
	return findByCode[catalogdomain.Bundle](ctx, db, code)
}

func (r *repository) FindAddOnByCode(ctx context.Context, db *gorm.DB, code string) (*catalogdomain.AddOn, error) {
	return findByCode[catalogdomain.AddOn](ctx, db, code)
}

func (r *repository) FindStoragePlanByCode(ctx context.Context, db *gorm.DB, code string) (*catalogdomain.StoragePlan, error) {
	return findByCode[catalogdomain.StoragePlan](ctx, db, code)
}

func (r *repository) FindUserTierByCode(ctx context.Context, db *gorm.DB, code string) (*catalogdomain.UserTier, error) {
	return findByCode[catalogdomain.UserTier](ctx, db, code)
}

func (r *repository) ListPackages(ctx context.Context, db *gorm.DB) ([]catalogdomain.Package, error) {
	var rows []catalogdomain.Package
	err := db.WithContext(ctx).Where("is_active = ?", true).Order("code").Find(&rows).Error
	return rows, err
}

func (r *repository) ListModules(ctx context.Context, db *gorm.DB) ([]catalogdomain.ModuleDefinition, error) {
	var rows []catalogdomain.ModuleDefinition
	err := db.WithContext(ctx).Where("is_active = ?", true).Order("code").Find(&rows).Error
	return rows, err
}

func (r *repository) ListBundles(ctx context.Context, db *gorm.DB) ([]catalogdomain.Bundle, error) {
	var rows []catalogdomain.Bundle
	err := db.WithContext(ctx).Where("is_active = ?", true).Order("code").Find(&rows).Error
	return rows, err
}
