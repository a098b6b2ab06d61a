package service

import (
	"context"
	"strings"
	"time"

	"github.com/stockerhq/stocker/internal/cache"
	catalogdomain "github.com/stockerhq/stocker/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lookupTTL = 10 * time.Minute

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	repo catalogdomain.Repository

	modules  cache.Cache[string, catalogdomain.ModuleDefinition]
	bundles  cache.Cache[string, catalogdomain.Bundle]
	addOns   cache.Cache[string, catalogdomain.AddOn]
	storage  cache.Cache[string, catalogdomain.StoragePlan]
	tiers    cache.Cache[string, catalogdomain.UserTier]
	packages cache.Cache[string, catalogdomain.Package]
}

type ServiceParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo catalogdomain.Repository
}

func NewService(p ServiceParam) catalogdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("catalog.service"),

		repo: p.Repo,

		modules:  cache.NewTTLCache[string, catalogdomain.ModuleDefinition](),
		bundles:  cache.NewTTLCache[string, catalogdomain.Bundle](),
		addOns:   cache.NewTTLCache[string, catalogdomain.AddOn](),
		storage:  cache.NewTTLCache[string, catalogdomain.StoragePlan](),
		tiers:    cache.NewTTLCache[string, catalogdomain.UserTier](),
		packages: cache.NewTTLCache[string, catalogdomain.Package](),
	}
}

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", catalogdomain.ErrInvalidCode
	}
	return code, nil
}

func (s *Service) GetPackage(ctx context.Context, code string) (catalogdomain.Package, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return catalogdomain.Package{}, err
	}
	if cached, ok := s.packages.Get(code); ok {
		return cached, nil
	}

	row, err := s.repo.FindPackageByCode(ctx, s.db, code)
	if err != nil {
		return catalogdomain.Package{}, err
	}
	if row == nil {
		return catalogdomain.Package{}, catalogdomain.ErrPackageNotFound
	}
	if !row.IsActive {
		return catalogdomain.Package{}, catalogdomain.ErrCatalogItemInactive
	}

	s.packages.Set(code, *row, lookupTTL)
	return *row, nil
}

func (s *Service) GetModule(ctx context.Context, code string) (catalogdomain.ModuleDefinition, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return catalogdomain.ModuleDefinition{}, err
	}
	if cached, ok := s.modules.Get(code); ok {
		return cached, nil
	}

	row, err := s.repo.FindModuleByCode(ctx, s.db, code)
	if err != nil {
		return catalogdomain.ModuleDefinition{}, err
	}
	if row == nil {
		return catalogdomain.ModuleDefinition{}, catalogdomain.ErrModuleNotFound
	}
	if !row.IsActive {
		return catalogdomain.ModuleDefinition{}, catalogdomain.ErrCatalogItemInactive
	}

	s.modules.Set(code, *row, lookupTTL)
	return *row, nil
}

func (s *Service) GetBundle(ctx context.Context, code string) (catalogdomain.Bundle, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return catalogdomain.Bundle{}, err
	}
	if cached, ok := s.bundles.Get(code); ok {
		return cached, nil
	}

	row, err := s.repo.FindBundleByCode(ctx, s.db, code)
	if err != nil {
		return catalogdomain.Bundle{}, err
	}
	if row == nil {
		return catalogdomain.Bundle{}, catalogdomain.ErrBundleNotFound
	}
	if !row.IsActive {
		return catalogdomain.Bundle{}, catalogdomain.ErrCatalogItemInactive
	}

	s.bundles.Set(code, *row, lookupTTL)
	return *row, nil
}

func (s *Service) GetAddOn(ctx context.Context, code string) (catalogdomain.AddOn, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return catalogdomain.AddOn{}, err
	}
	if cached, ok := s.addOns.Get(code); ok {
		return cached, nil
	}

	row, err := s.repo.FindAddOnByCode(ctx, s.db, code)
	if err != nil {
		return catalogdomain.AddOn{}, err
	}
	if row == nil {
		return catalogdomain.AddOn{}, catalogdomain.ErrAddOnNotFound
	}
	if !row.IsActive {
		return catalogdomain.AddOn{}, catalogdomain.ErrCatalogItemInactive
	}

	s.addOns.Set(code, *row, lookupTTL)
	return *row, nil
}

func (s *Service) GetStoragePlan(ctx context.Context, code string) (catalogdomain.StoragePlan, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return catalogdomain.StoragePlan{}, err
	}
	if cached, ok := s.storage.Get(code); ok {
		return cached, nil
	}

	row, err := s.repo.FindStoragePlanByCode(ctx, s.db, code)
	if err != nil {
		return catalogdomain.StoragePlan{}, err
	}
	if row == nil {
		return catalogdomain.StoragePlan{}, catalogdomain.ErrStoragePlanNotFound
	}
	if !row.IsActive {
		return catalogdomain.StoragePlan{}, catalogdomain.ErrCatalogItemInactive
	}

	s.storage.Set(code, *row, lookupTTL)
	return *row, nil
}

func (s *Service) GetUserTier(ctx context.Context, code string) (catalogdomain.UserTier, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return catalogdomain.UserTier{}, err
	}
	if cached, ok := s.tiers.Get(code); ok {
		return cached, nil
	}

	row, err := s.repo.FindUserTierByCode(ctx, s.db, code)
	if err != nil {
		return catalogdomain.UserTier{}, err
	}
	if row == nil {
		return catalogdomain.UserTier{}, catalogdomain.ErrUserTierNotFound
	}
	if !row.IsActive {
		return catalogdomain.UserTier{}, catalogdomain.ErrCatalogItemInactive
	}

	s.tiers.Set(code, *row, lookupTTL)
	return *row, nil
}

func (s *Service) ListPackages(ctx context.Context) ([]catalogdomain.Package, error) {
	return s.repo.ListPackages(ctx, s.db)
}

func (s *Service) ListModules(ctx context.Context) ([]catalogdomain.ModuleDefinition, error) {
	return s.repo.ListModules(ctx, s.db)
}

func (s *Service) ListBundles(ctx context.Context) ([]catalogdomain.Bundle, error) {
	return s.repo.ListBundles(ctx, s.db)
}
