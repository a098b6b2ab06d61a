package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/stockerhq/stocker/internal/billingcycle"
	catalogdomain "github.com/stockerhq/stocker/internal/catalog/domain"
	"github.com/stockerhq/stocker/internal/clock"
	"github.com/stockerhq/stocker/internal/config"
	"github.com/stockerhq/stocker/internal/outbox"
	subscriptiondomain "github.com/stockerhq/stocker/internal/subscription/domain"
	"github.com/stockerhq/stocker/internal/tenantctx"
	"github.com/stockerhq/stocker/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       subscriptiondomain.Repository
	catalogsvc catalogdomain.Service
	billing    *config.BillingConfigHolder
	outbox     *outbox.Writer
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       subscriptiondomain.Repository
	CatalogSvc catalogdomain.Service
	Billing    *config.BillingConfigHolder
	Outbox     *outbox.Writer
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		catalogsvc: p.CatalogSvc,
		billing:    p.Billing,
		outbox:     p.Outbox,
	}
}

// Create opens a subscription directly, outside the order pipeline. An
// empty package code creates a custom package assembled per module.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (*subscriptiondomain.Subscription, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	cycle, err := billingcycle.Parse(req.BillingCycle)
	if err != nil {
		return nil, err
	}

	policy := s.billing.Get()
	now := s.clock.Now()

	var (
		pkg       *catalogdomain.Package
		packageID *snowflake.ID
		price     = money.Money{Amount: 0, Currency: policy.DefaultCurrency}
		trialDays = policy.DefaultTrialDays
		storageGB int
	)
	if code := strings.TrimSpace(req.PackageCode); code != "" {
		found, err := s.catalogsvc.GetPackage(ctx, code)
		if err != nil {
			return nil, err
		}
		pkg = &found
		packageID = &found.ID
		price = found.BasePrice()
		storageGB = found.StorageGB
		if found.TrialDays > 0 {
			trialDays = found.TrialDays
		}
	}

	userCount := req.UserCount
	if userCount == 0 {
		userCount = 1
	}

	sub, err := subscriptiondomain.NewSubscription(
		s.genID.Generate(), newSubscriptionNumber(), tenantID, packageID, cycle, price, userCount, now,
	)
	if err != nil {
		return nil, err
	}
	if pkg != nil {
		for _, moduleCode := range pkg.ModuleCodes {
			module, err := s.catalogsvc.GetModule(ctx, moduleCode)
			if err != nil {
				return nil, err
			}
			if err := sub.AddModule(s.genID.Generate(), module.Code, module.Name, module.Price(), module.TrialDays, now); err != nil {
				return nil, err
			}
		}
	}
	if storageGB > 0 {
		if err := sub.SetStorageBucket(tenantID.String(), storageGB, now); err != nil {
			return nil, err
		}
	}
	if req.StartTrial {
		if err := sub.StartTrial(trialDays, now); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, tenantID, sub.DrainEvents())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("subscription_number", sub.SubscriptionNumber),
		zap.String("tenant_id", tenantID.String()),
	)
	return sub, nil
}

func (s *Service) GetByID(ctx context.Context, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	tenantID, id, err := s.parseRef(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) GetActive(ctx context.Context) (*subscriptiondomain.Subscription, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	sub, err := s.repo.FindActiveByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) Activate(ctx context.Context, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.Activate(now)
	})
}

func (s *Service) Suspend(ctx context.Context, subscriptionID, reason string) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.Suspend(reason, now)
	})
}

func (s *Service) Reactivate(ctx context.Context, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.Reactivate(now)
	})
}

func (s *Service) Cancel(ctx context.Context, subscriptionID, reason string) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.Cancel(reason, now)
	})
}

func (s *Service) MarkAsPastDue(ctx context.Context, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.MarkAsPastDue(now)
	})
}

func (s *Service) Expire(ctx context.Context, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.Expire(now)
	})
}

func (s *Service) Renew(ctx context.Context, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.Renew(now)
	})
}

func (s *Service) UpdateBillingCycle(ctx context.Context, subscriptionID, cycle string) (*subscriptiondomain.Subscription, error) {
	parsed, err := billingcycle.Parse(cycle)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.UpdateBillingCycle(parsed, now)
	})
}

func (s *Service) ChangePackage(ctx context.Context, req subscriptiondomain.ChangePackageRequest) (*subscriptiondomain.Subscription, error) {
	pkg, err := s.catalogsvc.GetPackage(ctx, req.PackageCode)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, req.SubscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.ChangePackage(pkg.ID, pkg.BasePrice(), now)
	})
}

func (s *Service) AddModule(ctx context.Context, req subscriptiondomain.ModuleRequest) (*subscriptiondomain.Subscription, error) {
	module, err := s.catalogsvc.GetModule(ctx, req.ModuleCode)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, req.SubscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.AddModule(s.genID.Generate(), module.Code, module.Name, module.Price(), module.TrialDays, now)
	})
}

func (s *Service) RemoveModule(ctx context.Context, req subscriptiondomain.ModuleRequest) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, req.SubscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.RemoveModule(req.ModuleCode, now)
	})
}

func (s *Service) RecordUsage(ctx context.Context, req subscriptiondomain.RecordUsageRequest) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, req.SubscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.RecordUsage(s.genID.Generate(), req.MetricCode, req.Quantity, now)
	})
}

func (s *Service) SetStorageBucket(ctx context.Context, req subscriptiondomain.StorageBucketRequest) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, req.SubscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.SetStorageBucket(req.TenantHandle, req.QuotaGB, now)
	})
}

func (s *Service) UpdateStorageUsage(ctx context.Context, req subscriptiondomain.StorageUsageRequest) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, req.SubscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.UpdateStorageUsage(req.UsedBytes, now)
	})
}

func (s *Service) UpdateStorageQuota(ctx context.Context, subscriptionID string, quotaGB int) (*subscriptiondomain.Subscription, error) {
	return s.mutate(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		return sub.UpdateStorageQuota(quotaGB, now)
	})
}

func (s *Service) GetStorageStatus(ctx context.Context, subscriptionID string) (*subscriptiondomain.StorageStatus, error) {
	sub, err := s.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return &subscriptiondomain.StorageStatus{
		BucketName:      sub.StorageBucketName,
		QuotaGB:         sub.StorageQuotaGB,
		UsedBytes:       sub.StorageUsedBytes,
		UsagePercentage: sub.GetStorageUsagePercentage(),
		QuotaExceeded:   sub.IsStorageQuotaExceeded(),
	}, nil
}

// RenewDue rolls forward subscriptions whose period has lapsed with
// auto-renew on. The scheduler calls this; entities never self-renew.
func (s *Service) RenewDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.ListDueForRenewal(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	renewed := 0
	for i := range due {
		sub := &due[i]
		err := s.withLocked(ctx, sub.TenantID, sub.ID, func(locked *subscriptiondomain.Subscription, tx *gorm.DB) error {
			if !locked.AutoRenew || !locked.IsExpired(now) {
				return nil
			}
			if err := locked.Renew(now); err != nil {
				return nil // raced into a non-renewable state
			}
			if err := s.repo.Save(ctx, tx, locked); err != nil {
				return err
			}
			renewed++
			return s.outbox.Append(ctx, tx, locked.TenantID, locked.DrainEvents())
		})
		if err != nil {
			return renewed, err
		}
	}
	return renewed, nil
}

// PromoteEndedTrials activates trials whose window has closed.
func (s *Service) PromoteEndedTrials(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	ended, err := s.repo.ListEndedTrials(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for i := range ended {
		sub := &ended[i]
		err := s.withLocked(ctx, sub.TenantID, sub.ID, func(locked *subscriptiondomain.Subscription, tx *gorm.DB) error {
			if !locked.IsTrialOver(now) {
				return nil
			}
			if err := locked.Activate(now); err != nil {
				return nil
			}
			if err := s.repo.Save(ctx, tx, locked); err != nil {
				return err
			}
			promoted++
			return s.outbox.Append(ctx, tx, locked.TenantID, locked.DrainEvents())
		})
		if err != nil {
			return promoted, err
		}
	}
	return promoted, nil
}

func (s *Service) mutate(ctx context.Context, subscriptionID string, fn func(sub *subscriptiondomain.Subscription, now time.Time) error) (*subscriptiondomain.Subscription, error) {
	tenantID, id, err := s.parseRef(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	var sub *subscriptiondomain.Subscription
	err = s.withLocked(ctx, tenantID, id, func(locked *subscriptiondomain.Subscription, tx *gorm.DB) error {
		sub = locked
		if err := fn(locked, s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, locked); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, tenantID, locked.DrainEvents())
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) withLocked(ctx context.Context, tenantID, id snowflake.ID, fn func(sub *subscriptiondomain.Subscription, tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		return fn(locked, tx)
	})
}

func (s *Service) parseRef(ctx context.Context, raw string) (snowflake.ID, snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return 0, 0, subscriptiondomain.ErrSubscriptionNotFound
	}

	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, subscriptiondomain.ErrSubscriptionNotFound
	}
	return tenantID, id, nil
}

func newSubscriptionNumber() string {
	return "SUB-" + ulid.Make().String()
}
