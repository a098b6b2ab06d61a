package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/stockerhq/stocker/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() subscriptiondomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

// Save writes the subscription header, replaces module grants and appends
// new usage rows. Usage is append-only; existing rows are never touched.
func (r *repository) Save(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	if err := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", subscription.ID).
		Select(
			"Status", "PackageID", "BillingCycle", "PriceAmount",
			"CurrentPeriodStart", "CurrentPeriodEnd", "TrialEndDate",
			"CancelledAt", "CancelReason", "SuspendReason", "AutoRenew", "UserCount",
			"ModuleCodes", "StorageBucketName", "StorageQuotaGB", "StorageUsedBytes", "StorageLastCheckedAt",
			"UpdatedAt",
		).
		Updates(subscription).Error; err != nil {
		return err
	}

	if err := db.WithContext(ctx).
		Where("subscription_id = ?", subscription.ID).
		Delete(&subscriptiondomain.SubscriptionModule{}).Error; err != nil {
		return err
	}
	if len(subscription.Modules) > 0 {
		if err := db.WithContext(ctx).Create(&subscription.Modules).Error; err != nil {
			return err
		}
	}

	for i := range subscription.Usages {
		usage := &subscription.Usages[i]
		err := db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(usage).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.find(ctx, db, tenantID, id, false)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.find(ctx, db, tenantID, id, true)
}

func (r *repository) find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, forUpdate bool) (*subscriptiondomain.Subscription, error) {
	stmt := db.WithContext(ctx).Preload("Modules")
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var subscription subscriptiondomain.Subscription
	err := stmt.Where("tenant_id = ? AND id = ?", tenantID, id).First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindActiveByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Preload("Modules").
		Where("tenant_id = ? AND status IN ?", tenantID, []subscriptiondomain.SubscriptionStatus{
			subscriptiondomain.SubscriptionStatusTrial,
			subscriptiondomain.SubscriptionStatusActive,
			subscriptiondomain.SubscriptionStatusPastDue,
		}).
		Order("created_at DESC").
		First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) ListDueForRenewal(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ? AND auto_renew = ? AND current_period_end <= ?",
			subscriptiondomain.SubscriptionStatusActive, true, before).
		Order("current_period_end").
		Limit(limit).
		Find(&subscriptions).Error
	return subscriptions, err
}

func (r *repository) ListEndedTrials(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ? AND trial_end_date <= ?", subscriptiondomain.SubscriptionStatusTrial, before).
		Order("trial_end_date").
		Limit(limit).
		Find(&subscriptions).Error
	return subscriptions, err
}
