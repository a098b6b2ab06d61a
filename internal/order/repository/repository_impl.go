package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/stockerhq/stocker/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() orderdomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.SubscriptionOrder) error {
	return db.WithContext(ctx).Create(order).Error
}

// Save persists the order header and the per-item activation columns. Item
// lines are immutable snapshots, so only activation state is written back.
func (r *repository) Save(ctx context.Context, db *gorm.DB, order *orderdomain.SubscriptionOrder) error {
	if err := db.WithContext(ctx).
		Model(&orderdomain.SubscriptionOrder{}).
		Where("id = ?", order.ID).
		Select(
			"Status", "SubscriptionID", "PaymentMethod", "ProviderOrderID", "ProviderToken", "TransactionID",
			"FailureReason", "CancelReason", "RefundReason", "PaidAt", "CompletedAt",
			"BillingName", "BillingEmail", "BillingAddress", "BillingCity", "BillingCountry", "BillingTaxID",
			"UpdatedAt",
		).
		Updates(order).Error; err != nil {
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		if err := db.WithContext(ctx).
			Model(&orderdomain.SubscriptionOrderItem{}).
			Where("id = ?", item.ID).
			Select("IsActivated", "ActivatedAt", "ActivationError").
			Updates(item).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*orderdomain.SubscriptionOrder, error) {
	return r.find(ctx, db, tenantID, id, false)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*orderdomain.SubscriptionOrder, error) {
	return r.find(ctx, db, tenantID, id, true)
}

func (r *repository) find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, forUpdate bool) (*orderdomain.SubscriptionOrder, error) {
	stmt := db.WithContext(ctx).Preload("Items")
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var order orderdomain.SubscriptionOrder
	err := stmt.Where("tenant_id = ? AND id = ?", tenantID, id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByProviderOrderID(ctx context.Context, db *gorm.DB, providerOrderID string) (*orderdomain.SubscriptionOrder, error) {
	var order orderdomain.SubscriptionOrder
	err := db.WithContext(ctx).Preload("Items").
		Where("provider_order_id = ?", providerOrderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]orderdomain.SubscriptionOrder, error) {
	var orders []orderdomain.SubscriptionOrder
	err := db.WithContext(ctx).Preload("Items").
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
