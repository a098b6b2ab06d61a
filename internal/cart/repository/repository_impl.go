package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() cartdomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, cart *cartdomain.SubscriptionCart) error {
	return db.WithContext(ctx).Create(cart).Error
}

// Save persists the whole aggregate: cart fields plus an item replace, so
// removed lines disappear from storage.
func (r *repository) Save(ctx context.Context, db *gorm.DB, cart *cartdomain.SubscriptionCart) error {
	if err := db.WithContext(ctx).
		Model(&cartdomain.SubscriptionCart{}).
		Where("id = ?", cart.ID).
		Select("Status", "BillingCycle", "CouponCode", "DiscountPercent", "DiscountAmount", "ExpiresAt", "UpdatedAt").
		Updates(cart).Error; err != nil {
		return err
	}

	if err := db.WithContext(ctx).
		Where("cart_id = ?", cart.ID).
		Delete(&cartdomain.SubscriptionCartItem{}).Error; err != nil {
		return err
	}
	if len(cart.Items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&cart.Items).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*cartdomain.SubscriptionCart, error) {
	return r.find(ctx, db, tenantID, id, false)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*cartdomain.SubscriptionCart, error) {
	return r.find(ctx, db, tenantID, id, true)
}

func (r *repository) find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, forUpdate bool) (*cartdomain.SubscriptionCart, error) {
	stmt := db.WithContext(ctx).Preload("Items")
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var cart cartdomain.SubscriptionCart
	err := stmt.Where("tenant_id = ? AND id = ?", tenantID, id).First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cart, nil
}

func (r *repository) FindActiveByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*cartdomain.SubscriptionCart, error) {
	var cart cartdomain.SubscriptionCart
	err := db.WithContext(ctx).Preload("Items").
		Where("tenant_id = ? AND status = ?", tenantID, cartdomain.CartStatusActive).
		Order("created_at DESC").
		First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cart, nil
}

func (r *repository) ListExpired(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]cartdomain.SubscriptionCart, error) {
	var carts []cartdomain.SubscriptionCart
	err := db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?",
			[]cartdomain.CartStatus{cartdomain.CartStatusActive, cartdomain.CartStatusCheckoutPending},
			before,
		).
		Order("expires_at").
		Limit(limit).
		Find(&carts).Error
	return carts, err
}
