package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cart *SubscriptionCart) error
	Save(ctx context.Context, db *gorm.DB, cart *SubscriptionCart) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*SubscriptionCart, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*SubscriptionCart, error)
	FindActiveByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*SubscriptionCart, error)
	ListExpired(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]SubscriptionCart, error)
}
