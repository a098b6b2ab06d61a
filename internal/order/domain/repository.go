package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *SubscriptionOrder) error
	Save(ctx context.Context, db *gorm.DB, order *SubscriptionOrder) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*SubscriptionOrder, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*SubscriptionOrder, error)
	FindByProviderOrderID(ctx context.Context, db *gorm.DB, providerOrderID string) (*SubscriptionOrder, error)
	ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]SubscriptionOrder, error)
}
