package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Save(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Invoice, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, tenantID, subscriptionID snowflake.ID) ([]Invoice, error)
	ListOverdue(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]Invoice, error)
}
