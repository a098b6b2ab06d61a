package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/stockerhq/stocker/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() invoicedomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

// Save writes the invoice header, replaces the draft item lines, and
// appends payments. Payment rows are an audit trail and never rewritten.
func (r *repository) Save(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	if err := db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Select("Status", "SubtotalAmount", "TaxAmount", "TotalAmount", "PaidAmount", "PaidDate", "UpdatedAt").
		Updates(invoice).Error; err != nil {
		return err
	}

	if err := db.WithContext(ctx).
		Where("invoice_id = ?", invoice.ID).
		Delete(&invoicedomain.InvoiceItem{}).Error; err != nil {
		return err
	}
	if len(invoice.Items) > 0 {
		if err := db.WithContext(ctx).Create(&invoice.Items).Error; err != nil {
			return err
		}
	}

	for i := range invoice.Payments {
		payment := &invoice.Payments[i]
		err := db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(payment).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.find(ctx, db, tenantID, id, false)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.find(ctx, db, tenantID, id, true)
}

func (r *repository) find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, forUpdate bool) (*invoicedomain.Invoice, error) {
	stmt := db.WithContext(ctx).Preload("Items").Preload("Payments")
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var invoice invoicedomain.Invoice
	err := stmt.Where("tenant_id = ? AND id = ?", tenantID, id).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListBySubscription(ctx context.Context, db *gorm.DB, tenantID, subscriptionID snowflake.ID) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).Preload("Items").Preload("Payments").
		Where("tenant_id = ? AND subscription_id = ?", tenantID, subscriptionID).
		Order("issue_date DESC").
		Find(&invoices).Error
	return invoices, err
}

func (r *repository) ListOverdue(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).
		Where("status IN ? AND due_date < ?",
			[]invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusPartiallyPaid},
			asOf,
		).
		Order("due_date").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}
