// Package domain contains the invoice aggregate: billing documents issued
// against a subscription, settled by payment records. Refunds are payments
// with the refund flag set, so the payment list is the full audit trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	outboxdomain "github.com/stockerhq/stocker/internal/outbox/domain"
	"github.com/stockerhq/stocker/pkg/money"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusSent          InvoiceStatus = "SENT"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
	InvoiceStatusRefunded      InvoiceStatus = "REFUNDED"
)

// PaymentStatus represents payment processing states.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// Invoice is the aggregate root. Totals are recomputed on every item
// change while Draft; status is derived from paid vs total after that.
type Invoice struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	InvoiceNumber  string        `gorm:"type:text;not null;uniqueIndex"`
	TenantID       snowflake.ID  `gorm:"not null;index"`
	SubscriptionID snowflake.ID  `gorm:"not null;index"`
	OrderID        *snowflake.ID `gorm:"index"`
	Status         InvoiceStatus `gorm:"type:text;not null;default:'DRAFT'"`
	Currency       string        `gorm:"type:text;not null"`

	SubtotalAmount int64   `gorm:"not null;default:0"`
	TaxRate        float64 `gorm:"not null;default:0"`
	TaxAmount      int64   `gorm:"not null;default:0"`
	TotalAmount    int64   `gorm:"not null;default:0"`
	PaidAmount     int64   `gorm:"not null;default:0"`

	IssueDate time.Time  `gorm:"not null"`
	DueDate   time.Time  `gorm:"not null;index"`
	PaidDate  *time.Time `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items    []InvoiceItem `gorm:"foreignKey:InvoiceID"`
	Payments []Payment     `gorm:"foreignKey:InvoiceID"`

	pendingEvents []outboxdomain.Event `gorm:"-"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Total returns the amount due including tax.
func (inv *Invoice) Total() money.Money {
	return money.Money{Amount: inv.TotalAmount, Currency: inv.Currency}
}

// Paid returns the amount settled so far, net of refunds.
func (inv *Invoice) Paid() money.Money {
	return money.Money{Amount: inv.PaidAmount, Currency: inv.Currency}
}

// Outstanding returns the unsettled remainder.
func (inv *Invoice) Outstanding() money.Money {
	return money.Money{Amount: inv.TotalAmount - inv.PaidAmount, Currency: inv.Currency}
}

// InvoiceItem is one billed line owned by an invoice.
type InvoiceItem struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	InvoiceID       snowflake.ID `gorm:"not null;index"`
	Description     string       `gorm:"type:text;not null"`
	Quantity        int64        `gorm:"not null;default:1"`
	UnitPriceAmount int64        `gorm:"not null"`
	Currency        string       `gorm:"type:text;not null"`
	LineTotalAmount int64        `gorm:"not null"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// LineTotal returns the line total as a Money value.
func (i InvoiceItem) LineTotal() money.Money {
	return money.Money{Amount: i.LineTotalAmount, Currency: i.Currency}
}

// Payment is one settlement record against an invoice. A refund is a
// Payment with IsRefund set and a mandatory reason.
type Payment struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	InvoiceID     snowflake.ID  `gorm:"not null;index"`
	Method        string        `gorm:"type:text;not null"`
	Status        PaymentStatus `gorm:"type:text;not null;default:'PENDING'"`
	Amount        int64         `gorm:"not null"`
	Currency      string        `gorm:"type:text;not null"`
	TransactionID string        `gorm:"type:text;index"`
	IsRefund      bool          `gorm:"not null;default:false"`
	RefundReason  string        `gorm:"type:text"`
	Notes         string        `gorm:"type:text"`
	ProcessedAt   time.Time     `gorm:"not null"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// Value returns the payment amount as a Money value.
func (p Payment) Value() money.Money {
	return money.Money{Amount: p.Amount, Currency: p.Currency}
}
