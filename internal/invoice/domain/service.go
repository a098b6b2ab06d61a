package domain

import (
	"context"
	"errors"
)

var (
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrInvoiceNotDraft      = errors.New("invoice_not_draft")
	ErrInvoiceEmpty         = errors.New("invoice_empty")
	ErrInvoiceNotPaid       = errors.New("invoice_not_paid")
	ErrInvoiceNotDue        = errors.New("invoice_not_due")
	ErrItemNotFound         = errors.New("invoice_item_not_found")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrInvalidDescription   = errors.New("invalid_description")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidTaxRate       = errors.New("invalid_tax_rate")
	ErrInvalidDueDate       = errors.New("invalid_due_date")
	ErrInvalidPaymentAmount = errors.New("invalid_payment_amount")
	ErrPaymentExceedsTotal  = errors.New("payment_exceeds_total")
	ErrRefundReasonRequired = errors.New("refund_reason_required")
	ErrInvalidRefundAmount  = errors.New("invalid_refund_amount")
)

type CreateInvoiceRequest struct {
	SubscriptionID string `json:"subscription_id"`
	OrderID        string `json:"order_id,omitempty"`
	Currency       string `json:"currency,omitempty"`
	DueDays        int    `json:"due_days,omitempty"`
	// TaxRate pins the rate at issuance time; nil takes the current
	// billing policy rate.
	TaxRate *float64 `json:"tax_rate,omitempty"`
}

type AddInvoiceItemRequest struct {
	InvoiceID   string `json:"-"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

type AddPaymentRequest struct {
	InvoiceID     string `json:"-"`
	Method        string `json:"method"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transaction_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type RefundRequest struct {
	InvoiceID string `json:"-"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

//go:generate mockgen -source=service.go -destination=../mocks/service_mock.go -package=mocks

// Service manages invoice issuance and settlement.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetByID(ctx context.Context, invoiceID string) (*Invoice, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]Invoice, error)
	AddItem(ctx context.Context, req AddInvoiceItemRequest) (*Invoice, error)
	RemoveItem(ctx context.Context, invoiceID, itemID string) (*Invoice, error)
	Send(ctx context.Context, invoiceID string) (*Invoice, error)
	AddPayment(ctx context.Context, req AddPaymentRequest) (*Invoice, error)
	MarkAsPaid(ctx context.Context, invoiceID string) (*Invoice, error)
	Cancel(ctx context.Context, invoiceID string) (*Invoice, error)
	Refund(ctx context.Context, req RefundRequest) (*Invoice, error)
	RenderPDF(ctx context.Context, invoiceID string) ([]byte, error)
	MarkOverdue(ctx context.Context, limit int) (int, error)
}
