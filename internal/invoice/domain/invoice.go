package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	outboxdomain "github.com/stockerhq/stocker/internal/outbox/domain"
	"github.com/stockerhq/stocker/pkg/money"
)

// NewInvoice opens a draft invoice against a subscription.
func NewInvoice(id snowflake.ID, number string, tenantID, subscriptionID snowflake.ID, orderID *snowflake.ID, currency string, taxRate float64, issueDate, dueDate time.Time) (*Invoice, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if _, err := money.New(0, currency); err != nil {
		return nil, err
	}
	if taxRate < 0 {
		return nil, ErrInvalidTaxRate
	}
	if dueDate.Before(issueDate) {
		return nil, ErrInvalidDueDate
	}

	inv := &Invoice{
		ID:             id,
		InvoiceNumber:  number,
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		OrderID:        orderID,
		Status:         InvoiceStatusDraft,
		Currency:       currency,
		TaxRate:        taxRate,
		IssueDate:      issueDate,
		DueDate:        dueDate,
		CreatedAt:      issueDate,
		UpdatedAt:      issueDate,
	}
	inv.recordEvent("invoice.created", map[string]any{
		"invoice_id":      id.String(),
		"invoice_number":  number,
		"subscription_id": subscriptionID.String(),
	})
	return inv, nil
}

// AddItem appends a billed line. Draft only; totals are recomputed.
func (inv *Invoice) AddItem(itemID snowflake.ID, description string, quantity int64, unitPrice money.Money, now time.Time) error {
	if inv.Status != InvoiceStatusDraft {
		return ErrInvoiceNotDraft
	}
	if strings.TrimSpace(description) == "" {
		return ErrInvalidDescription
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if unitPrice.Currency != inv.Currency {
		return money.ErrCurrencyMismatch
	}

	lineTotal, err := unitPrice.Multiply(quantity)
	if err != nil {
		return err
	}
	inv.Items = append(inv.Items, InvoiceItem{
		ID:              itemID,
		InvoiceID:       inv.ID,
		Description:     strings.TrimSpace(description),
		Quantity:        quantity,
		UnitPriceAmount: unitPrice.Amount,
		Currency:        unitPrice.Currency,
		LineTotalAmount: lineTotal.Amount,
		CreatedAt:       now,
	})
	inv.recomputeTotals()
	inv.touch(now)
	return nil
}

// RemoveItem drops a billed line. Draft only; totals are recomputed.
func (inv *Invoice) RemoveItem(itemID snowflake.ID, now time.Time) error {
	if inv.Status != InvoiceStatusDraft {
		return ErrInvoiceNotDraft
	}
	idx := slices.IndexFunc(inv.Items, func(i InvoiceItem) bool { return i.ID == itemID })
	if idx < 0 {
		return ErrItemNotFound
	}
	inv.Items = slices.Delete(inv.Items, idx, idx+1)
	inv.recomputeTotals()
	inv.touch(now)
	return nil
}

// Send issues the invoice. At least one item is required.
func (inv *Invoice) Send(now time.Time) error {
	if inv.Status != InvoiceStatusDraft {
		return ErrInvalidTransition
	}
	if len(inv.Items) == 0 {
		return ErrInvoiceEmpty
	}
	inv.Status = InvoiceStatusSent
	inv.touch(now)
	inv.recordEvent("invoice.sent", map[string]any{
		"invoice_id": inv.ID.String(),
		"total":      inv.TotalAmount,
		"currency":   inv.Currency,
		"due_date":   inv.DueDate.Format(time.RFC3339),
	})
	return nil
}

// AddPayment settles part or all of the invoice and derives the status
// from the paid-versus-total relationship. Guards run before any write.
func (inv *Invoice) AddPayment(paymentID snowflake.ID, method string, amount money.Money, transactionID, notes string, now time.Time) error {
	if amount.Currency != inv.Currency {
		return money.ErrCurrencyMismatch
	}
	switch inv.Status {
	case InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusOverdue:
	default:
		return ErrInvalidTransition
	}
	if amount.Amount <= 0 {
		return ErrInvalidPaymentAmount
	}
	if inv.PaidAmount+amount.Amount > inv.TotalAmount {
		return ErrPaymentExceedsTotal
	}

	inv.Payments = append(inv.Payments, Payment{
		ID:            paymentID,
		InvoiceID:     inv.ID,
		Method:        method,
		Status:        PaymentStatusCompleted,
		Amount:        amount.Amount,
		Currency:      amount.Currency,
		TransactionID: transactionID,
		Notes:         notes,
		ProcessedAt:   now,
		CreatedAt:     now,
	})
	inv.PaidAmount += amount.Amount
	inv.deriveSettlementStatus(now)
	inv.touch(now)
	inv.recordEvent("invoice.payment_received", map[string]any{
		"invoice_id":  inv.ID.String(),
		"payment_id":  paymentID.String(),
		"amount":      amount.Amount,
		"currency":    amount.Currency,
		"paid_amount": inv.PaidAmount,
	})
	return nil
}

// MarkAsPaid force-settles the remaining balance, for out-of-band payments
// recorded manually.
func (inv *Invoice) MarkAsPaid(now time.Time) error {
	switch inv.Status {
	case InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusOverdue:
	default:
		return ErrInvalidTransition
	}
	inv.PaidAmount = inv.TotalAmount
	inv.deriveSettlementStatus(now)
	inv.touch(now)
	return nil
}

// MarkAsOverdue is invoked by the scheduler once the due date has passed.
// The invoice never self-transitions on a clock.
func (inv *Invoice) MarkAsOverdue(now time.Time) error {
	if inv.Status != InvoiceStatusSent && inv.Status != InvoiceStatusPartiallyPaid {
		return ErrInvalidTransition
	}
	if !now.After(inv.DueDate) {
		return ErrInvoiceNotDue
	}
	inv.Status = InvoiceStatusOverdue
	inv.touch(now)
	inv.recordEvent("invoice.overdue", map[string]any{
		"invoice_id":  inv.ID.String(),
		"outstanding": inv.TotalAmount - inv.PaidAmount,
		"currency":    inv.Currency,
	})
	return nil
}

// IsOverdue is the pure predicate the scheduler evaluates.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return (inv.Status == InvoiceStatusSent || inv.Status == InvoiceStatusPartiallyPaid) && now.After(inv.DueDate)
}

// Cancel voids an unsettled invoice.
func (inv *Invoice) Cancel(now time.Time) error {
	switch inv.Status {
	case InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusRefunded:
		return ErrInvalidTransition
	}
	inv.Status = InvoiceStatusCancelled
	inv.touch(now)
	inv.recordEvent("invoice.cancelled", map[string]any{"invoice_id": inv.ID.String()})
	return nil
}

// Refund returns money on a paid invoice. The refund is recorded as a
// Payment with IsRefund set; paidAmount drops and the status follows it.
func (inv *Invoice) Refund(paymentID snowflake.ID, amount money.Money, reason string, now time.Time) error {
	if inv.Status != InvoiceStatusPaid {
		return ErrInvoiceNotPaid
	}
	if strings.TrimSpace(reason) == "" {
		return ErrRefundReasonRequired
	}
	if amount.Currency != inv.Currency {
		return money.ErrCurrencyMismatch
	}
	if amount.Amount <= 0 || amount.Amount > inv.PaidAmount {
		return ErrInvalidRefundAmount
	}

	inv.Payments = append(inv.Payments, Payment{
		ID:           paymentID,
		InvoiceID:    inv.ID,
		Method:       "refund",
		Status:       PaymentStatusCompleted,
		Amount:       amount.Amount,
		Currency:     amount.Currency,
		IsRefund:     true,
		RefundReason: strings.TrimSpace(reason),
		ProcessedAt:  now,
		CreatedAt:    now,
	})
	inv.PaidAmount -= amount.Amount
	if inv.PaidAmount == 0 {
		inv.Status = InvoiceStatusRefunded
		inv.PaidDate = nil
	} else {
		inv.Status = InvoiceStatusPartiallyPaid
	}
	inv.touch(now)
	inv.recordEvent("invoice.refunded", map[string]any{
		"invoice_id": inv.ID.String(),
		"amount":     amount.Amount,
		"currency":   amount.Currency,
		"reason":     reason,
	})
	return nil
}

// DrainEvents returns and clears the events recorded since the last drain.
func (inv *Invoice) DrainEvents() []outboxdomain.Event {
	events := inv.pendingEvents
	inv.pendingEvents = nil
	return events
}

// recomputeTotals rederives tax and total from the item lines.
func (inv *Invoice) recomputeTotals() {
	subtotal := int64(0)
	for i := range inv.Items {
		subtotal += inv.Items[i].LineTotalAmount
	}
	inv.SubtotalAmount = subtotal
	// TaxRate is validated non-negative in NewInvoice, so Percent cannot fail.
	tax, _ := money.Money{Amount: subtotal, Currency: inv.Currency}.Percent(inv.TaxRate)
	inv.TaxAmount = tax.Amount
	inv.TotalAmount = subtotal + tax.Amount
}

func (inv *Invoice) deriveSettlementStatus(now time.Time) {
	switch {
	case inv.PaidAmount >= inv.TotalAmount:
		if inv.Status != InvoiceStatusPaid {
			paidDate := now
			inv.PaidDate = &paidDate
		}
		inv.Status = InvoiceStatusPaid
		inv.recordEvent("invoice.paid", map[string]any{
			"invoice_id": inv.ID.String(),
			"total":      inv.TotalAmount,
			"currency":   inv.Currency,
		})
	case inv.PaidAmount > 0:
		inv.Status = InvoiceStatusPartiallyPaid
	}
}

func (inv *Invoice) touch(now time.Time) { inv.UpdatedAt = now }

func (inv *Invoice) recordEvent(eventType string, payload map[string]any) {
	inv.pendingEvents = append(inv.pendingEvents, outboxdomain.Event{
		Type:    eventType,
		Payload: payload,
	})
}
