package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	outboxdomain "github.com/stockerhq/stocker/internal/outbox/domain"
	"github.com/stockerhq/stocker/pkg/money"
)

// NewFromCart snapshots a checked-out cart into a pending order. Item lines
// are copied by value; later cart mutations never reach the order.
func NewFromCart(id snowflake.ID, orderNumber string, cart *cartdomain.SubscriptionCart, itemIDs []snowflake.ID, taxRate float64, now time.Time) (*SubscriptionOrder, error) {
	if len(cart.Items) == 0 {
		return nil, ErrOrderEmpty
	}
	if len(itemIDs) != len(cart.Items) {
		return nil, fmt.Errorf("expected %d item ids, got %d", len(cart.Items), len(itemIDs))
	}

	subTotal := cart.SubTotal()
	total := cart.Total()
	tax, err := total.Percent(taxRate)
	if err != nil {
		return nil, err
	}

	order := &SubscriptionOrder{
		ID:                  id,
		OrderNumber:         orderNumber,
		TenantID:            cart.TenantID,
		UserID:              cart.UserID,
		CartID:              cart.ID,
		Status:              OrderStatusPending,
		BillingCycle:        cart.BillingCycle,
		Currency:            cart.Currency,
		SubTotalAmount:      subTotal.Amount,
		DiscountTotalAmount: cart.DiscountAmount,
		TaxRate:             taxRate,
		TaxAmount:           tax.Amount,
		TotalAmount:         total.Amount + tax.Amount,
		CouponCode:          cart.CouponCode,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for idx, line := range cart.Items {
		order.Items = append(order.Items, SubscriptionOrderItem{
			ID:                  itemIDs[idx],
			OrderID:             id,
			ItemType:            line.ItemType,
			ItemID:              line.ItemID,
			Code:                line.Code,
			Name:                line.Name,
			UnitPriceAmount:     line.UnitPriceAmount,
			Currency:            line.Currency,
			Quantity:            line.Quantity,
			LineTotalAmount:     line.LineTotalAmount,
			TrialDays:           line.TrialDays,
			IncludedModuleCodes: append(line.IncludedModuleCodes[:0:0], line.IncludedModuleCodes...),
			StorageGB:           line.StorageGB,
			CreatedAt:           now,
		})
	}
	order.recordEvent("order.created", map[string]any{
		"order_id":     id.String(),
		"order_number": orderNumber,
		"cart_id":      cart.ID.String(),
		"total":        order.TotalAmount,
		"currency":     order.Currency,
	})
	return order, nil
}

// SetBillingAddress is only allowed before payment starts.
func (o *SubscriptionOrder) SetBillingAddress(addr BillingAddress, now time.Time) error {
	if o.Status != OrderStatusPending {
		return ErrInvalidTransition
	}
	o.BillingName = addr.Name
	o.BillingEmail = addr.Email
	o.BillingAddress = addr.Address
	o.BillingCity = addr.City
	o.BillingCountry = addr.Country
	o.BillingTaxID = addr.TaxID
	o.touch(now)
	return nil
}

// InitiatePayment moves the order to PaymentProcessing and records the
// provider handshake.
func (o *SubscriptionOrder) InitiatePayment(method, providerOrderID, providerToken string, now time.Time) error {
	if o.Status != OrderStatusPending {
		return ErrInvalidTransition
	}
	if method == "" {
		return ErrInvalidPaymentMethod
	}
	o.Status = OrderStatusPaymentProcessing
	o.PaymentMethod = method
	o.ProviderOrderID = providerOrderID
	o.ProviderToken = providerToken
	o.touch(now)
	o.recordEvent("order.payment_initiated", map[string]any{
		"order_id": o.ID.String(),
		"method":   method,
	})
	return nil
}

// CompletePayment records a successful charge.
func (o *SubscriptionOrder) CompletePayment(transactionID string, now time.Time) error {
	if o.Status != OrderStatusPaymentProcessing {
		return ErrInvalidTransition
	}
	// ProviderOrderID stays as set by InitiatePayment; it is the key refund
	// webhooks correlate on, so the charge reference goes in its own column.
	o.Status = OrderStatusPaymentCompleted
	if transactionID != "" {
		o.TransactionID = transactionID
	}
	paidAt := now
	o.PaidAt = &paidAt
	o.touch(now)
	o.recordEvent("order.payment_completed", map[string]any{
		"order_id": o.ID.String(),
		"total":    o.TotalAmount,
		"currency": o.Currency,
	})
	return nil
}

// FailPayment is only reachable from PaymentProcessing.
func (o *SubscriptionOrder) FailPayment(reason string, now time.Time) error {
	if o.Status != OrderStatusPaymentProcessing {
		return ErrInvalidTransition
	}
	o.Status = OrderStatusPaymentFailed
	o.FailureReason = reason
	o.touch(now)
	o.recordEvent("order.payment_failed", map[string]any{
		"order_id": o.ID.String(),
		"reason":   reason,
	})
	return nil
}

// StartActivation begins provisioning the purchased lines.
func (o *SubscriptionOrder) StartActivation(now time.Time) error {
	if o.Status != OrderStatusPaymentCompleted {
		return ErrInvalidTransition
	}
	o.Status = OrderStatusActivating
	o.touch(now)
	o.recordEvent("order.activation_started", map[string]any{"order_id": o.ID.String()})
	return nil
}

// MarkItemActivated flags one line as provisioned. The order itself stays
// Activating until Complete is called.
func (o *SubscriptionOrder) MarkItemActivated(itemID snowflake.ID, now time.Time) error {
	if o.Status != OrderStatusActivating {
		return ErrInvalidTransition
	}
	item := o.findItem(itemID)
	if item == nil {
		return ErrItemNotFound
	}
	activatedAt := now
	item.IsActivated = true
	item.ActivatedAt = &activatedAt
	item.ActivationError = ""
	o.touch(now)
	return nil
}

// MarkItemActivationFailed records a per-line provisioning failure so that
// callers can retry just the failed lines.
func (o *SubscriptionOrder) MarkItemActivationFailed(itemID snowflake.ID, cause string, now time.Time) error {
	if o.Status != OrderStatusActivating {
		return ErrInvalidTransition
	}
	item := o.findItem(itemID)
	if item == nil {
		return ErrItemNotFound
	}
	item.IsActivated = false
	item.ActivationError = cause
	o.touch(now)
	return nil
}

// UnactivatedItems returns the lines still waiting for provisioning.
func (o *SubscriptionOrder) UnactivatedItems() []*SubscriptionOrderItem {
	var out []*SubscriptionOrderItem
	for i := range o.Items {
		if !o.Items[i].IsActivated {
			out = append(out, &o.Items[i])
		}
	}
	return out
}

// Complete closes the order against the subscription it produced. It
// requires every line to be activated.
func (o *SubscriptionOrder) Complete(subscriptionID snowflake.ID, now time.Time) error {
	if o.Status != OrderStatusActivating {
		return ErrInvalidTransition
	}
	if len(o.UnactivatedItems()) > 0 {
		return ErrItemsNotActivated
	}
	o.Status = OrderStatusCompleted
	o.SubscriptionID = &subscriptionID
	completedAt := now
	o.CompletedAt = &completedAt
	o.touch(now)
	o.recordEvent("order.completed", map[string]any{
		"order_id":        o.ID.String(),
		"subscription_id": subscriptionID.String(),
	})
	return nil
}

// Cancel is reachable from every state before completion.
func (o *SubscriptionOrder) Cancel(reason string, now time.Time) error {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefundRequested, OrderStatusRefunded:
		return ErrInvalidTransition
	}
	o.Status = OrderStatusCancelled
	o.CancelReason = reason
	o.touch(now)
	o.recordEvent("order.cancelled", map[string]any{
		"order_id": o.ID.String(),
		"reason":   reason,
	})
	return nil
}

// RequestRefund opens a refund on a completed order.
func (o *SubscriptionOrder) RequestRefund(reason string, now time.Time) error {
	if o.Status != OrderStatusCompleted {
		return ErrInvalidTransition
	}
	if reason == "" {
		return ErrRefundReasonRequired
	}
	o.Status = OrderStatusRefundRequested
	o.RefundReason = reason
	o.touch(now)
	o.recordEvent("order.refund_requested", map[string]any{
		"order_id": o.ID.String(),
		"reason":   reason,
	})
	return nil
}

// CompleteRefund settles a requested refund.
func (o *SubscriptionOrder) CompleteRefund(now time.Time) error {
	if o.Status != OrderStatusRefundRequested {
		return ErrInvalidTransition
	}
	o.Status = OrderStatusRefunded
	o.touch(now)
	o.recordEvent("order.refunded", map[string]any{"order_id": o.ID.String()})
	return nil
}

// TaxTotal returns the tax charged on the order.
func (o *SubscriptionOrder) TaxTotal() money.Money {
	return money.Money{Amount: o.TaxAmount, Currency: o.Currency}
}

// DrainEvents returns and clears the events recorded since the last drain.
func (o *SubscriptionOrder) DrainEvents() []outboxdomain.Event {
	events := o.pendingEvents
	o.pendingEvents = nil
	return events
}

func (o *SubscriptionOrder) findItem(itemID snowflake.ID) *SubscriptionOrderItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

func (o *SubscriptionOrder) touch(now time.Time) { o.UpdatedAt = now }

func (o *SubscriptionOrder) recordEvent(eventType string, payload map[string]any) {
	o.pendingEvents = append(o.pendingEvents, outboxdomain.Event{
		Type:    eventType,
		Payload: payload,
	})
}
