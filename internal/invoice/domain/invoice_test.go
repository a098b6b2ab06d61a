package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	testDue = testNow.AddDate(0, 0, 14)
)

func newTestInvoice(t *testing.T, taxRate float64) *Invoice {
	t.Helper()
	inv, err := NewInvoice(1, "INV-TEST", 100, 200, nil, "TRY", taxRate, testNow, testDue)
	require.NoError(t, err)
	inv.DrainEvents()
	return inv
}

func newSentInvoice(t *testing.T) *Invoice {
	t.Helper()
	inv := newTestInvoice(t, 20)
	require.NoError(t, inv.AddItem(10, "CRM module", 1, money.MustNew(10000, "TRY"), testNow))
	require.NoError(t, inv.Send(testNow))
	inv.DrainEvents()
	return inv
}

func TestTaxRecomputedOnItemChange(t *testing.T) {
	inv := newTestInvoice(t, 20)

	require.NoError(t, inv.AddItem(10, "CRM module", 1, money.MustNew(10000, "TRY"), testNow))
	assert.Equal(t, int64(10000), inv.SubtotalAmount)
	assert.Equal(t, int64(2000), inv.TaxAmount)
	assert.Equal(t, int64(12000), inv.TotalAmount)

	require.NoError(t, inv.AddItem(11, "Seats", 5, money.MustNew(300, "TRY"), testNow))
	assert.Equal(t, int64(11500), inv.SubtotalAmount)
	assert.Equal(t, int64(2300), inv.TaxAmount)
	assert.Equal(t, int64(13800), inv.TotalAmount)

	require.NoError(t, inv.RemoveItem(10, testNow))
	assert.Equal(t, int64(1500), inv.SubtotalAmount)
	assert.Equal(t, int64(300), inv.TaxAmount)
	assert.Equal(t, int64(1800), inv.TotalAmount)
}

func TestItemsOnlyMutableWhileDraft(t *testing.T) {
	inv := newSentInvoice(t)

	err := inv.AddItem(11, "Late line", 1, money.MustNew(500, "TRY"), testNow)
	assert.ErrorIs(t, err, ErrInvoiceNotDraft)
	assert.ErrorIs(t, inv.RemoveItem(10, testNow), ErrInvoiceNotDraft)
}

func TestSendRequiresItems(t *testing.T) {
	inv := newTestInvoice(t, 20)
	assert.ErrorIs(t, inv.Send(testNow), ErrInvoiceEmpty)

	require.NoError(t, inv.AddItem(10, "CRM module", 1, money.MustNew(10000, "TRY"), testNow))
	require.NoError(t, inv.Send(testNow))
	assert.ErrorIs(t, inv.Send(testNow), ErrInvalidTransition)
}

func TestSettlementDerivesStatus(t *testing.T) {
	inv := newSentInvoice(t) // total 12000

	require.NoError(t, inv.AddPayment(20, "credit_card", money.MustNew(5000, "TRY"), "txn-1", "", testNow))
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	assert.Equal(t, int64(5000), inv.PaidAmount)
	assert.Nil(t, inv.PaidDate)

	require.NoError(t, inv.AddPayment(21, "credit_card", money.MustNew(7000, "TRY"), "txn-2", "", testNow))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.Equal(t, int64(12000), inv.PaidAmount)
	require.NotNil(t, inv.PaidDate)

	// a Paid invoice rejects further payments without altering paidAmount
	err := inv.AddPayment(22, "credit_card", money.MustNew(100, "USD"), "txn-3", "", testNow)
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
	assert.Equal(t, int64(12000), inv.PaidAmount)
	err = inv.AddPayment(22, "credit_card", money.MustNew(100, "TRY"), "txn-3", "", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, int64(12000), inv.PaidAmount)
}

func TestPaymentGuards(t *testing.T) {
	inv := newSentInvoice(t)

	err := inv.AddPayment(20, "credit_card", money.MustNew(5000, "USD"), "", "", testNow)
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)

	err = inv.AddPayment(20, "credit_card", money.MustNew(0, "TRY"), "", "", testNow)
	assert.ErrorIs(t, err, ErrInvalidPaymentAmount)

	err = inv.AddPayment(20, "credit_card", money.MustNew(20000, "TRY"), "", "", testNow)
	assert.ErrorIs(t, err, ErrPaymentExceedsTotal)
	assert.Zero(t, inv.PaidAmount)

	draft := newTestInvoice(t, 20)
	err = draft.AddPayment(20, "credit_card", money.MustNew(100, "TRY"), "", "", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRefundConservation(t *testing.T) {
	inv := newSentInvoice(t) // total 12000
	require.NoError(t, inv.AddPayment(20, "credit_card", money.MustNew(12000, "TRY"), "txn-1", "", testNow))

	assert.ErrorIs(t, inv.Refund(30, money.MustNew(12000, "TRY"), "", testNow), ErrRefundReasonRequired)

	require.NoError(t, inv.Refund(30, money.MustNew(12000, "TRY"), "service cancelled", testNow))
	assert.Zero(t, inv.PaidAmount)
	assert.Equal(t, InvoiceStatusRefunded, inv.Status)
	assert.Nil(t, inv.PaidDate)

	refund := inv.Payments[len(inv.Payments)-1]
	assert.True(t, refund.IsRefund)
	assert.Equal(t, "service cancelled", refund.RefundReason)
}

func TestPartialRefundLeavesPartiallyPaid(t *testing.T) {
	inv := newSentInvoice(t)
	require.NoError(t, inv.AddPayment(20, "credit_card", money.MustNew(12000, "TRY"), "txn-1", "", testNow))

	require.NoError(t, inv.Refund(30, money.MustNew(5000, "TRY"), "partial downgrade", testNow))
	assert.Equal(t, int64(7000), inv.PaidAmount)
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)

	// refund is only legal from Paid
	err := inv.Refund(31, money.MustNew(1000, "TRY"), "again", testNow)
	assert.ErrorIs(t, err, ErrInvoiceNotPaid)
}

func TestOverdueRules(t *testing.T) {
	inv := newSentInvoice(t)

	assert.ErrorIs(t, inv.MarkAsOverdue(testDue), ErrInvoiceNotDue)
	assert.False(t, inv.IsOverdue(testDue))

	late := testDue.Add(time.Hour)
	assert.True(t, inv.IsOverdue(late))
	require.NoError(t, inv.MarkAsOverdue(late))
	assert.Equal(t, InvoiceStatusOverdue, inv.Status)

	// overdue invoices can still be settled
	require.NoError(t, inv.AddPayment(20, "wire", money.MustNew(12000, "TRY"), "txn-1", "", late))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
}

func TestCancelGuards(t *testing.T) {
	inv := newSentInvoice(t)
	require.NoError(t, inv.AddPayment(20, "credit_card", money.MustNew(12000, "TRY"), "txn-1", "", testNow))
	assert.ErrorIs(t, inv.Cancel(testNow), ErrInvalidTransition)

	other := newSentInvoice(t)
	require.NoError(t, other.Cancel(testNow))
	assert.Equal(t, InvoiceStatusCancelled, other.Status)
	err := other.AddPayment(21, "credit_card", money.MustNew(100, "TRY"), "", "", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkAsPaidForcesSettlement(t *testing.T) {
	inv := newSentInvoice(t)
	require.NoError(t, inv.MarkAsPaid(testNow))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.Equal(t, inv.TotalAmount, inv.PaidAmount)
}

func TestDueDateValidation(t *testing.T) {
	_, err := NewInvoice(1, "INV-TEST", 100, 200, nil, "TRY", 20, testNow, testNow.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidDueDate)

	var orderID snowflake.ID = 300
	inv, err := NewInvoice(1, "INV-TEST", 100, 200, &orderID, "try", 20, testNow, testDue)
	require.NoError(t, err)
	assert.Equal(t, "TRY", inv.Currency)
	require.NotNil(t, inv.OrderID)
}
