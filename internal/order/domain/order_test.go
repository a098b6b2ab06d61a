package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/internal/billingcycle"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	catalogdomain "github.com/stockerhq/stocker/internal/catalog/domain"
	"github.com/stockerhq/stocker/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newCheckedOutCart(t *testing.T) *cartdomain.SubscriptionCart {
	t.Helper()
	cart, err := cartdomain.NewSubscriptionCart(1, 100, nil, billingcycle.Monthly, "TRY", testNow, 24*time.Hour)
	require.NoError(t, err)

	crm := catalogdomain.ModuleDefinition{ID: 1, Code: "CRM", Name: "CRM", PriceAmount: 10000, Currency: "TRY"}
	hr := catalogdomain.ModuleDefinition{ID: 2, Code: "HR", Name: "HR", PriceAmount: 5000, Currency: "TRY"}
	require.NoError(t, cart.AddModule(10, crm, 1, testNow))
	require.NoError(t, cart.AddModule(11, hr, 1, testNow))
	require.NoError(t, cart.ApplyCoupon("WELCOME10", 10, money.MustNew(1000, "TRY"), testNow))
	return cart
}

func newTestOrder(t *testing.T) *SubscriptionOrder {
	t.Helper()
	cart := newCheckedOutCart(t)
	order, err := NewFromCart(50, "ORD-TEST", cart, []snowflake.ID{60, 61}, 20, testNow)
	require.NoError(t, err)
	order.DrainEvents()
	return order
}

func TestNewFromCartSnapshotsTotals(t *testing.T) {
	order := newTestOrder(t)

	assert.Equal(t, int64(15000), order.SubTotalAmount)
	assert.Equal(t, int64(1000), order.DiscountTotalAmount)
	// 20% tax on the discounted 140.00
	assert.Equal(t, int64(2800), order.TaxAmount)
	assert.Equal(t, int64(16800), order.TotalAmount)
	require.NotNil(t, order.CouponCode)
	assert.Equal(t, "WELCOME10", *order.CouponCode)
	assert.Equal(t, OrderStatusPending, order.Status)
}

func TestNewFromCartRejectsNegativeTaxRate(t *testing.T) {
	cart := newCheckedOutCart(t)

	_, err := NewFromCart(50, "ORD-TEST", cart, []snowflake.ID{60, 61}, -1, testNow)
	assert.ErrorIs(t, err, money.ErrInvalidFactor)
}

func TestNewFromCartRejectsEmptyCart(t *testing.T) {
	cart, err := cartdomain.NewSubscriptionCart(1, 100, nil, billingcycle.Monthly, "TRY", testNow, 24*time.Hour)
	require.NoError(t, err)

	_, err = NewFromCart(50, "ORD-TEST", cart, nil, 20, testNow)
	assert.ErrorIs(t, err, ErrOrderEmpty)
}

func TestOrderItemsAreImmutableCopies(t *testing.T) {
	cart := newCheckedOutCart(t)
	order, err := NewFromCart(50, "ORD-TEST", cart, []snowflake.ID{60, 61}, 20, testNow)
	require.NoError(t, err)

	require.NoError(t, cart.RemoveItem(10, testNow))
	cart.Items[0].UnitPriceAmount = 1

	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(10000), order.Items[0].UnitPriceAmount)
	assert.Equal(t, int64(15000), order.SubTotalAmount)
}

func TestHappyPathTransitions(t *testing.T) {
	order := newTestOrder(t)

	require.NoError(t, order.InitiatePayment("credit_card", "prov-1", "tok-1", testNow))
	assert.Equal(t, OrderStatusPaymentProcessing, order.Status)

	require.NoError(t, order.CompletePayment("txn-1", testNow))
	assert.Equal(t, OrderStatusPaymentCompleted, order.Status)
	require.NotNil(t, order.PaidAt)

	require.NoError(t, order.StartActivation(testNow))
	for i := range order.Items {
		require.NoError(t, order.MarkItemActivated(order.Items[i].ID, testNow))
	}
	require.NoError(t, order.Complete(200, testNow))
	assert.Equal(t, OrderStatusCompleted, order.Status)
	require.NotNil(t, order.SubscriptionID)
	assert.Equal(t, snowflake.ID(200), *order.SubscriptionID)
}

func TestTransitionsMayNotBeSkipped(t *testing.T) {
	order := newTestOrder(t)

	assert.ErrorIs(t, order.CompletePayment("txn-1", testNow), ErrInvalidTransition)
	assert.ErrorIs(t, order.StartActivation(testNow), ErrInvalidTransition)
	assert.ErrorIs(t, order.Complete(200, testNow), ErrInvalidTransition)
	assert.Equal(t, OrderStatusPending, order.Status)
}

func TestFailPaymentOnlyFromProcessing(t *testing.T) {
	order := newTestOrder(t)
	assert.ErrorIs(t, order.FailPayment("declined", testNow), ErrInvalidTransition)

	require.NoError(t, order.InitiatePayment("credit_card", "prov-1", "", testNow))
	require.NoError(t, order.FailPayment("declined", testNow))
	assert.Equal(t, OrderStatusPaymentFailed, order.Status)
	assert.Equal(t, "declined", order.FailureReason)
}

func TestCompleteRequiresAllItemsActivated(t *testing.T) {
	order := newTestOrder(t)
	require.NoError(t, order.InitiatePayment("credit_card", "prov-1", "", testNow))
	require.NoError(t, order.CompletePayment("txn-1", testNow))
	require.NoError(t, order.StartActivation(testNow))

	require.NoError(t, order.MarkItemActivated(order.Items[0].ID, testNow))
	require.NoError(t, order.MarkItemActivationFailed(order.Items[1].ID, "bucket unavailable", testNow))

	assert.ErrorIs(t, order.Complete(200, testNow), ErrItemsNotActivated)
	assert.Len(t, order.UnactivatedItems(), 1)
	assert.Equal(t, "bucket unavailable", order.Items[1].ActivationError)

	// retry clears the per-line error
	require.NoError(t, order.MarkItemActivated(order.Items[1].ID, testNow))
	assert.Empty(t, order.Items[1].ActivationError)
	require.NoError(t, order.Complete(200, testNow))
}

func TestCancelReachableBeforeCompletion(t *testing.T) {
	order := newTestOrder(t)
	require.NoError(t, order.Cancel("changed mind", testNow))
	assert.Equal(t, OrderStatusCancelled, order.Status)
	assert.ErrorIs(t, order.Cancel("again", testNow), ErrInvalidTransition)
}

func TestRefundFlow(t *testing.T) {
	order := newTestOrder(t)
	require.NoError(t, order.InitiatePayment("credit_card", "prov-1", "", testNow))
	require.NoError(t, order.CompletePayment("txn-1", testNow))
	require.NoError(t, order.StartActivation(testNow))
	for i := range order.Items {
		require.NoError(t, order.MarkItemActivated(order.Items[i].ID, testNow))
	}
	require.NoError(t, order.Complete(200, testNow))

	assert.ErrorIs(t, order.RequestRefund("", testNow), ErrRefundReasonRequired)
	require.NoError(t, order.RequestRefund("service unusable", testNow))
	assert.ErrorIs(t, order.Cancel("too late", testNow), ErrInvalidTransition)
	require.NoError(t, order.CompleteRefund(testNow))
	assert.Equal(t, OrderStatusRefunded, order.Status)
}

func TestProviderOrderIDSurvivesPaymentCompletion(t *testing.T) {
	order := newTestOrder(t)
	require.NoError(t, order.InitiatePayment("credit_card", "CONV-1", "", testNow))
	require.NoError(t, order.CompletePayment("TXN-9", testNow))

	// The provider conversation id is what refund webhooks look the order
	// up by; the charge reference lands in its own column.
	assert.Equal(t, "CONV-1", order.ProviderOrderID)
	assert.Equal(t, "TXN-9", order.TransactionID)

	require.NoError(t, order.StartActivation(testNow))
	for i := range order.Items {
		require.NoError(t, order.MarkItemActivated(order.Items[i].ID, testNow))
	}
	require.NoError(t, order.Complete(200, testNow))
	require.NoError(t, order.RequestRefund("charge disputed", testNow))
	require.NoError(t, order.CompleteRefund(testNow))
	assert.Equal(t, "CONV-1", order.ProviderOrderID)
}

func TestBillingAddressOnlyWhilePending(t *testing.T) {
	order := newTestOrder(t)
	addr := BillingAddress{Name: "Acme Ltd", Email: "billing@acme.example", City: "Istanbul", Country: "TR"}
	require.NoError(t, order.SetBillingAddress(addr, testNow))
	assert.Equal(t, "Acme Ltd", order.BillingName)

	require.NoError(t, order.InitiatePayment("credit_card", "prov-1", "", testNow))
	assert.ErrorIs(t, order.SetBillingAddress(addr, testNow), ErrInvalidTransition)
}
