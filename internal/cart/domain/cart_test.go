package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/internal/billingcycle"
	catalogdomain "github.com/stockerhq/stocker/internal/catalog/domain"
	"github.com/stockerhq/stocker/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestCart(t *testing.T) *SubscriptionCart {
	t.Helper()
	cart, err := NewSubscriptionCart(1, 100, nil, billingcycle.Monthly, "TRY", testNow, 24*time.Hour)
	require.NoError(t, err)
	cart.DrainEvents()
	return cart
}

func moduleDef(id int64, code string, price int64) catalogdomain.ModuleDefinition {
	return catalogdomain.ModuleDefinition{
		ID:          snowflake.ID(id),
		Code:        code,
		Name:        code,
		PriceAmount: price,
		Currency:    "TRY",
	}
}

func TestCartTotalsWithCappedCoupon(t *testing.T) {
	cart := newTestCart(t)

	require.NoError(t, cart.AddModule(10, moduleDef(1, "CRM", 10000), 1, testNow))
	require.NoError(t, cart.AddModule(11, moduleDef(2, "HR", 5000), 1, testNow))

	assert.Equal(t, int64(15000), cart.SubTotal().Amount)

	// 10% of 150.00 is 15.00 but the coupon caps at 10.00
	require.NoError(t, cart.ApplyCoupon("WELCOME10", 10, money.MustNew(1000, "TRY"), testNow))
	assert.Equal(t, int64(1000), cart.DiscountAmount)
	assert.Equal(t, int64(14000), cart.Total().Amount)
}

func TestCouponDiscountFrozenAfterItemRemoval(t *testing.T) {
	cart := newTestCart(t)

	require.NoError(t, cart.AddModule(10, moduleDef(1, "CRM", 10000), 1, testNow))
	require.NoError(t, cart.AddModule(11, moduleDef(2, "HR", 5000), 1, testNow))
	require.NoError(t, cart.ApplyCoupon("SAVE10", 10, money.MustNew(100000, "TRY"), testNow))
	assert.Equal(t, int64(1500), cart.DiscountAmount)

	// removing an item does not re-cap the frozen discount
	require.NoError(t, cart.RemoveItem(10, testNow))
	assert.Equal(t, int64(1500), cart.DiscountAmount)
	assert.Equal(t, int64(3500), cart.Total().Amount)
}

func TestBundleSupersedesStandaloneModules(t *testing.T) {
	cart := newTestCart(t)
	require.NoError(t, cart.AddModule(10, moduleDef(1, "CRM", 2000), 1, testNow))

	bundle := catalogdomain.Bundle{
		ID:                  5,
		Code:                "SUITE",
		Name:                "Suite",
		PriceAmount:         5000,
		Currency:            "TRY",
		IncludedModuleCodes: datatypes.JSONSlice[string]{"CRM", "HR"},
	}
	require.NoError(t, cart.AddBundle(11, bundle, testNow))

	require.Len(t, cart.Items, 1)
	assert.Equal(t, CartItemTypeBundle, cart.Items[0].ItemType)
	assert.Equal(t, int64(5000), cart.SubTotal().Amount)

	// the covered module may not come back as a standalone line
	err := cart.AddModule(12, moduleDef(1, "CRM", 2000), 1, testNow)
	assert.ErrorIs(t, err, ErrModuleIncludedInBundle)
}

func TestSingleSlotLinesAreReplaced(t *testing.T) {
	cart := newTestCart(t)

	small := catalogdomain.StoragePlan{ID: 1, Code: "S10", Name: "10GB", PriceAmount: 500, Currency: "TRY", StorageGB: 10}
	big := catalogdomain.StoragePlan{ID: 2, Code: "S100", Name: "100GB", PriceAmount: 2000, Currency: "TRY", StorageGB: 100}

	require.NoError(t, cart.AddStoragePlan(10, small, testNow))
	require.NoError(t, cart.AddStoragePlan(11, big, testNow))

	require.Len(t, cart.Items, 1)
	assert.Equal(t, "S100", cart.Items[0].Code)
	assert.Equal(t, 100, cart.Items[0].StorageGB)
}

func TestAddUsersValidatesTierBounds(t *testing.T) {
	cart := newTestCart(t)
	tier := catalogdomain.UserTier{ID: 1, Code: "TEAM", Name: "Team", PricePerUserAmount: 300, Currency: "TRY", MinUsers: 5, MaxUsers: 50}

	err := cart.AddUsers(10, tier, 3, testNow)
	assert.ErrorIs(t, err, ErrUserCountOutOfRange)

	require.NoError(t, cart.AddUsers(10, tier, 10, testNow))
	assert.Equal(t, int64(3000), cart.Items[0].LineTotalAmount)
}

func TestAddOnRequiresModule(t *testing.T) {
	cart := newTestCart(t)
	addOn := catalogdomain.AddOn{ID: 1, Code: "CRM_REPORTS", Name: "Reports", PriceAmount: 700, Currency: "TRY", RequiredModuleCode: "CRM"}

	err := cart.AddAddOn(10, addOn, 1, testNow)
	assert.ErrorIs(t, err, ErrRequiredModuleMissing)

	require.NoError(t, cart.AddModule(11, moduleDef(2, "CRM", 2000), 1, testNow))
	require.NoError(t, cart.AddAddOn(12, addOn, 1, testNow))
}

func TestMutationsRejectedWhenNotActive(t *testing.T) {
	cart := newTestCart(t)
	require.NoError(t, cart.AddModule(10, moduleDef(1, "CRM", 2000), 1, testNow))
	require.NoError(t, cart.StartCheckout(testNow))

	err := cart.AddModule(11, moduleDef(2, "HR", 1000), 1, testNow)
	assert.ErrorIs(t, err, ErrCartNotActive)
	assert.Len(t, cart.Items, 1)
}

func TestMutationsRejectedAfterExpiry(t *testing.T) {
	cart := newTestCart(t)
	later := testNow.Add(25 * time.Hour)

	err := cart.AddModule(10, moduleDef(1, "CRM", 2000), 1, later)
	assert.ErrorIs(t, err, ErrCartExpired)
}

func TestCheckoutTransitions(t *testing.T) {
	cart := newTestCart(t)

	err := cart.StartCheckout(testNow)
	assert.ErrorIs(t, err, ErrCartEmpty)

	require.NoError(t, cart.AddModule(10, moduleDef(1, "CRM", 2000), 1, testNow))
	require.NoError(t, cart.StartCheckout(testNow))
	assert.Equal(t, CartStatusCheckoutPending, cart.Status)

	// Complete requires CheckoutPending; a second Complete must fail
	require.NoError(t, cart.Complete(testNow))
	assert.ErrorIs(t, cart.Complete(testNow), ErrInvalidTransition)
}

func TestFailCheckoutReturnsToActive(t *testing.T) {
	cart := newTestCart(t)
	require.NoError(t, cart.AddModule(10, moduleDef(1, "CRM", 2000), 1, testNow))
	require.NoError(t, cart.StartCheckout(testNow))
	require.NoError(t, cart.FailCheckout(testNow))

	assert.Equal(t, CartStatusActive, cart.Status)
	require.NoError(t, cart.AddModule(11, moduleDef(2, "HR", 1000), 1, testNow))
}

func TestExpireAndAbandonAreTerminal(t *testing.T) {
	cart := newTestCart(t)
	require.NoError(t, cart.Expire(testNow.Add(25*time.Hour)))
	assert.Equal(t, CartStatusExpired, cart.Status)
	assert.ErrorIs(t, cart.Abandon(testNow), ErrInvalidTransition)

	other := newTestCart(t)
	require.NoError(t, other.Abandon(testNow))
	assert.ErrorIs(t, other.Expire(testNow), ErrInvalidTransition)
}

func TestExtendExpiration(t *testing.T) {
	cart := newTestCart(t)

	err := cart.ExtendExpiration(testNow.Add(time.Hour), testNow)
	assert.ErrorIs(t, err, ErrInvalidExpiration)

	until := testNow.Add(48 * time.Hour)
	require.NoError(t, cart.ExtendExpiration(until, testNow))
	assert.Equal(t, until, cart.ExpiresAt)
}

func TestDrainEvents(t *testing.T) {
	cart := newTestCart(t)
	require.NoError(t, cart.AddModule(10, moduleDef(1, "CRM", 2000), 1, testNow))

	events := cart.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "cart.item_added", events[0].Type)
	assert.Empty(t, cart.DrainEvents())
}
