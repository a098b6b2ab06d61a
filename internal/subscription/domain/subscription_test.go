package domain

import (
	"testing"
	"time"

	"github.com/stockerhq/stocker/internal/billingcycle"
	"github.com/stockerhq/stocker/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC)

func newTestSubscription(t *testing.T, cycle billingcycle.Cycle) *Subscription {
	t.Helper()
	sub, err := NewSubscription(1, "SUB-TEST", 100, nil, cycle, money.MustNew(10000, "TRY"), 1, testNow)
	require.NoError(t, err)
	sub.DrainEvents()
	return sub
}

func TestMonthlyRenewalDates(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	require.NoError(t, sub.Activate(testNow))

	sub.CurrentPeriodStart = time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	sub.CurrentPeriodEnd = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sub.Renew(testNow))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodStart)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
}

func TestRenewalPerCycle(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		cycle billingcycle.Cycle
		end   time.Time
	}{
		{billingcycle.Monthly, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{billingcycle.Quarterly, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{billingcycle.SemiAnnual, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		{billingcycle.Annual, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(string(tc.cycle), func(t *testing.T) {
			sub := newTestSubscription(t, tc.cycle)
			require.NoError(t, sub.Activate(testNow))
			sub.CurrentPeriodStart = start.AddDate(0, -1, 0)
			sub.CurrentPeriodEnd = start

			require.NoError(t, sub.Renew(testNow))
			assert.Equal(t, start, sub.CurrentPeriodStart)
			assert.Equal(t, tc.end, sub.CurrentPeriodEnd)
		})
	}
}

func TestActivateOnActiveFailsUnchanged(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	require.NoError(t, sub.Activate(testNow))

	before := *sub
	err := sub.Activate(testNow.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before.Status, sub.Status)
	assert.Equal(t, before.UpdatedAt, sub.UpdatedAt)
	assert.Equal(t, before.CurrentPeriodEnd, sub.CurrentPeriodEnd)
}

func TestTrialLifecycle(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)

	assert.ErrorIs(t, sub.StartTrial(0, testNow), ErrInvalidTrialDays)
	require.NoError(t, sub.StartTrial(14, testNow))
	assert.Equal(t, SubscriptionStatusTrial, sub.Status)
	require.NotNil(t, sub.TrialEndDate)
	assert.Equal(t, testNow.AddDate(0, 0, 14), *sub.TrialEndDate)

	assert.False(t, sub.IsTrialOver(testNow.AddDate(0, 0, 13)))
	assert.True(t, sub.IsTrialOver(testNow.AddDate(0, 0, 14)))

	require.NoError(t, sub.Activate(testNow.AddDate(0, 0, 14)))
	assert.Equal(t, SubscriptionStatusActive, sub.Status)
}

func TestSuspendReactivate(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	assert.ErrorIs(t, sub.Suspend("fraud", testNow), ErrInvalidTransition)

	require.NoError(t, sub.Activate(testNow))
	require.NoError(t, sub.Suspend("fraud review", testNow))
	assert.Equal(t, SubscriptionStatusSuspended, sub.Status)
	assert.ErrorIs(t, sub.Renew(testNow), ErrInvalidTransition)

	require.NoError(t, sub.Reactivate(testNow))
	assert.Equal(t, SubscriptionStatusActive, sub.Status)
	assert.Empty(t, sub.SuspendReason)
}

func TestPastDueRecovery(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	require.NoError(t, sub.Activate(testNow))
	require.NoError(t, sub.MarkAsPastDue(testNow))
	assert.Equal(t, SubscriptionStatusPastDue, sub.Status)

	require.NoError(t, sub.RecoverFromPastDue(testNow))
	assert.Equal(t, SubscriptionStatusActive, sub.Status)
}

func TestCancelIsTerminal(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	require.NoError(t, sub.Activate(testNow))
	require.NoError(t, sub.Cancel("downgrade", testNow))

	assert.Equal(t, SubscriptionStatusCancelled, sub.Status)
	assert.False(t, sub.AutoRenew)
	require.NotNil(t, sub.CancelledAt)
	assert.ErrorIs(t, sub.Cancel("again", testNow), ErrInvalidTransition)
	assert.ErrorIs(t, sub.Activate(testNow), ErrInvalidTransition)
}

func TestExpireOnlyFromActiveOrPastDue(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	assert.ErrorIs(t, sub.Expire(testNow), ErrInvalidTransition)

	require.NoError(t, sub.Activate(testNow))
	require.NoError(t, sub.Expire(testNow))
	assert.Equal(t, SubscriptionStatusExpired, sub.Status)
}

func TestUpdateBillingCycleRecomputesPeriodEnd(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	require.NoError(t, sub.Activate(testNow))

	require.NoError(t, sub.UpdateBillingCycle(billingcycle.Annual, testNow))
	assert.Equal(t, sub.CurrentPeriodStart.AddDate(1, 0, 0), sub.CurrentPeriodEnd)
}

func TestModuleGrants(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	require.NoError(t, sub.Activate(testNow))

	price := money.MustNew(2000, "TRY")
	require.NoError(t, sub.AddModule(10, "crm", "CRM", price, 0, testNow))
	assert.ErrorIs(t, sub.AddModule(11, "CRM", "CRM", price, 0, testNow), ErrModuleAlreadyGranted)

	// custom package mirrors grants into the code list
	assert.Equal(t, []string{"CRM"}, []string(sub.ModuleCodes))
	assert.True(t, sub.IsCustomPackage())

	require.NoError(t, sub.RemoveModule("crm", testNow))
	assert.Empty(t, sub.Modules)
	assert.Empty(t, sub.ModuleCodes)
	assert.ErrorIs(t, sub.RemoveModule("crm", testNow), ErrModuleNotFound)
}

func TestRecordUsage(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	assert.ErrorIs(t, sub.RecordUsage(20, "api_calls", 5, testNow), ErrInvalidTransition)

	require.NoError(t, sub.Activate(testNow))
	assert.ErrorIs(t, sub.RecordUsage(20, "api_calls", 0, testNow), ErrInvalidUsage)
	require.NoError(t, sub.RecordUsage(20, "API_Calls", 5, testNow))

	require.Len(t, sub.Usages, 1)
	assert.Equal(t, "api_calls", sub.Usages[0].MetricCode)
	assert.Equal(t, sub.CurrentPeriodStart, sub.Usages[0].PeriodStart)
	assert.Equal(t, sub.CurrentPeriodEnd, sub.Usages[0].PeriodEnd)
}

func TestStorageQuotaMath(t *testing.T) {
	sub := newTestSubscription(t, billingcycle.Monthly)
	require.NoError(t, sub.SetStorageBucket("Acme Corp!", 10, testNow))
	assert.Equal(t, "acme-corp", sub.StorageBucketName)

	require.NoError(t, sub.UpdateStorageUsage(5*(int64(1)<<30), testNow))
	assert.InDelta(t, 50.0, sub.GetStorageUsagePercentage(), 0.001)
	assert.False(t, sub.IsStorageQuotaExceeded())

	require.NoError(t, sub.UpdateStorageUsage(10*(int64(1)<<30), testNow))
	assert.True(t, sub.IsStorageQuotaExceeded())

	// zero quota reads as zero usage
	require.NoError(t, sub.UpdateStorageQuota(0, testNow))
	assert.Zero(t, sub.GetStorageUsagePercentage())
	assert.False(t, sub.IsStorageQuotaExceeded())
}

func TestUserCountMustBePositive(t *testing.T) {
	_, err := NewSubscription(1, "SUB-TEST", 100, nil, billingcycle.Monthly, money.MustNew(10000, "TRY"), 0, testNow)
	assert.ErrorIs(t, err, ErrInvalidUserCount)

	sub := newTestSubscription(t, billingcycle.Monthly)
	assert.ErrorIs(t, sub.UpdateUserCount(0, testNow), ErrInvalidUserCount)
	require.NoError(t, sub.UpdateUserCount(25, testNow))
	assert.Equal(t, int64(25), sub.UserCount)
}
