package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	invoicedomain "github.com/stockerhq/stocker/internal/invoice/domain"
	subscriptiondomain "github.com/stockerhq/stocker/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

type fakeCartSvc struct {
	cartdomain.Service
	batches []int
	calls   int
	err     error
}

func (f *fakeCartSvc) ExpireStale(_ context.Context, _ int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

type fakeSubscriptionSvc struct {
	subscriptiondomain.Service
	renewCalls   int
	promoteCalls int
	renewErr     error
}

func (f *fakeSubscriptionSvc) RenewDue(_ context.Context, _ int) (int, error) {
	f.renewCalls++
	return 0, f.renewErr
}

func (f *fakeSubscriptionSvc) PromoteEndedTrials(_ context.Context, _ int) (int, error) {
	f.promoteCalls++
	return 0, nil
}

type fakeInvoiceSvc struct {
	invoicedomain.Service
	calls int
}

func (f *fakeInvoiceSvc) MarkOverdue(_ context.Context, _ int) (int, error) {
	f.calls++
	return 0, nil
}

func newTestScheduler(t *testing.T, cfg Config, cart *fakeCartSvc, sub *fakeSubscriptionSvc, inv *fakeInvoiceSvc) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:             zap.NewNop(),
		Clock:           &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
		CartSvc:         cart,
		SubscriptionSvc: sub,
		InvoiceSvc:      inv,
		Config:          cfg,
	})
	require.NoError(t, err)
	return sched
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	cart := &fakeCartSvc{}
	sub := &fakeSubscriptionSvc{}
	inv := &fakeInvoiceSvc{}
	sched := newTestScheduler(t, Config{}, cart, sub, inv)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, cart.calls)
	assert.Equal(t, 1, sub.renewCalls)
	assert.Equal(t, 1, sub.promoteCalls)
	assert.Equal(t, 1, inv.calls)
}

func TestRunJobSweepsUntilEmptyBatch(t *testing.T) {
	cart := &fakeCartSvc{batches: []int{50, 50, 12}}
	sched := newTestScheduler(t, Config{}, cart, &fakeSubscriptionSvc{}, &fakeInvoiceSvc{})

	require.NoError(t, sched.RunOnce(context.Background()))
	// three full-or-partial batches plus the terminating empty one
	assert.Equal(t, 4, cart.calls)
}

func TestRunOnceJoinsErrorsAcrossJobs(t *testing.T) {
	cart := &fakeCartSvc{err: errors.New("cart sweep broken")}
	sub := &fakeSubscriptionSvc{renewErr: errors.New("renewal broken")}
	inv := &fakeInvoiceSvc{}
	sched := newTestScheduler(t, Config{}, cart, sub, inv)

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expire_carts")
	assert.Contains(t, err.Error(), "renew_subscriptions")
	// failing jobs never block the remaining ones
	assert.Equal(t, 1, sub.promoteCalls)
	assert.Equal(t, 1, inv.calls)
}

func TestEnabledJobsFilter(t *testing.T) {
	cart := &fakeCartSvc{}
	sub := &fakeSubscriptionSvc{}
	inv := &fakeInvoiceSvc{}
	sched := newTestScheduler(t, Config{EnabledJobs: []string{"expire_carts"}}, cart, sub, inv)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, cart.calls)
	assert.Zero(t, sub.renewCalls)
	assert.Zero(t, sub.promoteCalls)
	assert.Zero(t, inv.calls)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, 2*time.Minute, cfg.LeaderTTL)

	assert.True(t, cfg.isJobEnabled("anything"))
	cfg.EnabledJobs = []string{"Expire_Carts"}
	assert.True(t, cfg.isJobEnabled("expire_carts"))
	assert.False(t, cfg.isJobEnabled("renew_subscriptions"))
}
