// Package scheduler runs the periodic maintenance jobs of the billing
// pipeline: expiring stale carts, promoting ended trials, renewing due
// subscriptions and flagging overdue invoices.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	"github.com/stockerhq/stocker/internal/clock"
	invoicedomain "github.com/stockerhq/stocker/internal/invoice/domain"
	"github.com/stockerhq/stocker/internal/lock"
	obsmetrics "github.com/stockerhq/stocker/internal/observability/metrics"
	subscriptiondomain "github.com/stockerhq/stocker/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const leaderLockKey = "stocker:scheduler:leader"

var ErrInvalidConfig = errors.New("scheduler dependencies are not configured")

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	CartSvc         cartdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service

	Locker *lock.Locker `optional:"true"`
	Config Config       `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	locker          *lock.Locker
	cartSvc         cartdomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.CartSvc == nil || p.SubscriptionSvc == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		locker:          p.Locker,
		cartSvc:         p.CartSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
	}, nil
}

// runJob wraps one sweep with a timeout and metrics. Sweeps are driven to
// exhaustion: the service sweep fn is called until it reports an empty batch.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	fn func(ctx context.Context, limit int) (int, error),
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	total := 0
	var jobErr error
	for {
		if ctx.Err() != nil {
			jobErr = errors.Join(jobErr, ctx.Err())
			break
		}
		processed, err := fn(ctx, s.cfg.BatchSize)
		total += processed
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			break
		}
		if processed == 0 {
			break
		}
	}
	schedMetrics.ObserveJobDuration(name, time.Since(start))

	log := s.log.With(zap.String("job", name), zap.Int("processed", total))
	if jobErr == nil {
		if total > 0 {
			log.Info("job finished")
		}
		return nil
	}

	if errors.Is(jobErr, context.DeadlineExceeded) || errors.Is(jobErr, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(jobErr))
		return nil
	}

	schedMetrics.IncJobError(name, jobErr)
	log.Warn("job failed", zap.Error(jobErr))
	return fmt.Errorf("%s: %w", name, jobErr)
}

// RunOnce executes every enabled job a single time. Errors are joined so
// one failing job never starves the rest.
func (s *Scheduler) RunOnce(parent context.Context) error {
	token, acquired, lockErr := s.locker.TryLock(parent, leaderLockKey, s.cfg.LeaderTTL)
	if lockErr != nil {
		s.log.Warn("leader lock unavailable, running anyway", zap.Error(lockErr))
	} else if !acquired {
		s.log.Debug("another node holds the scheduler lock")
		return nil
	}
	if token != "" {
		defer func() {
			if err := s.locker.Release(parent, leaderLockKey, token); err != nil {
				s.log.Warn("failed to release leader lock", zap.Error(err))
			}
		}()
	}

	jobs := []struct {
		Name string
		Run  func(ctx context.Context, limit int) (int, error)
	}{
		{"expire_carts", s.cartSvc.ExpireStale},
		{"promote_trials", s.subscriptionSvc.PromoteEndedTrials},
		{"renew_subscriptions", s.subscriptionSvc.RenewDue},
		{"mark_overdue_invoices", s.invoiceSvc.MarkOverdue},
	}

	var err error
	for _, job := range jobs {
		if !s.cfg.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
