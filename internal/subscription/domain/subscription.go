package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/stockerhq/stocker/internal/billingcycle"
	outboxdomain "github.com/stockerhq/stocker/internal/outbox/domain"
	"github.com/stockerhq/stocker/pkg/money"
)

// NewSubscription creates a pending subscription. Period boundaries start
// at now and advance only through Renew.
func NewSubscription(id snowflake.ID, number string, tenantID snowflake.ID, packageID *snowflake.ID, cycle billingcycle.Cycle, price money.Money, userCount int64, now time.Time) (*Subscription, error) {
	if !cycle.Valid() {
		return nil, billingcycle.ErrInvalidCycle
	}
	if userCount < 1 {
		return nil, ErrInvalidUserCount
	}

	sub := &Subscription{
		ID:                 id,
		SubscriptionNumber: number,
		TenantID:           tenantID,
		PackageID:          packageID,
		Status:             SubscriptionStatusPending,
		BillingCycle:       cycle,
		PriceAmount:        price.Amount,
		Currency:           price.Currency,
		StartDate:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   cycle.Advance(now),
		AutoRenew:          true,
		UserCount:          userCount,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	sub.recordEvent("subscription.created", map[string]any{
		"subscription_id":     id.String(),
		"subscription_number": number,
		"tenant_id":           tenantID.String(),
	})
	return sub, nil
}

// StartTrial opens the trial window on a pending subscription.
func (s *Subscription) StartTrial(trialDays int, now time.Time) error {
	if s.Status != SubscriptionStatusPending {
		return ErrInvalidTransition
	}
	if trialDays <= 0 {
		return ErrInvalidTrialDays
	}
	trialEnd := now.AddDate(0, 0, trialDays)
	s.Status = SubscriptionStatusTrial
	s.TrialEndDate = &trialEnd
	s.touch(now)
	s.recordEvent("subscription.trial_started", map[string]any{
		"subscription_id": s.ID.String(),
		"trial_end_date":  trialEnd.Format(time.RFC3339),
	})
	return nil
}

// Activate moves a pending or trialing subscription into Active.
func (s *Subscription) Activate(now time.Time) error {
	if s.Status != SubscriptionStatusPending && s.Status != SubscriptionStatusTrial {
		return ErrInvalidTransition
	}
	s.Status = SubscriptionStatusActive
	s.touch(now)
	s.recordEvent("subscription.activated", map[string]any{"subscription_id": s.ID.String()})
	return nil
}

// MarkAsPastDue flags a missed renewal charge.
func (s *Subscription) MarkAsPastDue(now time.Time) error {
	if s.Status != SubscriptionStatusActive {
		return ErrInvalidTransition
	}
	s.Status = SubscriptionStatusPastDue
	s.touch(now)
	s.recordEvent("subscription.past_due", map[string]any{"subscription_id": s.ID.String()})
	return nil
}

// RecoverFromPastDue returns a past-due subscription to Active once the
// outstanding invoice settles.
func (s *Subscription) RecoverFromPastDue(now time.Time) error {
	if s.Status != SubscriptionStatusPastDue {
		return ErrInvalidTransition
	}
	s.Status = SubscriptionStatusActive
	s.touch(now)
	s.recordEvent("subscription.recovered", map[string]any{"subscription_id": s.ID.String()})
	return nil
}

// Suspend blocks access without ending the agreement.
func (s *Subscription) Suspend(reason string, now time.Time) error {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusPastDue {
		return ErrInvalidTransition
	}
	s.Status = SubscriptionStatusSuspended
	s.SuspendReason = reason
	s.touch(now)
	s.recordEvent("subscription.suspended", map[string]any{
		"subscription_id": s.ID.String(),
		"reason":          reason,
	})
	return nil
}

// Reactivate lifts a suspension.
func (s *Subscription) Reactivate(now time.Time) error {
	if s.Status != SubscriptionStatusSuspended {
		return ErrInvalidTransition
	}
	s.Status = SubscriptionStatusActive
	s.SuspendReason = ""
	s.touch(now)
	s.recordEvent("subscription.reactivated", map[string]any{"subscription_id": s.ID.String()})
	return nil
}

// Cancel ends the agreement from any non-terminal state.
func (s *Subscription) Cancel(reason string, now time.Time) error {
	switch s.Status {
	case SubscriptionStatusCancelled, SubscriptionStatusExpired:
		return ErrInvalidTransition
	}
	cancelledAt := now
	s.Status = SubscriptionStatusCancelled
	s.CancelledAt = &cancelledAt
	s.CancelReason = reason
	s.AutoRenew = false
	s.touch(now)
	s.recordEvent("subscription.cancelled", map[string]any{
		"subscription_id": s.ID.String(),
		"reason":          reason,
	})
	return nil
}

// Expire ends a subscription whose period lapsed without renewal.
func (s *Subscription) Expire(now time.Time) error {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusPastDue {
		return ErrInvalidTransition
	}
	s.Status = SubscriptionStatusExpired
	s.AutoRenew = false
	s.touch(now)
	s.recordEvent("subscription.expired", map[string]any{"subscription_id": s.ID.String()})
	return nil
}

// IsExpired reports whether the current period has lapsed. Pure predicate
// for the scheduler; the entity never self-transitions.
func (s *Subscription) IsExpired(now time.Time) bool {
	return !now.Before(s.CurrentPeriodEnd)
}

// IsTrialOver reports whether the trial window has closed.
func (s *Subscription) IsTrialOver(now time.Time) bool {
	return s.Status == SubscriptionStatusTrial && s.TrialEndDate != nil && !now.Before(*s.TrialEndDate)
}

// Renew rolls the billing period forward one cycle. This method is the
// sole authority for period boundaries; nothing else may compute them.
func (s *Subscription) Renew(now time.Time) error {
	if s.Status != SubscriptionStatusActive {
		return ErrInvalidTransition
	}
	s.CurrentPeriodStart = s.CurrentPeriodEnd
	s.CurrentPeriodEnd = s.BillingCycle.Advance(s.CurrentPeriodStart)
	s.touch(now)
	s.recordEvent("subscription.renewed", map[string]any{
		"subscription_id":      s.ID.String(),
		"current_period_start": s.CurrentPeriodStart.Format(time.RFC3339),
		"current_period_end":   s.CurrentPeriodEnd.Format(time.RFC3339),
	})
	return nil
}

// UpdateBillingCycle changes the cycle and recomputes the period end from
// the unchanged period start.
func (s *Subscription) UpdateBillingCycle(cycle billingcycle.Cycle, now time.Time) error {
	if !cycle.Valid() {
		return billingcycle.ErrInvalidCycle
	}
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrial {
		return ErrInvalidTransition
	}
	s.BillingCycle = cycle
	s.CurrentPeriodEnd = cycle.Advance(s.CurrentPeriodStart)
	s.touch(now)
	return nil
}

// ChangePackage swaps the catalog package backing the subscription.
func (s *Subscription) ChangePackage(packageID snowflake.ID, price money.Money, now time.Time) error {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrial {
		return ErrInvalidTransition
	}
	if price.Currency != s.Currency {
		return money.ErrCurrencyMismatch
	}
	s.PackageID = &packageID
	s.PriceAmount = price.Amount
	s.touch(now)
	s.recordEvent("subscription.package_changed", map[string]any{
		"subscription_id": s.ID.String(),
		"package_id":      packageID.String(),
	})
	return nil
}

// UpdateUserCount adjusts the seat count.
func (s *Subscription) UpdateUserCount(userCount int64, now time.Time) error {
	if userCount < 1 {
		return ErrInvalidUserCount
	}
	s.UserCount = userCount
	s.touch(now)
	return nil
}

// AddModule grants a module. Duplicate codes are rejected.
func (s *Subscription) AddModule(moduleID snowflake.ID, code, name string, price money.Money, trialDays int, now time.Time) error {
	switch s.Status {
	case SubscriptionStatusCancelled, SubscriptionStatusExpired:
		return ErrInvalidTransition
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ErrInvalidModuleCode
	}
	if s.hasModule(code) {
		return ErrModuleAlreadyGranted
	}
	s.Modules = append(s.Modules, SubscriptionModule{
		ID:             moduleID,
		SubscriptionID: s.ID,
		ModuleCode:     code,
		Name:           name,
		PriceAmount:    price.Amount,
		Currency:       price.Currency,
		TrialDays:      trialDays,
		AddedAt:        now,
	})
	if s.IsCustomPackage() && !slices.Contains(s.ModuleCodes, code) {
		s.ModuleCodes = append(s.ModuleCodes, code)
	}
	s.touch(now)
	s.recordEvent("subscription.module_added", map[string]any{
		"subscription_id": s.ID.String(),
		"module_code":     code,
	})
	return nil
}

// RemoveModule revokes a module grant.
func (s *Subscription) RemoveModule(code string, now time.Time) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	idx := slices.IndexFunc(s.Modules, func(m SubscriptionModule) bool {
		return m.ModuleCode == code
	})
	if idx < 0 {
		return ErrModuleNotFound
	}
	s.Modules = slices.Delete(s.Modules, idx, idx+1)
	s.ModuleCodes = slices.DeleteFunc(s.ModuleCodes, func(c string) bool { return c == code })
	s.touch(now)
	s.recordEvent("subscription.module_removed", map[string]any{
		"subscription_id": s.ID.String(),
		"module_code":     code,
	})
	return nil
}

// RecordUsage appends one metered usage record for the current period.
func (s *Subscription) RecordUsage(usageID snowflake.ID, metricCode string, quantity int64, now time.Time) error {
	if s.Status != SubscriptionStatusTrial && s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusPastDue {
		return ErrInvalidTransition
	}
	metricCode = strings.ToLower(strings.TrimSpace(metricCode))
	if metricCode == "" || quantity <= 0 {
		return ErrInvalidUsage
	}
	s.Usages = append(s.Usages, SubscriptionUsage{
		ID:             usageID,
		SubscriptionID: s.ID,
		MetricCode:     metricCode,
		Quantity:       quantity,
		PeriodStart:    s.CurrentPeriodStart,
		PeriodEnd:      s.CurrentPeriodEnd,
		RecordedAt:     now,
	})
	s.touch(now)
	return nil
}

// SetStorageBucket derives a stable bucket name from the tenant handle and
// records the quota. The name is slugged for object-store compatibility.
func (s *Subscription) SetStorageBucket(tenantHandle string, quotaGB int, now time.Time) error {
	if quotaGB < 0 {
		return ErrInvalidStorageQuota
	}
	name := slug.Make(tenantHandle)
	if name == "" {
		name = s.TenantID.String()
	}
	s.StorageBucketName = name
	s.StorageQuotaGB = quotaGB
	s.touch(now)
	return nil
}

// UpdateStorageUsage records a fresh measurement from the object store.
func (s *Subscription) UpdateStorageUsage(usedBytes int64, checkedAt time.Time) error {
	if usedBytes < 0 {
		return ErrInvalidStorageUsage
	}
	s.StorageUsedBytes = usedBytes
	s.StorageLastCheckedAt = &checkedAt
	s.touch(checkedAt)
	return nil
}

// UpdateStorageQuota resizes the quota without touching usage.
func (s *Subscription) UpdateStorageQuota(quotaGB int, now time.Time) error {
	if quotaGB < 0 {
		return ErrInvalidStorageQuota
	}
	s.StorageQuotaGB = quotaGB
	s.touch(now)
	return nil
}

// GetStorageUsagePercentage returns used bytes over quota as a percentage.
// Zero quota reads as zero usage rather than a division error.
func (s *Subscription) GetStorageUsagePercentage() float64 {
	if s.StorageQuotaGB <= 0 {
		return 0
	}
	return float64(s.StorageUsedBytes) / float64(int64(s.StorageQuotaGB)*bytesPerGB) * 100
}

// IsStorageQuotaExceeded reports whether usage has reached the quota.
// Pure query; enforcement is an external policy.
func (s *Subscription) IsStorageQuotaExceeded() bool {
	if s.StorageQuotaGB <= 0 {
		return false
	}
	return s.StorageUsedBytes >= int64(s.StorageQuotaGB)*bytesPerGB
}

// DrainEvents returns and clears the events recorded since the last drain.
func (s *Subscription) DrainEvents() []outboxdomain.Event {
	events := s.pendingEvents
	s.pendingEvents = nil
	return events
}

func (s *Subscription) hasModule(code string) bool {
	return slices.ContainsFunc(s.Modules, func(m SubscriptionModule) bool {
		return m.ModuleCode == code
	})
}

func (s *Subscription) touch(now time.Time) { s.UpdatedAt = now }

func (s *Subscription) recordEvent(eventType string, payload map[string]any) {
	s.pendingEvents = append(s.pendingEvents, outboxdomain.Event{
		Type:    eventType,
		Payload: payload,
	})
}
