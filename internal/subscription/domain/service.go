package domain

import (
	"context"
	"errors"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrInvalidTrialDays     = errors.New("invalid_trial_days")
	ErrInvalidUserCount     = errors.New("invalid_user_count")
	ErrInvalidModuleCode    = errors.New("invalid_module_code")
	ErrModuleAlreadyGranted = errors.New("module_already_granted")
	ErrModuleNotFound       = errors.New("subscription_module_not_found")
	ErrInvalidUsage         = errors.New("invalid_usage")
	ErrInvalidStorageQuota  = errors.New("invalid_storage_quota")
	ErrInvalidStorageUsage  = errors.New("invalid_storage_usage")
)

type CreateSubscriptionRequest struct {
	PackageCode  string `json:"package_code,omitempty"`
	BillingCycle string `json:"billing_cycle"`
	UserCount    int64  `json:"user_count,omitempty"`
	StartTrial   bool   `json:"start_trial,omitempty"`
}

type ChangePackageRequest struct {
	SubscriptionID string `json:"-"`
	PackageCode    string `json:"package_code"`
}

type ModuleRequest struct {
	SubscriptionID string `json:"-"`
	ModuleCode     string `json:"module_code"`
}

type RecordUsageRequest struct {
	SubscriptionID string `json:"-"`
	MetricCode     string `json:"metric_code"`
	Quantity       int64  `json:"quantity"`
}

type StorageBucketRequest struct {
	SubscriptionID string `json:"-"`
	TenantHandle   string `json:"tenant_handle"`
	QuotaGB        int    `json:"quota_gb"`
}

type StorageUsageRequest struct {
	SubscriptionID string `json:"-"`
	UsedBytes      int64  `json:"used_bytes"`
}

type StorageStatus struct {
	BucketName      string  `json:"bucket_name"`
	QuotaGB         int     `json:"quota_gb"`
	UsedBytes       int64   `json:"used_bytes"`
	UsagePercentage float64 `json:"usage_percentage"`
	QuotaExceeded   bool    `json:"quota_exceeded"`
}

//go:generate mockgen -source=service.go -destination=../mocks/service_mock.go -package=mocks

// Service manages subscription lifecycle, entitlements and storage.
type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	GetByID(ctx context.Context, subscriptionID string) (*Subscription, error)
	GetActive(ctx context.Context) (*Subscription, error)
	Activate(ctx context.Context, subscriptionID string) (*Subscription, error)
	Suspend(ctx context.Context, subscriptionID, reason string) (*Subscription, error)
	Reactivate(ctx context.Context, subscriptionID string) (*Subscription, error)
	Cancel(ctx context.Context, subscriptionID, reason string) (*Subscription, error)
	MarkAsPastDue(ctx context.Context, subscriptionID string) (*Subscription, error)
	Expire(ctx context.Context, subscriptionID string) (*Subscription, error)
	Renew(ctx context.Context, subscriptionID string) (*Subscription, error)
	UpdateBillingCycle(ctx context.Context, subscriptionID, cycle string) (*Subscription, error)
	ChangePackage(ctx context.Context, req ChangePackageRequest) (*Subscription, error)
	AddModule(ctx context.Context, req ModuleRequest) (*Subscription, error)
	RemoveModule(ctx context.Context, req ModuleRequest) (*Subscription, error)
	RecordUsage(ctx context.Context, req RecordUsageRequest) (*Subscription, error)
	SetStorageBucket(ctx context.Context, req StorageBucketRequest) (*Subscription, error)
	UpdateStorageUsage(ctx context.Context, req StorageUsageRequest) (*Subscription, error)
	UpdateStorageQuota(ctx context.Context, subscriptionID string, quotaGB int) (*Subscription, error)
	GetStorageStatus(ctx context.Context, subscriptionID string) (*StorageStatus, error)
	RenewDue(ctx context.Context, limit int) (int, error)
	PromoteEndedTrials(ctx context.Context, limit int) (int, error)
}
