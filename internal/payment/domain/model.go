// Package domain defines the canonical payment events delivered by
// provider webhooks and their dedupe records. The pipeline never calls
// providers outbound; it only records the outcomes they push.
package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeRefunded         = "refunded"
)

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrUnknownOrder     = errors.New("unknown_order")
)

// PaymentEvent is the canonical event parsed by provider adapters.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	ProviderOrderID string
	TransactionID   string
	Type            string
	Amount          int64
	Currency        string
	FailureReason   string
	RefundReason    string
	OccurredAt      time.Time
	RawPayload      []byte
}

// EventRecord is the dedupe row for delivered webhooks. The unique index
// on provider plus event id makes redelivery a no-op.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	EventType       string         `gorm:"type:text;not null"`
	ProviderOrderID string         `gorm:"type:text;index"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `gorm:"not null"`
	ProcessedAt     *time.Time     `gorm:""`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }

// Adapter turns one provider's webhook payload into a canonical event.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// Service ingests provider webhooks at the pipeline boundary.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
