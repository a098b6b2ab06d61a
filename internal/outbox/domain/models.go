// Package domain contains the outbox event model for the commerce pipeline.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingEvent captures outbox events for commerce workflows. Rows are
// written in the same transaction as the aggregate mutation that produced
// them; a relay publishes and marks them afterwards.
type BillingEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	TenantID    snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_billing_event_dedupe,priority:1"`
	EventType   string            `gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex:ux_billing_event_dedupe,priority:2"`
	Published   bool              `gorm:"not null;default:false"`
	PublishedAt *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

// Event is a domain event emitted by an aggregate mutation. Aggregates
// collect events and callers drain them into the outbox; nothing is
// dispatched in-process.
type Event struct {
	Type      string
	Payload   map[string]any
	DedupeKey string
}
