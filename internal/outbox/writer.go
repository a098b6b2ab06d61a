// Package outbox persists aggregate-emitted domain events so the owning
// transaction decides delivery.
package outbox

import (
	"context"

	"github.com/bwmarrin/snowflake"
	outboxdomain "github.com/stockerhq/stocker/internal/outbox/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Writer struct {
	genID *snowflake.Node
}

func NewWriter(genID *snowflake.Node) *Writer {
	return &Writer{genID: genID}
}

// Append writes the drained events inside the caller's transaction.
func (w *Writer) Append(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, events []outboxdomain.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]outboxdomain.BillingEvent, 0, len(events))
	for _, event := range events {
		row := outboxdomain.BillingEvent{
			ID:        w.genID.Generate(),
			TenantID:  tenantID,
			EventType: event.Type,
			Payload:   event.Payload,
		}
		if event.DedupeKey != "" {
			key := event.DedupeKey
			row.DedupeKey = &key
		}
		rows = append(rows, row)
	}

	return tx.WithContext(ctx).Create(&rows).Error
}

var Module = fx.Module("outbox",
	fx.Provide(NewWriter),
)
