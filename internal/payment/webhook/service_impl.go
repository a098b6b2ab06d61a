// Package webhook ingests payment provider callbacks and drives the
// order, subscription and invoice pipeline from their outcomes.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/stockerhq/stocker/internal/clock"
	invoicedomain "github.com/stockerhq/stocker/internal/invoice/domain"
	orderdomain "github.com/stockerhq/stocker/internal/order/domain"
	"github.com/stockerhq/stocker/internal/payment/adapters"
	paymentdomain "github.com/stockerhq/stocker/internal/payment/domain"
	"github.com/stockerhq/stocker/internal/tenantctx"
	"github.com/stockerhq/stocker/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	registry   *adapters.Registry
	orderSvc   orderdomain.Service
	invoiceSvc invoicedomain.Service
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Registry   *adapters.Registry
	OrderSvc   orderdomain.Service
	InvoiceSvc invoicedomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("payment.webhook"),

		genID:      p.GenID,
		clock:      p.Clock,
		registry:   p.Registry,
		orderSvc:   p.OrderSvc,
		invoiceSvc: p.InvoiceSvc,
	}
}

// IngestWebhook verifies, dedupes and applies one provider notification.
// Redelivered events are acknowledged without effect.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	adapter, ok := s.registry.Get(provider)
	if !ok {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	fresh, err := s.recordEvent(ctx, event)
	if err != nil {
		return err
	}
	if !fresh {
		s.log.Debug("duplicate webhook delivery ignored",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}

	if err := s.apply(ctx, event); err != nil {
		return err
	}
	return s.markProcessed(ctx, event)
}

// recordEvent inserts the dedupe row. Returns false when the event was
// already delivered.
func (s *Service) recordEvent(ctx context.Context, event *paymentdomain.PaymentEvent) (bool, error) {
	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		ProviderOrderID: event.ProviderOrderID,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) markProcessed(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).
		Model(&paymentdomain.EventRecord{}).
		Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		Update("processed_at", now).Error
}

func (s *Service) apply(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	order, err := s.orderSvc.GetByProviderOrderID(ctx, event.ProviderOrderID)
	if err != nil {
		s.log.Warn("webhook for unknown order",
			zap.String("provider", event.Provider),
			zap.String("provider_order_id", event.ProviderOrderID),
		)
		return paymentdomain.ErrUnknownOrder
	}

	// webhooks carry no tenant header; scope from the resolved order
	ctx = tenantctx.WithTenantID(ctx, order.TenantID)

	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		return s.applyPaymentSucceeded(ctx, order, event)
	case paymentdomain.EventTypePaymentFailed:
		reason := event.FailureReason
		if reason == "" {
			reason = "payment declined by provider"
		}
		_, err := s.orderSvc.FailPayment(ctx, orderdomain.PaymentResultRequest{
			OrderID: order.ID.String(),
			Reason:  reason,
		})
		return err
	case paymentdomain.EventTypeRefunded:
		reason := event.RefundReason
		if reason == "" {
			reason = "refunded by provider"
		}
		if order.Status == orderdomain.OrderStatusCompleted {
			if _, err := s.orderSvc.RequestRefund(ctx, order.ID.String(), reason); err != nil {
				return err
			}
		}
		_, err := s.orderSvc.CompleteRefund(ctx, order.ID.String())
		return err
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

// applyPaymentSucceeded settles the order, provisions the subscription and
// issues a paid invoice, in that order.
func (s *Service) applyPaymentSucceeded(ctx context.Context, order *orderdomain.SubscriptionOrder, event *paymentdomain.PaymentEvent) error {
	if _, err := s.orderSvc.CompletePayment(ctx, orderdomain.PaymentResultRequest{
		OrderID:       order.ID.String(),
		TransactionID: event.TransactionID,
	}); err != nil {
		return err
	}

	activated, err := s.orderSvc.Activate(ctx, order.ID.String())
	if err != nil {
		return err
	}
	if activated.SubscriptionID == nil {
		// some lines failed to activate; the invoice waits for a retry
		s.log.Warn("order partially activated, deferring invoice",
			zap.String("order_id", activated.ID.String()),
		)
		return nil
	}

	return s.issuePaidInvoice(ctx, activated, event)
}

func (s *Service) issuePaidInvoice(ctx context.Context, order *orderdomain.SubscriptionOrder, event *paymentdomain.PaymentEvent) error {
	taxRate := order.TaxRate
	invoice, err := s.invoiceSvc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		SubscriptionID: order.SubscriptionID.String(),
		OrderID:        order.ID.String(),
		Currency:       order.Currency,
		TaxRate:        &taxRate,
	})
	if err != nil {
		return err
	}

	// the pre-tax discounted base; the invoice reapplies the order's rate
	if _, err := s.invoiceSvc.AddItem(ctx, invoicedomain.AddInvoiceItemRequest{
		InvoiceID:   invoice.ID.String(),
		Description: "Subscription order " + order.OrderNumber,
		Quantity:    1,
		UnitPrice:   order.SubTotalAmount - order.DiscountTotalAmount,
	}); err != nil {
		return err
	}
	if _, err := s.invoiceSvc.Send(ctx, invoice.ID.String()); err != nil {
		return err
	}
	_, err = s.invoiceSvc.AddPayment(ctx, invoicedomain.AddPaymentRequest{
		InvoiceID:     invoice.ID.String(),
		Method:        order.PaymentMethod,
		Amount:        order.TotalAmount,
		TransactionID: event.TransactionID,
		Notes:         "settled by " + event.Provider + " webhook",
	})
	return err
}
