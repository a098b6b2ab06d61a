package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/stockerhq/stocker/internal/clock"
	"github.com/stockerhq/stocker/internal/config"
	invoicedomain "github.com/stockerhq/stocker/internal/invoice/domain"
	"github.com/stockerhq/stocker/internal/outbox"
	"github.com/stockerhq/stocker/internal/providers/pdf"
	"github.com/stockerhq/stocker/internal/tenantctx"
	"github.com/stockerhq/stocker/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     invoicedomain.Repository
	billing  *config.BillingConfigHolder
	outbox   *outbox.Writer
	renderer pdf.InvoiceRenderer
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     invoicedomain.Repository
	Billing  *config.BillingConfigHolder
	Outbox   *outbox.Writer
	Renderer pdf.InvoiceRenderer
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		billing:  p.Billing,
		outbox:   p.Outbox,
		renderer: p.Renderer,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	subscriptionID, err := snowflake.ParseString(strings.TrimSpace(req.SubscriptionID))
	if err != nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	var orderID *snowflake.ID
	if trimmed := strings.TrimSpace(req.OrderID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		orderID = &parsed
	}

	policy := s.billing.Get()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = policy.DefaultCurrency
	}
	dueDays := req.DueDays
	if dueDays <= 0 {
		dueDays = policy.InvoiceDueDays
	}
	taxRate := policy.TaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}

	now := s.clock.Now()
	invoice, err := invoicedomain.NewInvoice(
		s.genID.Generate(), newInvoiceNumber(), tenantID, subscriptionID, orderID,
		currency, taxRate, now, now.AddDate(0, 0, dueDays),
	)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, invoice); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, tenantID, invoice.DrainEvents())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("tenant_id", tenantID.String()),
	)
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, error) {
	tenantID, id, err := s.parseRef(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) ListBySubscription(ctx context.Context, subscriptionID string) ([]invoicedomain.Invoice, error) {
	tenantID, id, err := s.parseRef(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBySubscription(ctx, s.db, tenantID, id)
}

func (s *Service) AddItem(ctx context.Context, req invoicedomain.AddInvoiceItemRequest) (*invoicedomain.Invoice, error) {
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	return s.mutate(ctx, req.InvoiceID, func(invoice *invoicedomain.Invoice, now time.Time) error {
		unitPrice, err := money.New(req.UnitPrice, invoice.Currency)
		if err != nil {
			return err
		}
		return invoice.AddItem(s.genID.Generate(), req.Description, quantity, unitPrice, now)
	})
}

func (s *Service) RemoveItem(ctx context.Context, invoiceID, itemID string) (*invoicedomain.Invoice, error) {
	parsedItemID, err := snowflake.ParseString(strings.TrimSpace(itemID))
	if err != nil {
		return nil, invoicedomain.ErrItemNotFound
	}

	return s.mutate(ctx, invoiceID, func(invoice *invoicedomain.Invoice, now time.Time) error {
		return invoice.RemoveItem(parsedItemID, now)
	})
}

func (s *Service) Send(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, invoiceID, func(invoice *invoicedomain.Invoice, now time.Time) error {
		return invoice.Send(now)
	})
}

func (s *Service) AddPayment(ctx context.Context, req invoicedomain.AddPaymentRequest) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, req.InvoiceID, func(invoice *invoicedomain.Invoice, now time.Time) error {
		amount, err := money.New(req.Amount, invoice.Currency)
		if err != nil {
			return err
		}
		return invoice.AddPayment(s.genID.Generate(), req.Method, amount, req.TransactionID, req.Notes, now)
	})
}

func (s *Service) MarkAsPaid(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, invoiceID, func(invoice *invoicedomain.Invoice, now time.Time) error {
		return invoice.MarkAsPaid(now)
	})
}

func (s *Service) Cancel(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, invoiceID, func(invoice *invoicedomain.Invoice, now time.Time) error {
		return invoice.Cancel(now)
	})
}

func (s *Service) Refund(ctx context.Context, req invoicedomain.RefundRequest) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, req.InvoiceID, func(invoice *invoicedomain.Invoice, now time.Time) error {
		amount, err := money.New(req.Amount, invoice.Currency)
		if err != nil {
			return err
		}
		return invoice.Refund(s.genID.Generate(), amount, req.Reason, now)
	})
}

func (s *Service) RenderPDF(ctx context.Context, invoiceID string) ([]byte, error) {
	invoice, err := s.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.renderer.RenderInvoice(ctx, invoice)
}

// MarkOverdue flags issued invoices whose due date has passed. Called by
// the scheduler; invoices never self-transition on a clock.
func (s *Service) MarkOverdue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.ListOverdue(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	marked := 0
	for i := range due {
		invoice := &due[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := s.repo.FindByIDForUpdate(ctx, tx, invoice.TenantID, invoice.ID)
			if err != nil {
				return err
			}
			if locked == nil || !locked.IsOverdue(now) {
				return nil
			}
			if err := locked.MarkAsOverdue(now); err != nil {
				return nil // settled or cancelled since listing
			}
			if err := s.repo.Save(ctx, tx, locked); err != nil {
				return err
			}
			marked++
			return s.outbox.Append(ctx, tx, locked.TenantID, locked.DrainEvents())
		})
		if err != nil {
			return marked, err
		}
	}
	return marked, nil
}

func (s *Service) mutate(ctx context.Context, invoiceID string, fn func(invoice *invoicedomain.Invoice, now time.Time) error) (*invoicedomain.Invoice, error) {
	tenantID, id, err := s.parseRef(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	var invoice *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err = s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		if err := fn(invoice, s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, invoice); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, tenantID, invoice.DrainEvents())
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) parseRef(ctx context.Context, raw string) (snowflake.ID, snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return 0, 0, invoicedomain.ErrInvoiceNotFound
	}

	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, invoicedomain.ErrInvoiceNotFound
	}
	return tenantID, id, nil
}

func newInvoiceNumber() string {
	return "INV-" + ulid.Make().String()
}
