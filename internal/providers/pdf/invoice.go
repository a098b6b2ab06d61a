// Package pdf renders billing documents with maroto.
package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	invoicedomain "github.com/stockerhq/stocker/internal/invoice/domain"
	"github.com/stockerhq/stocker/pkg/money"
)

const dateLayout = "2006-01-02"

// InvoiceRenderer produces a printable document for an invoice.
type InvoiceRenderer interface {
	RenderInvoice(ctx context.Context, invoice *invoicedomain.Invoice) ([]byte, error)
}

type marotoRenderer struct{}

func NewInvoiceRenderer() InvoiceRenderer {
	return &marotoRenderer{}
}

func (r *marotoRenderer) RenderInvoice(_ context.Context, invoice *invoicedomain.Invoice) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+invoice.IssueDate.Format(dateLayout), props.Text{Top: 4}),
			text.New("Date due: "+invoice.DueDate.Format(dateLayout), props.Text{Top: 8}),
			text.New("Status: "+string(invoice.Status), props.Text{Top: 12}),
		),
		col.New(6),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range invoice.Items {
		unitPrice := money.Money{Amount: item.UnitPriceAmount, Currency: item.Currency}
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, unitPrice.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.LineTotal().String(), props.Text{Size: 9, Align: align.Right}),
		)
	}

	subtotal := money.Money{Amount: invoice.SubtotalAmount, Currency: invoice.Currency}
	tax := money.Money{Amount: invoice.TaxAmount, Currency: invoice.Currency}
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(2, subtotal.String(), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, fmt.Sprintf("Tax (%.0f%%)", invoice.TaxRate), props.Text{Size: 9}),
		text.NewCol(2, tax.String(), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9}),
		text.NewCol(2, invoice.Total().String(), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, invoice.Outstanding().String(), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
