// Package receipt renders the documents handed to buyers and vendors: the
// order ticket (PDF or PNG, with a QR-coded order number) and the PDF
// receipt produced when cash payment is confirmed.
package receipt

import (
	"fmt"
	"net/http"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
)

// ReceiptLine is one paid order line. Image holds the raw product picture;
// lines without a usable image are rendered without one.
type ReceiptLine struct {
	Title     string
	Option    string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Image     []byte
}

type Receipt struct {
	OrderID          string
	OrderNumber      string
	CustomerName     string
	Email            string
	Phone            string
	Address          []string
	Lines            []ReceiptLine
	Subtotal         decimal.Decimal
	Shipping         decimal.Decimal
	Total            decimal.Decimal
	PaymentReference string
	PaidAt           time.Time
}

// ReceiptFilename is "recu-commande-<order id>.pdf".
func ReceiptFilename(orderID string) string {
	return fmt.Sprintf("recu-commande-%s.pdf", orderID)
}

// RenderReceiptPDF renders the receipt on A4.
func RenderReceiptPDF(r Receipt) ([]byte, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithRightMargin(15).
		WithTopMargin(15).
		WithPageNumber().
		Build()
	m := maroto.New(cfg)

	m.AddRow(12, text.NewCol(12, "KOKTEK · Reçu de paiement", props.Text{Size: 18, Style: fontstyle.Bold}))
	number := r.OrderNumber
	if number == "" {
		number = r.OrderID
	}
	m.AddRow(6, text.NewCol(12, "Commande "+number, props.Text{Size: 10}))
	paidAt := r.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	m.AddRow(6, text.NewCol(12, "Payée le "+paidAt.Format("02/01/2006 à 15:04"), props.Text{Size: 10}))
	if r.PaymentReference != "" {
		m.AddRow(6, text.NewCol(12, "Référence de paiement : "+r.PaymentReference, props.Text{Size: 10}))
	}

	m.AddRow(4, line.NewCol(12))
	if r.CustomerName != "" {
		m.AddRow(6, text.NewCol(12, r.CustomerName, props.Text{Size: 10, Style: fontstyle.Bold}))
	}
	for _, s := range append([]string{r.Email, r.Phone}, r.Address...) {
		if s != "" {
			m.AddRow(5, text.NewCol(12, s, props.Text{Size: 9}))
		}
	}
	m.AddRow(4, line.NewCol(12))

	m.AddRow(7,
		text.NewCol(2, ""),
		text.NewCol(5, "Article", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(1, "Qté", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Center}),
		text.NewCol(2, "Prix unitaire", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	for _, l := range r.Lines {
		label := l.Title
		if l.Option != "" {
			label += " · " + l.Option
		}
		m.AddRow(20,
			imageCol(l.Image),
			text.NewCol(5, label, props.Text{Size: 9, Top: 2}),
			text.NewCol(1, fmt.Sprint(l.Quantity), props.Text{Size: 9, Top: 2, Align: align.Center}),
			text.NewCol(2, FormatPrice(l.UnitPrice), props.Text{Size: 9, Top: 2, Align: align.Right}),
			text.NewCol(2, FormatPrice(l.LineTotal), props.Text{Size: 9, Top: 2, Align: align.Right}),
		)
	}

	m.AddRow(4, line.NewCol(12))
	m.AddRow(6, totalCols("Sous-total", FormatPrice(r.Subtotal), false)...)
	shipping := "Offerte"
	if r.Shipping.IsPositive() {
		shipping = FormatPrice(r.Shipping)
	}
	m.AddRow(6, totalCols("Livraison", shipping, false)...)
	m.AddRow(8, totalCols("Total payé", FormatPrice(r.Total), true)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt PDF: %w", err)
	}
	return doc.GetBytes(), nil
}

func totalCols(label, value string, bold bool) []core.Col {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	return []core.Col{
		text.NewCol(8, ""),
		text.NewCol(2, label, props.Text{Size: 10, Style: style}),
		text.NewCol(2, value, props.Text{Size: 10, Style: style, Align: align.Right}),
	}
}

// imageCol embeds JPEG and PNG pictures; anything else leaves the cell empty.
func imageCol(data []byte) core.Col {
	var ext extension.Type
	switch http.DetectContentType(data) {
	case "image/jpeg":
		ext = extension.Jpg
	case "image/png":
		ext = extension.Png
	default:
		return text.NewCol(2, "")
	}
	return image.NewFromBytesCol(2, data, ext, props.Rect{Center: true, Percent: 85})
}
