package receipt

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"time"
	"unicode"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Ticket texts.
const (
	TicketHeader = "BON DE COMMANDE"
	TicketTitle  = "Commande Réservée !"
	TicketNotice = "Votre commande sera préparée uniquement après réception de votre paiement en espèces dans notre boutique à Marseille."
)

// TicketLine is one line of the order summary.
type TicketLine struct {
	Title    string
	Option   string
	Quantity int
	Total    decimal.Decimal
}

// Ticket is shown to the buyer once the order is reserved. The QR code
// carries the order number for the vendor scanner.
type Ticket struct {
	OrderNumber  string
	CustomerName string
	Lines        []TicketLine
	Total        decimal.Decimal
	CreatedAt    time.Time
}

// TicketFilename is "bon-commande-<number>.<ext>".
func TicketFilename(orderNumber, ext string) string {
	return fmt.Sprintf("bon-commande-%s.%s", orderNumber, ext)
}

// RenderTicketPDF lays the ticket out on an A5 page.
func RenderTicketPDF(t Ticket) ([]byte, error) {
	if t.OrderNumber == "" {
		return nil, fmt.Errorf("ticket: order number is required")
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A5).
		WithLeftMargin(10).
		WithRightMargin(10).
		WithTopMargin(10).
		Build()
	m := maroto.New(cfg)

	m.AddRow(6, text.NewCol(12, TicketHeader, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Center}))
	m.AddRow(10, text.NewCol(12, TicketTitle, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Center}))
	m.AddRow(14, text.NewCol(12, TicketNotice, props.Text{Size: 8, Align: align.Center}))
	m.AddRow(6, text.NewCol(12, "Numéro de commande", props.Text{Size: 8, Align: align.Center}))
	m.AddRow(8, text.NewCol(12, t.OrderNumber, props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Center}))
	m.AddRow(50, code.NewQrCol(12, t.OrderNumber, props.Rect{Center: true, Percent: 90}))
	m.AddRow(4, line.NewCol(12))

	for _, l := range t.Lines {
		label := l.Title
		if l.Option != "" {
			label += " · " + l.Option
		}
		m.AddRow(6,
			text.NewCol(8, fmt.Sprintf("%d × %s", l.Quantity, label), props.Text{Size: 9}),
			text.NewCol(4, FormatPrice(l.Total), props.Text{Size: 9, Align: align.Right}),
		)
	}
	if t.CustomerName != "" {
		m.AddRow(6, text.NewCol(12, "Client : "+t.CustomerName, props.Text{Size: 9}))
	}
	m.AddRow(8,
		text.NewCol(8, "Total", props.Text{Size: 11, Style: fontstyle.Bold}),
		text.NewCol(4, FormatPrice(t.Total), props.Text{Size: 11, Style: fontstyle.Bold, Align: align.Right}),
	)
	if !t.CreatedAt.IsZero() {
		m.AddRow(6, text.NewCol(12, t.CreatedAt.Format("02/01/2006 15:04"), props.Text{Size: 8, Align: align.Right}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ticket PDF: %w", err)
	}
	return doc.GetBytes(), nil
}

const (
	ticketWidth   = 360
	ticketPadding = 20
	ticketQRSize  = 220
	lineHeight    = 18
)

var ticketBackground = color.RGBA{R: 0xff, G: 0xfa, B: 0xf4, A: 0xff}

// RenderTicketPNG draws the ticket as an image. The bitmap font only has
// ASCII glyphs, so accents are dropped from the texts.
func RenderTicketPNG(t Ticket) ([]byte, error) {
	if t.OrderNumber == "" {
		return nil, fmt.Errorf("ticket: order number is required")
	}
	qrImg, err := QRImage(t.OrderNumber, ticketQRSize, 10)
	if err != nil {
		return nil, err
	}

	texts := []string{TicketHeader, TicketTitle, "", "Numero de commande", t.OrderNumber}
	summary := make([]string, 0, len(t.Lines)+3)
	for _, l := range t.Lines {
		label := l.Title
		if l.Option != "" {
			label += " - " + l.Option
		}
		summary = append(summary, fmt.Sprintf("%d x %s  %s", l.Quantity, label, FormatPrice(l.Total)))
	}
	if t.CustomerName != "" {
		summary = append(summary, "Client: "+t.CustomerName)
	}
	summary = append(summary, "Total: "+FormatPrice(t.Total))

	qrHeight := qrImg.Bounds().Dy()
	height := 2*ticketPadding + (len(texts)+len(summary)+1)*lineHeight + qrHeight
	canvas := image.NewRGBA(image.Rect(0, 0, ticketWidth, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(ticketBackground), image.Point{}, draw.Src)

	drawer := &font.Drawer{Dst: canvas, Src: image.NewUniform(color.Black), Face: basicfont.Face7x13}
	y := ticketPadding
	for _, s := range texts {
		y += lineHeight
		drawCentered(drawer, s, y)
	}
	qrLeft := (ticketWidth - qrImg.Bounds().Dx()) / 2
	draw.Draw(canvas, qrImg.Bounds().Add(image.Pt(qrLeft, y+lineHeight/2)), qrImg, image.Point{}, draw.Src)
	y += qrHeight
	for _, s := range summary {
		y += lineHeight
		drawer.Dot = fixed.P(ticketPadding, y)
		drawer.DrawString(asciiOnly(s))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode ticket PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func drawCentered(d *font.Drawer, s string, y int) {
	s = asciiOnly(s)
	width := d.MeasureString(s).Round()
	d.Dot = fixed.P((ticketWidth-width)/2, y)
	d.DrawString(s)
}

func asciiOnly(s string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	out = strings.ReplaceAll(out, "€", "EUR")
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			if unicode.IsSpace(r) {
				return ' '
			}
			return '?'
		}
		return r
	}, out)
}
