package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/GueYatma/koktek-front/internal/catalog"
	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/messaging"
	"github.com/GueYatma/koktek-front/internal/metrics"
	"github.com/GueYatma/koktek-front/internal/receipt"
	"github.com/GueYatma/koktek-front/internal/repository"
)

var (
	ErrEmptyQuery    = errors.New("vendor: empty order query")
	ErrOrderNotFound = errors.New("vendor: order not found")
	// ErrReceiptFailed is returned when the order was marked paid but the
	// receipt could not be rendered.
	ErrReceiptFailed = errors.New("vendor: receipt generation failed")
)

const cashReference = "cash"

// maxImageBytes bounds a product picture inlined in a receipt.
const maxImageBytes = 5 << 20

var orderNumberPrefix = regexp.MustCompile(`(?i)^KOK-`)

// ExtractOrderQuery trims raw and, when it is an absolute URL carrying an
// "order" query parameter, returns that parameter instead.
func ExtractOrderQuery(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	u, err := url.Parse(trimmed)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return trimmed
	}
	if order := strings.TrimSpace(u.Query().Get("order")); order != "" {
		return order
	}
	return trimmed
}

// VendorLine is one order line as shown to the vendor.
type VendorLine struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Title     string          `json:"title"`
	SKU       string          `json:"sku,omitempty"`
	Option    string          `json:"option,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// VendorOrder is an order with its lines and totals resolved.
type VendorOrder struct {
	ID               string                      `json:"id"`
	OrderNumber      string                      `json:"order_number"`
	Status           string                      `json:"status"`
	PaymentStatus    string                      `json:"payment_status,omitempty"`
	PaymentReference string                      `json:"payment_reference,omitempty"`
	CreatedAt        string                      `json:"created_at,omitempty"`
	Customer         *entity.CustomerRecord      `json:"customer,omitempty"`
	Delivery         *entity.OrderDeliveryRecord `json:"delivery,omitempty"`
	Lines            []VendorLine                `json:"lines"`
	Subtotal         decimal.Decimal             `json:"subtotal"`
	Shipping         decimal.Decimal             `json:"shipping"`
	Total            decimal.Decimal             `json:"total"`
}

// Paid reports whether the order was already settled.
func (o *VendorOrder) Paid() bool {
	return o.Status == entity.OrderStatusPaid || o.PaymentStatus == entity.OrderStatusPaid
}

// PaidReceipt is the outcome of a cash confirmation.
type PaidReceipt struct {
	Order    *VendorOrder
	Filename string
	PDF      []byte
}

// ImageFetcher downloads a picture to inline in a receipt.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// HTTPImageFetcher fetches images over HTTP.
type HTTPImageFetcher struct {
	Client *http.Client
}

func (f HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image %s: status %d", imageURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

// Vendor is the in-store validation flow: find an order, confirm its cash
// payment, hand out a receipt.
type Vendor struct {
	orders    repository.OrderRepository
	products  repository.CatalogSource
	images    catalog.ImageResolver
	fetcher   ImageFetcher
	publisher messaging.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type VendorOption func(*Vendor)

// WithImageResolver sets how product image references become URLs.
func WithImageResolver(r catalog.ImageResolver) VendorOption {
	return func(v *Vendor) { v.images = r }
}

func WithImageFetcher(f ImageFetcher) VendorOption {
	return func(v *Vendor) { v.fetcher = f }
}

func WithVendorPublisher(p messaging.Publisher) VendorOption {
	return func(v *Vendor) { v.publisher = p }
}

func WithVendorLogger(l *slog.Logger) VendorOption {
	return func(v *Vendor) { v.logger = l }
}

func WithVendorMetrics(m *metrics.Metrics) VendorOption {
	return func(v *Vendor) { v.metrics = m }
}

func WithVendorClock(now func() time.Time) VendorOption {
	return func(v *Vendor) { v.now = now }
}

func NewVendor(orders repository.OrderRepository, products repository.CatalogSource, opts ...VendorOption) *Vendor {
	v := &Vendor{
		orders:    orders,
		products:  products,
		fetcher:   HTTPImageFetcher{},
		publisher: messaging.Discard,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ResolveOrderID maps an order number (KOK-..., any case) to the order id.
// Other values are taken as ids.
func (v *Vendor) ResolveOrderID(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if !orderNumberPrefix.MatchString(query) {
		return query, nil
	}
	id, err := v.orders.FindIDByNumber(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to look up order number %s: %w", query, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrOrderNotFound, query)
	}
	return id, nil
}

// Lookup finds the order designated by a typed or scanned query.
func (v *Vendor) Lookup(ctx context.Context, raw string) (*VendorOrder, error) {
	id, err := v.ResolveOrderID(ctx, ExtractOrderQuery(raw))
	if err != nil {
		return nil, err
	}
	return v.load(ctx, id)
}

// QRScanner yields the payload of one scanned code.
type QRScanner interface {
	Scan(ctx context.Context) (string, error)
}

// LookupScanned runs one scan and looks up the order it designates.
func (v *Vendor) LookupScanned(ctx context.Context, sc QRScanner) (*VendorOrder, error) {
	payload, err := sc.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return v.Lookup(ctx, payload)
}

func (v *Vendor) load(ctx context.Context, orderID string) (*VendorOrder, error) {
	details, err := v.orders.GetDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}
	if details == nil || details.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	summaries := v.productSummaries(ctx, details.Items)
	order := &VendorOrder{
		ID:               details.ID.String(),
		OrderNumber:      details.OrderNumber,
		Status:           details.Status,
		PaymentStatus:    details.PaymentStatus,
		PaymentReference: details.PaymentReference,
		CreatedAt:        details.CreatedAt,
		Customer:         details.Customer,
		Delivery:         details.Delivery,
		Lines:            make([]VendorLine, 0, len(details.Items)),
	}
	linesTotal := decimal.Zero
	for _, item := range details.Items {
		line := v.line(item, summaries)
		linesTotal = linesTotal.Add(line.LineTotal)
		order.Lines = append(order.Lines, line)
	}

	order.Subtotal = firstAmount(linesTotal, details.TotalProductsPrice, details.Subtotal)
	order.Shipping = firstAmount(decimal.Zero, details.ShippingPrice)
	order.Total = firstAmount(order.Subtotal.Add(order.Shipping), details.TotalPrice, details.Total)
	return order, nil
}

// productSummaries fetches titles and pictures of the products that were
// not expanded in the order. A failure only costs the line labels.
func (v *Vendor) productSummaries(ctx context.Context, items []entity.OrderItemRecord) map[string]catalog.ProductSummary {
	seen := make(map[string]bool)
	var ids []string
	for _, item := range items {
		id := item.ProductRef()
		if id == "" || seen[id] || isObject(item.ProductID) {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	out := make(map[string]catalog.ProductSummary, len(ids))
	if len(ids) == 0 {
		return out
	}
	rows, err := v.products.FetchRowsByID(ctx, catalog.CollectionProducts, ids, catalog.SummaryFields)
	if err != nil {
		v.logger.Warn("vendor: product summaries unavailable", "ids", ids, "error", err)
		return out
	}
	for _, row := range rows {
		if s, ok := v.images.SummarizeProduct(row); ok {
			out[s.ID] = s
		}
	}
	return out
}

func (v *Vendor) line(item entity.OrderItemRecord, summaries map[string]catalog.ProductSummary) VendorLine {
	productID := item.ProductRef()
	line := VendorLine{
		ProductID: productID,
		VariantID: item.VariantRef(),
		Title:     "Produit " + productID,
		Quantity:  item.Quantity,
	}
	if s, ok := v.images.SummarizeProduct(relation(item.ProductID)); ok {
		line.Title, line.ImageURL = s.Title, s.ImageURL
	} else if s, ok := summaries[productID]; ok {
		line.Title, line.ImageURL = s.Title, s.ImageURL
	}
	if vs, ok := catalog.SummarizeVariant(relation(item.VariantID)); ok {
		line.SKU, line.Option = vs.SKU, vs.OptionValue
	}

	if item.UnitPrice != nil {
		line.UnitPrice = decimal.NewFromFloat(*item.UnitPrice)
	}
	line.LineTotal = firstAmount(line.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))), item.LineTotal)
	return line
}

// ConfirmCash marks the order paid in cash and renders its receipt. The
// order may be designated by id, order number or scanned link. When the
// order cannot be marked, no receipt is produced and nothing is retried.
func (v *Vendor) ConfirmCash(ctx context.Context, query string) (paid *PaidReceipt, err error) {
	defer func() { v.metrics.CheckoutStep("vendor_cash", err) }()

	orderID, err := v.ResolveOrderID(ctx, ExtractOrderQuery(query))
	if err != nil {
		return nil, err
	}
	order, err := v.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := v.orders.UpdateStatus(ctx, order.ID, repository.StatusUpdate{
		Status:           entity.OrderStatusPaid,
		PaymentStatus:    entity.OrderStatusPaid,
		PaymentReference: cashReference,
	}); err != nil {
		return nil, fmt.Errorf("failed to mark order %s paid: %w", order.ID, err)
	}
	paidAt := v.now()
	order.Status = entity.OrderStatusPaid
	order.PaymentStatus = entity.OrderStatusPaid
	order.PaymentReference = cashReference
	v.logger.Info("vendor: cash received", "order_id", order.ID, "order_number", order.OrderNumber)

	if err := v.publisher.PublishEvent(ctx, entity.TopicOrdersPaid, order.ID, entity.OrderPaid{
		OrderID:   order.ID,
		Reference: cashReference,
		Total:     order.Total.InexactFloat64(),
		PaidAt:    paidAt.UTC(),
	}); err != nil {
		v.logger.Warn("vendor: event not published", "order_id", order.ID, "error", err)
	}

	pdf, err := receipt.RenderReceiptPDF(v.receipt(ctx, order, paidAt))
	if err != nil {
		return &PaidReceipt{Order: order}, fmt.Errorf("%w: %w", ErrReceiptFailed, err)
	}
	return &PaidReceipt{Order: order, Filename: receipt.ReceiptFilename(order.ID), PDF: pdf}, nil
}

func (v *Vendor) receipt(ctx context.Context, order *VendorOrder, paidAt time.Time) receipt.Receipt {
	images := v.lineImages(ctx, order.Lines)
	lines := make([]receipt.ReceiptLine, 0, len(order.Lines))
	for i, l := range order.Lines {
		lines = append(lines, receipt.ReceiptLine{
			Title:     l.Title,
			Option:    l.Option,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
			Image:     images[i],
		})
	}
	r := receipt.Receipt{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		Lines:            lines,
		Subtotal:         order.Subtotal,
		Shipping:         order.Shipping,
		Total:            order.Total,
		PaymentReference: order.PaymentReference,
		PaidAt:           paidAt,
	}
	if c := order.Customer; c != nil {
		r.CustomerName = c.DisplayName()
		r.Email = c.Email
		r.Phone = c.Phone
	}
	if d := order.Delivery; d != nil {
		if r.CustomerName == "" {
			r.CustomerName = d.RecipientName
		}
		if r.Email == "" {
			r.Email = d.Email
		}
		if r.Phone == "" {
			r.Phone = d.Phone
		}
		r.Address = addressLines(d.Address)
	}
	return r
}

// lineImages downloads line pictures concurrently; failed downloads leave
// a nil entry.
func (v *Vendor) lineImages(ctx context.Context, lines []VendorLine) [][]byte {
	out := make([][]byte, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, l := range lines {
		if l.ImageURL == "" {
			continue
		}
		g.Go(func() error {
			data, err := v.fetcher.FetchImage(gctx, l.ImageURL)
			if err != nil {
				v.logger.Warn("vendor: receipt image skipped", "url", l.ImageURL, "error", err)
				return nil
			}
			out[i] = data
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func addressLines(a entity.Address) []string {
	var out []string
	for _, s := range []string{
		a.AddressLine1,
		a.AddressLine2,
		strings.TrimSpace(a.PostalCode + " " + a.City),
		a.Region,
		a.Country,
	} {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// firstAmount returns the first non-nil amount, or fallback.
func firstAmount(fallback decimal.Decimal, amounts ...*float64) decimal.Decimal {
	for _, a := range amounts {
		if a != nil {
			return decimal.NewFromFloat(*a)
		}
	}
	return fallback
}

func isObject(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '{'
}

// relation decodes an expanded relation; bare ids yield nil.
func relation(raw json.RawMessage) map[string]any {
	if !isObject(raw) {
		return nil
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil
	}
	return row
}
