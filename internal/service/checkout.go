package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/localstore"
	"github.com/GueYatma/koktek-front/internal/messaging"
	"github.com/GueYatma/koktek-front/internal/messaging/webhook"
	"github.com/GueYatma/koktek-front/internal/metrics"
	"github.com/GueYatma/koktek-front/internal/receipt"
	"github.com/GueYatma/koktek-front/internal/repository"
)

var (
	// ErrCheckoutFailed wraps every remote failure of a checkout step.
	ErrCheckoutFailed = errors.New("checkout failed")
	// ErrInvalidState is returned when an operation does not apply to the
	// current checkout state.
	ErrInvalidState = errors.New("checkout: operation not allowed in current state")
	// ErrCardUnavailable is returned by PayByCard: there is no card gateway.
	ErrCardUnavailable = errors.New("checkout: card payment is not available")
	ErrEmptyCart       = errors.New("checkout: cart is empty")
)

// FieldError names the first missing or invalid form field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("checkout: field %q is required", e.Field)
}

type CheckoutState string

const (
	StateForm    CheckoutState = "form"
	StatePayment CheckoutState = "payment"
	StateSuccess CheckoutState = "success"
)

// PaymentView is the sub-view shown while in StatePayment.
type PaymentView string

const (
	ViewChoice PaymentView = "choice"
	ViewCard   PaymentView = "card"
)

const paymentMethodCash = "cash"

// PostalAddress is a form address block.
type PostalAddress struct {
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	PostalCode   string `json:"postal_code"`
	City         string `json:"city"`
	Region       string `json:"region,omitempty"`
	Country      string `json:"country"`
}

func (a PostalAddress) trimmed() PostalAddress {
	return PostalAddress{
		AddressLine1: strings.TrimSpace(a.AddressLine1),
		AddressLine2: strings.TrimSpace(a.AddressLine2),
		PostalCode:   strings.TrimSpace(a.PostalCode),
		City:         strings.TrimSpace(a.City),
		Region:       strings.TrimSpace(a.Region),
		Country:      strings.TrimSpace(a.Country),
	}
}

func (a PostalAddress) record(email, phone string) entity.Address {
	return entity.Address{
		Email:        email,
		Phone:        phone,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		PostalCode:   a.PostalCode,
		City:         a.City,
		Region:       a.Region,
		Country:      a.Country,
	}
}

func (a PostalAddress) missing(prefix string) string {
	switch {
	case a.AddressLine1 == "":
		return prefix + "address_line1"
	case a.PostalCode == "":
		return prefix + "postal_code"
	case a.City == "":
		return prefix + "city"
	case a.Country == "":
		return prefix + "country"
	}
	return ""
}

// BillingDetails is only read when CheckoutForm.BillingDifferent is set.
type BillingDetails struct {
	Name        string `json:"name"`
	CompanyName string `json:"company_name,omitempty"`
	TaxID       string `json:"tax_id,omitempty"`
	PostalAddress
}

// CheckoutForm is what the buyer submits on the form step.
type CheckoutForm struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	PostalAddress
	BillingDifferent bool           `json:"billing_different"`
	Billing          BillingDetails `json:"billing"`
}

func (f CheckoutForm) normalized() (CheckoutForm, error) {
	out := CheckoutForm{
		FirstName:        strings.TrimSpace(f.FirstName),
		LastName:         strings.TrimSpace(f.LastName),
		Phone:            strings.TrimSpace(f.Phone),
		PostalAddress:    f.PostalAddress.trimmed(),
		BillingDifferent: f.BillingDifferent,
	}
	switch {
	case out.FirstName == "":
		return out, &FieldError{Field: "first_name"}
	case out.LastName == "":
		return out, &FieldError{Field: "last_name"}
	}
	email, err := normalizeEmail(f.Email)
	if err != nil {
		return out, &FieldError{Field: "email"}
	}
	out.Email = email
	if field := out.PostalAddress.missing(""); field != "" {
		return out, &FieldError{Field: field}
	}
	if out.BillingDifferent {
		out.Billing = BillingDetails{
			Name:          strings.TrimSpace(f.Billing.Name),
			CompanyName:   strings.TrimSpace(f.Billing.CompanyName),
			TaxID:         strings.TrimSpace(f.Billing.TaxID),
			PostalAddress: f.Billing.PostalAddress.trimmed(),
		}
		if out.Billing.Name == "" {
			out.Billing.Name = out.FullName()
		}
		if field := out.Billing.PostalAddress.missing("billing."); field != "" {
			return out, &FieldError{Field: field}
		}
	}
	return out, nil
}

func (f CheckoutForm) FullName() string {
	return strings.TrimSpace(f.FirstName + " " + f.LastName)
}

// PlacedOrder is the order created by Submit, with the cart lines it was
// built from.
type PlacedOrder struct {
	OrderID      string            `json:"order_id"`
	OrderNumber  string            `json:"order_number"`
	CustomerID   string            `json:"customer_id"`
	CustomerName string            `json:"customer_name"`
	Email        string            `json:"email"`
	Lines        []entity.CartItem `json:"lines"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	Total        decimal.Decimal   `json:"total"`
	ItemCount    int               `json:"item_count"`
	CreatedAt    time.Time         `json:"created_at"`

	customer webhook.Customer
}

// CheckoutStatus is a read of the checkout state for rendering.
type CheckoutStatus struct {
	State CheckoutState `json:"state"`
	View  PaymentView   `json:"view,omitempty"`
	Order *PlacedOrder  `json:"order,omitempty"`
}

// CashNotifier sends the cash-payment notification.
type CashNotifier interface {
	Notify(ctx context.Context, n webhook.Notification) error
}

// Checkout drives one shopper from the form to a reserved order.
type Checkout struct {
	cart      *CartManager
	customers repository.CustomerRepository
	orders    repository.OrderRepository
	profile   *ProfileService
	notifier  CashNotifier
	publisher messaging.Publisher
	storage   *localstore.CheckoutStorage
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	// step serialises transitions; mu guards the fields below.
	step  sync.Mutex
	mu    sync.Mutex
	state CheckoutState
	view  PaymentView
	order *PlacedOrder
}

type CheckoutOption func(*Checkout)

func WithCheckoutLogger(l *slog.Logger) CheckoutOption {
	return func(c *Checkout) { c.logger = l }
}

func WithCheckoutMetrics(m *metrics.Metrics) CheckoutOption {
	return func(c *Checkout) { c.metrics = m }
}

func WithPublisher(p messaging.Publisher) CheckoutOption {
	return func(c *Checkout) { c.publisher = p }
}

// WithCheckoutStorage persists the placed order and the step it is in, so a
// rebuilt checkout can resume it; see Restore.
func WithCheckoutStorage(s *localstore.CheckoutStorage) CheckoutOption {
	return func(c *Checkout) { c.storage = s }
}

// WithClock replaces time.Now, which also drives order numbers.
func WithClock(now func() time.Time) CheckoutOption {
	return func(c *Checkout) { c.now = now }
}

func NewCheckout(
	cart *CartManager,
	customers repository.CustomerRepository,
	orders repository.OrderRepository,
	profile *ProfileService,
	notifier CashNotifier,
	opts ...CheckoutOption,
) *Checkout {
	c := &Checkout{
		cart:      cart,
		customers: customers,
		orders:    orders,
		profile:   profile,
		notifier:  notifier,
		publisher: messaging.Discard,
		logger:    slog.Default(),
		now:       time.Now,
		state:     StateForm,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// savedCheckout is the persisted part of a checkout. The view is not kept;
// a resumed payment step shows the choice.
type savedCheckout struct {
	State    CheckoutState    `json:"state"`
	Order    *PlacedOrder     `json:"order"`
	Customer webhook.Customer `json:"customer"`
}

// Restore resumes a checkout saved in the payment or success step. It does
// nothing without storage or once the checkout has left the form.
func (c *Checkout) Restore(ctx context.Context) {
	if c.storage == nil {
		return
	}
	var saved savedCheckout
	if !c.storage.Read(ctx, &saved) {
		return
	}
	if saved.State != StatePayment && saved.State != StateSuccess {
		return
	}
	if saved.Order == nil || saved.Order.OrderID == "" {
		return
	}
	saved.Order.customer = saved.Customer

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateForm {
		return
	}
	c.state = saved.State
	c.view = ViewChoice
	c.order = saved.Order
}

// saveLocked persists the current step. Caller holds mu.
func (c *Checkout) saveLocked(ctx context.Context) {
	if c.storage == nil {
		return
	}
	var err error
	if c.state == StateForm || c.order == nil {
		err = c.storage.Clear(ctx)
	} else {
		err = c.storage.Write(ctx, savedCheckout{State: c.state, Order: c.order, Customer: c.order.customer})
	}
	if err != nil {
		c.logger.Warn("checkout: state not saved", "state", c.state, "error", err)
	}
}

func (c *Checkout) Status() CheckoutStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := CheckoutStatus{State: c.state, Order: c.order}
	if c.state == StatePayment {
		st.View = c.view
	}
	return st
}

// Submit materialises the cart as a remote order aggregate and moves to the
// payment step. On failure the state and the cart are left untouched; records
// already created remotely are not deleted.
func (c *Checkout) Submit(ctx context.Context, form CheckoutForm) (order *PlacedOrder, err error) {
	c.step.Lock()
	defer c.step.Unlock()
	defer func() { c.metrics.CheckoutStep("submit", err) }()

	if c.currentState() != StateForm {
		return nil, ErrInvalidState
	}
	form, err = form.normalized()
	if err != nil {
		return nil, err
	}
	snapshot := c.cart.Snapshot()
	if len(snapshot.Items) == 0 {
		return nil, ErrEmptyCart
	}

	c.logger.Info("checkout: submitting order", "email", form.Email, "lines", len(snapshot.Items))

	// 1. Customer, reused by email
	customer, err := c.findOrCreateCustomer(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%w: customer: %w", ErrCheckoutFailed, err)
	}

	// 2. Order header
	cartID, cerr := c.cart.EnsureCartID(ctx)
	if cerr != nil {
		c.logger.Warn("checkout: order created without cart id", "error", cerr)
	}
	placedAt := c.now()
	subtotal := snapshot.Total
	record, err := c.orders.CreateOrder(ctx, entity.OrderRecord{
		OrderNumber: fmt.Sprintf("KOK-%d", placedAt.UnixMilli()),
		CartID:      cartID,
		CustomerID:  customer.ID,
		Status:      entity.OrderStatusPendingPayment,
		Currency:    entity.DefaultCurrency,
		Subtotal:    floatPtr(subtotal),
		Total:       floatPtr(subtotal),
		ItemCount:   &snapshot.ItemCount,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: order: %w", ErrCheckoutFailed, err)
	}
	orderID := record.ID.String()

	// 3. Order lines
	if _, err := c.orders.CreateItems(ctx, orderItems(orderID, snapshot.Items)); err != nil {
		return nil, fmt.Errorf("%w: order items: %w", ErrCheckoutFailed, err)
	}

	// 4. Delivery
	if _, err := c.orders.CreateDelivery(ctx, entity.OrderDeliveryRecord{
		OrderID:       record.ID,
		Status:        entity.DeliveryStatusPending,
		RecipientName: form.FullName(),
		Address:       form.PostalAddress.record(form.Email, form.Phone),
	}); err != nil {
		return nil, fmt.Errorf("%w: delivery: %w", ErrCheckoutFailed, err)
	}

	// 5. Billing, only for a distinct address
	if form.BillingDifferent {
		if _, err := c.orders.CreateBilling(ctx, entity.OrderBillingRecord{
			OrderID:     record.ID,
			BillingName: form.Billing.Name,
			CompanyName: form.Billing.CompanyName,
			TaxID:       form.Billing.TaxID,
			Address:     form.Billing.PostalAddress.record(form.Email, form.Phone),
		}); err != nil {
			return nil, fmt.Errorf("%w: billing: %w", ErrCheckoutFailed, err)
		}
	}

	order = &PlacedOrder{
		OrderID:      orderID,
		OrderNumber:  record.OrderNumber,
		CustomerID:   customer.ID.String(),
		CustomerName: form.FullName(),
		Email:        form.Email,
		Lines:        snapshot.Items,
		Subtotal:     subtotal,
		Total:        subtotal,
		ItemCount:    snapshot.ItemCount,
		CreatedAt:    placedAt,
		customer: webhook.Customer{
			ID:         customer.ID.String(),
			FirstName:  form.FirstName,
			LastName:   form.LastName,
			Email:      form.Email,
			Phone:      form.Phone,
			Address:    strings.TrimSpace(form.AddressLine1 + " " + form.AddressLine2),
			PostalCode: form.PostalCode,
			City:       form.City,
			Country:    form.Country,
		},
	}

	// 6. and 7. Local history and guest profile
	c.rememberBuyer(ctx, form, order)

	c.mu.Lock()
	c.state = StatePayment
	c.view = ViewChoice
	c.order = order
	c.saveLocked(ctx)
	c.mu.Unlock()

	c.publish(ctx, entity.TopicOrdersPlaced, orderID, entity.OrderPlaced{
		OrderID:     orderID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Email:       order.Email,
		Items:       eventLines(order.Lines),
		Total:       order.Total.InexactFloat64(),
		PlacedAt:    placedAt.UTC(),
	})
	c.logger.Info("checkout: order placed", "order_id", orderID, "order_number", order.OrderNumber)
	return order, nil
}

func (c *Checkout) findOrCreateCustomer(ctx context.Context, form CheckoutForm) (*entity.CustomerRecord, error) {
	existing, err := c.customers.FindByEmail(ctx, form.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != "" {
		return existing, nil
	}
	return c.customers.Create(ctx, entity.CustomerRecord{
		Name:         form.FullName(),
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		Email:        form.Email,
		Phone:        form.Phone,
		AddressLine1: form.AddressLine1,
		AddressLine2: form.AddressLine2,
		ZipCode:      form.PostalCode,
		City:         form.City,
		Region:       form.Region,
		CountryCode:  form.Country,
	})
}

func (c *Checkout) rememberBuyer(ctx context.Context, form CheckoutForm, order *PlacedOrder) {
	if c.profile == nil {
		return
	}
	first := order.Lines[0]
	stored := entity.StoredOrder{
		ID:           order.OrderID,
		OrderNumber:  order.OrderNumber,
		Total:        order.Total.InexactFloat64(),
		ProductName:  first.Product.Title,
		VariantName:  first.Variant.Option1Name,
		VariantValue: first.Variant.Option1Value,
		ImageURL:     first.Product.ImageURL,
		CustomerName: order.CustomerName,
		CreatedAt:    order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := c.profile.RememberOrder(ctx, form.Email, stored); err != nil {
		c.logger.Warn("checkout: order history not saved", "order_id", order.OrderID, "error", err)
	}

	if _, err := c.profile.Login(ctx, form.Email); err != nil {
		c.logger.Warn("checkout: guest login failed", "error", err)
		return
	}
	if _, err := c.profile.Update(ctx, ProfileUpdate{
		FirstName:    &form.FirstName,
		LastName:     &form.LastName,
		Phone:        &form.Phone,
		AddressLine1: &form.AddressLine1,
		AddressLine2: &form.AddressLine2,
		Zip:          &form.PostalCode,
		City:         &form.City,
		Country:      &form.Country,
	}); err != nil {
		c.logger.Warn("checkout: profile not updated", "error", err)
	}
}

// ChooseCard shows the card sub-view.
func (c *Checkout) ChooseCard() error {
	return c.setView(ViewCard)
}

// BackToChoice returns from the card sub-view.
func (c *Checkout) BackToChoice() error {
	return c.setView(ViewChoice)
}

func (c *Checkout) setView(v PaymentView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePayment {
		return ErrInvalidState
	}
	c.view = v
	return nil
}

// PayByCard always fails; no payment gateway is integrated.
func (c *Checkout) PayByCard(context.Context) error {
	if c.currentState() != StatePayment {
		return ErrInvalidState
	}
	c.metrics.CheckoutStep("card", ErrCardUnavailable)
	return ErrCardUnavailable
}

// PayCash marks the order pending_cash, then notifies the webhook once. A
// failed notification keeps the payment step; the status change stays applied.
func (c *Checkout) PayCash(ctx context.Context) (err error) {
	c.step.Lock()
	defer c.step.Unlock()
	defer func() { c.metrics.CheckoutStep("cash", err) }()

	c.mu.Lock()
	state, order := c.state, c.order
	c.mu.Unlock()
	if state != StatePayment || order == nil {
		return ErrInvalidState
	}

	if err := c.orders.UpdateStatus(ctx, order.OrderID, repository.StatusUpdate{
		Status:        entity.OrderStatusPendingCash,
		PaymentStatus: entity.OrderStatusPendingCash,
	}); err != nil {
		return fmt.Errorf("%w: cash status: %w", ErrCheckoutFailed, err)
	}

	if err := c.notifier.Notify(ctx, webhook.Notification{
		OrderID:       order.OrderID,
		OrderNumber:   order.OrderNumber,
		TotalAmount:   order.Total.InexactFloat64(),
		Currency:      entity.DefaultCurrency,
		PaymentMethod: paymentMethodCash,
		Customer:      order.customer,
		Items:         eventLines(order.Lines),
	}); err != nil {
		c.logger.Error("checkout: cash notification failed", "order_id", order.OrderID, "error", err)
		return fmt.Errorf("%w: notification: %w", ErrCheckoutFailed, err)
	}

	c.mu.Lock()
	c.state = StateSuccess
	c.saveLocked(ctx)
	c.mu.Unlock()

	c.publish(ctx, entity.TopicOrdersCashPending, order.OrderID, entity.OrderCashPending{
		OrderID:     order.OrderID,
		OrderNumber: order.OrderNumber,
		Total:       order.Total.InexactFloat64(),
		At:          c.now().UTC(),
	})
	return nil
}

// Leave ends a successful checkout: the remote cart is closed, the local
// cart cleared, and the checkout returns to the form. It reports whether the
// cart was cleared; outside the success state it does nothing.
func (c *Checkout) Leave(ctx context.Context) bool {
	c.step.Lock()
	defer c.step.Unlock()

	c.mu.Lock()
	if c.state != StateSuccess {
		c.mu.Unlock()
		return false
	}
	c.state = StateForm
	c.view = ""
	c.order = nil
	c.saveLocked(ctx)
	c.mu.Unlock()

	if err := c.cart.Close(ctx); err != nil {
		c.logger.Warn("checkout: remote cart not closed", "error", err)
	}
	c.cart.Clear(ctx)
	return true
}

// Ticket returns the order ticket shown on success.
func (c *Checkout) Ticket() (receipt.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSuccess || c.order == nil {
		return receipt.Ticket{}, ErrInvalidState
	}
	return TicketFor(c.order), nil
}

// TicketFor builds the ticket of a placed order.
func TicketFor(order *PlacedOrder) receipt.Ticket {
	lines := make([]receipt.TicketLine, 0, len(order.Lines))
	for _, item := range order.Lines {
		lines = append(lines, receipt.TicketLine{
			Title:    item.Product.Title,
			Option:   item.Variant.Option1Value,
			Quantity: item.Quantity,
			Total:    item.LineTotal(),
		})
	}
	return receipt.Ticket{
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		Lines:        lines,
		Total:        order.Total,
		CreatedAt:    order.CreatedAt,
	}
}

func (c *Checkout) currentState() CheckoutState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Checkout) publish(ctx context.Context, topic, key string, event entity.Event) {
	if err := c.publisher.PublishEvent(ctx, topic, key, event); err != nil {
		c.logger.Warn("checkout: event not published", "topic", topic, "key", key, "error", err)
	}
}

func orderItems(orderID string, items []entity.CartItem) []entity.OrderItemRecord {
	out := make([]entity.OrderItemRecord, 0, len(items))
	for _, item := range items {
		out = append(out, entity.OrderItemRecord{
			OrderID:   entity.RecordID(orderID),
			ProductID: entity.RawID(item.Product.ID),
			VariantID: entity.RawID(remoteVariantID(item)),
			Quantity:  item.Quantity,
			UnitPrice: floatPtr(item.Variant.Price),
			LineTotal: floatPtr(item.LineTotal()),
			Currency:  entity.DefaultCurrency,
		})
	}
	return out
}

func eventLines(items []entity.CartItem) []entity.EventLine {
	out := make([]entity.EventLine, 0, len(items))
	for _, item := range items {
		out = append(out, entity.EventLine{
			ProductID: item.Product.ID,
			VariantID: remoteVariantID(item),
			Title:     item.Product.Title,
			Option:    item.Variant.Option1Value,
			Quantity:  item.Quantity,
			UnitPrice: item.Variant.Price.InexactFloat64(),
			LineTotal: item.LineTotal().InexactFloat64(),
		})
	}
	return out
}

func floatPtr(d decimal.Decimal) *float64 {
	f := d.Round(2).InexactFloat64()
	return &f
}
