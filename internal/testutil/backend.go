// Package testutil provides an in-memory stand-in for the item API, used by
// service and HTTP tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/repository"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("testutil: injected failure")

// Backend implements every repository port in memory. Fail and Calls are
// keyed by operation name, e.g. "CreateCart" or "UpdateStatus".
type Backend struct {
	mu sync.Mutex

	nextID int
	fail   map[string]error
	calls  map[string]int

	Carts      map[string]*entity.CartRecord
	CartItems  map[string]*entity.CartItemRecord
	Orders     map[string]*entity.OrderRecord
	OrderItems []entity.OrderItemRecord
	Deliveries []entity.OrderDeliveryRecord
	Billings   []entity.OrderBillingRecord
	Customers  []entity.CustomerRecord
	Statuses   map[string][]repository.StatusUpdate
	Rows       map[string][]map[string]any

	// CreateCartGate, when set, is received from before a cart is created.
	CreateCartGate chan struct{}
}

var (
	_ repository.CartRepository     = (*Backend)(nil)
	_ repository.OrderRepository    = (*Backend)(nil)
	_ repository.CustomerRepository = (*Backend)(nil)
	_ repository.CatalogSource      = (*Backend)(nil)
)

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		fail:      map[string]error{},
		calls:     map[string]int{},
		Carts:     map[string]*entity.CartRecord{},
		CartItems: map[string]*entity.CartItemRecord{},
		Orders:    map[string]*entity.OrderRecord{},
		Statuses:  map[string][]repository.StatusUpdate{},
		Rows:      map[string][]map[string]any{},
	}
}

// Fail makes op return err (ErrInjected when err is nil) until Recover.
func (b *Backend) Fail(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[op] = err
}

func (b *Backend) Recover(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fail, op)
}

// Calls returns how many times op was invoked, failed calls included.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Locked runs fn while holding the backend lock, for consistent reads of
// the exported maps.
func (b *Backend) Locked(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

// SetRows replaces the catalog rows of a collection.
func (b *Backend) SetRows(collection string, rows []map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Rows[collection] = rows
}

// ItemsOfCart returns the remote lines of cartID.
func (b *Backend) ItemsOfCart(cartID string) []entity.CartItemRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.itemsOfCartLocked(cartID)
}

func (b *Backend) itemsOfCartLocked(cartID string) []entity.CartItemRecord {
	var out []entity.CartItemRecord
	for i := 1; i <= b.nextID; i++ {
		if item, ok := b.CartItems[strconv.Itoa(i)]; ok && item.CartID.String() == cartID {
			out = append(out, *item)
		}
	}
	return out
}

// begin records a call and returns the injected error, if any. Caller holds mu.
func (b *Backend) begin(op string) error {
	b.calls[op]++
	return b.fail[op]
}

func (b *Backend) newID() string {
	b.nextID++
	return strconv.Itoa(b.nextID)
}

func (b *Backend) CreateCart(_ context.Context, status, currency string) (*entity.CartRecord, error) {
	if b.CreateCartGate != nil {
		<-b.CreateCartGate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("CreateCart"); err != nil {
		return nil, err
	}
	cart := &entity.CartRecord{ID: entity.RecordID("cart-" + b.newID()), Status: status, Currency: currency}
	b.Carts[cart.ID.String()] = cart
	copied := *cart
	return &copied, nil
}

func (b *Backend) ListItems(_ context.Context, cartID string) ([]entity.CartItemRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("ListItems"); err != nil {
		return nil, err
	}
	return b.itemsOfCartLocked(cartID), nil
}

func (b *Backend) AddItem(_ context.Context, item entity.CartItemRecord) (*entity.CartItemRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("AddItem"); err != nil {
		return nil, err
	}
	item.ID = entity.RecordID(b.newID())
	b.CartItems[item.ID.String()] = &item
	copied := item
	return &copied, nil
}

func (b *Backend) UpdateItemQuantity(_ context.Context, itemID string, quantity int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("UpdateItemQuantity"); err != nil {
		return err
	}
	item, ok := b.CartItems[itemID]
	if !ok {
		return fmt.Errorf("cart item %s not found", itemID)
	}
	item.Quantity = float64(quantity)
	return nil
}

func (b *Backend) RemoveItem(_ context.Context, itemID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("RemoveItem"); err != nil {
		return err
	}
	delete(b.CartItems, itemID)
	return nil
}

func (b *Backend) CloseCart(_ context.Context, cartID, status string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("CloseCart"); err != nil {
		return err
	}
	cart, ok := b.Carts[cartID]
	if !ok {
		return fmt.Errorf("cart %s not found", cartID)
	}
	cart.Status = status
	return nil
}

func (b *Backend) CreateOrder(_ context.Context, order entity.OrderRecord) (*entity.OrderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("CreateOrder"); err != nil {
		return nil, err
	}
	order.ID = entity.RecordID("order-" + b.newID())
	b.Orders[order.ID.String()] = &order
	copied := order
	return &copied, nil
}

func (b *Backend) CreateItems(_ context.Context, items []entity.OrderItemRecord) ([]entity.OrderItemRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("CreateItems"); err != nil {
		return nil, err
	}
	out := make([]entity.OrderItemRecord, 0, len(items))
	for _, item := range items {
		item.ID = entity.RecordID(b.newID())
		b.OrderItems = append(b.OrderItems, item)
		out = append(out, item)
	}
	return out, nil
}

func (b *Backend) CreateDelivery(_ context.Context, delivery entity.OrderDeliveryRecord) (*entity.OrderDeliveryRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("CreateDelivery"); err != nil {
		return nil, err
	}
	delivery.ID = entity.RecordID(b.newID())
	b.Deliveries = append(b.Deliveries, delivery)
	return &delivery, nil
}

func (b *Backend) CreateBilling(_ context.Context, billing entity.OrderBillingRecord) (*entity.OrderBillingRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("CreateBilling"); err != nil {
		return nil, err
	}
	billing.ID = entity.RecordID(b.newID())
	b.Billings = append(b.Billings, billing)
	return &billing, nil
}

func (b *Backend) UpdateStatus(_ context.Context, orderID string, update repository.StatusUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("UpdateStatus"); err != nil {
		return err
	}
	order, ok := b.Orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	order.Status = update.Status
	order.PaymentStatus = update.PaymentStatus
	if update.PaymentReference != "" {
		order.PaymentReference = update.PaymentReference
	}
	b.Statuses[orderID] = append(b.Statuses[orderID], update)
	return nil
}

func (b *Backend) FindIDByNumber(_ context.Context, orderNumber string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("FindIDByNumber"); err != nil {
		return "", err
	}
	for id, order := range b.Orders {
		if order.OrderNumber == orderNumber {
			return id, nil
		}
	}
	return "", nil
}

func (b *Backend) GetDetails(_ context.Context, orderID string) (*entity.OrderDetails, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("GetDetails"); err != nil {
		return nil, err
	}
	order, ok := b.Orders[orderID]
	if !ok {
		return nil, nil
	}
	details := &entity.OrderDetails{OrderRecord: *order}
	for _, item := range b.OrderItems {
		if item.OrderID == order.ID {
			details.Items = append(details.Items, item)
		}
	}
	for i := range b.Deliveries {
		if b.Deliveries[i].OrderID == order.ID {
			d := b.Deliveries[i]
			details.Delivery = &d
		}
	}
	for i := range b.Customers {
		if b.Customers[i].ID == order.CustomerID {
			c := b.Customers[i]
			details.Customer = &c
		}
	}
	return details, nil
}

func (b *Backend) FindByEmail(_ context.Context, email string) (*entity.CustomerRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("FindByEmail"); err != nil {
		return nil, err
	}
	for _, c := range b.Customers {
		if c.Email == email {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (b *Backend) Create(_ context.Context, customer entity.CustomerRecord) (*entity.CustomerRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("CreateCustomer"); err != nil {
		return nil, err
	}
	customer.ID = entity.RecordID("cust-" + b.newID())
	b.Customers = append(b.Customers, customer)
	return &customer, nil
}

func (b *Backend) FetchRows(_ context.Context, collection string) ([]map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("FetchRows:" + collection); err != nil {
		return nil, err
	}
	return b.Rows[collection], nil
}

func (b *Backend) FetchRowsByID(_ context.Context, collection string, ids []string, _ []string) ([]map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin("FetchRowsByID:" + collection); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []map[string]any
	for _, row := range b.Rows[collection] {
		if wanted[entity.IDOf(row["id"])] {
			out = append(out, row)
		}
	}
	return out, nil
}
