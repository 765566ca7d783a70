package repository

import (
	"context"

	"github.com/GueYatma/koktek-front/internal/entity"
)

// CartRepository persists the remote cart mirror.
type CartRepository interface {
	CreateCart(ctx context.Context, status, currency string) (*entity.CartRecord, error)
	ListItems(ctx context.Context, cartID string) ([]entity.CartItemRecord, error)
	AddItem(ctx context.Context, item entity.CartItemRecord) (*entity.CartItemRecord, error)
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error
	RemoveItem(ctx context.Context, itemID string) error
	// CloseCart flags the cart with a terminal status (e.g. "converted").
	CloseCart(ctx context.Context, cartID, status string) error
}

// OrderRepository handles persistence for the order aggregate.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order entity.OrderRecord) (*entity.OrderRecord, error)
	CreateItems(ctx context.Context, items []entity.OrderItemRecord) ([]entity.OrderItemRecord, error)
	CreateDelivery(ctx context.Context, delivery entity.OrderDeliveryRecord) (*entity.OrderDeliveryRecord, error)
	CreateBilling(ctx context.Context, billing entity.OrderBillingRecord) (*entity.OrderBillingRecord, error)
	UpdateStatus(ctx context.Context, orderID string, update StatusUpdate) error
	// FindIDByNumber returns "" without error when no order carries that number.
	FindIDByNumber(ctx context.Context, orderNumber string) (string, error)
	// GetDetails returns nil without error when the order does not exist.
	GetDetails(ctx context.Context, orderID string) (*entity.OrderDetails, error)
}

// StatusUpdate is the only mutation allowed on an order once its items exist.
type StatusUpdate struct {
	Status           string `json:"status"`
	PaymentStatus    string `json:"payment_status"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

// CustomerRepository looks customers up by email and creates them.
type CustomerRepository interface {
	// FindByEmail returns nil without error when no customer matches.
	FindByEmail(ctx context.Context, email string) (*entity.CustomerRecord, error)
	Create(ctx context.Context, customer entity.CustomerRecord) (*entity.CustomerRecord, error)
}

// CatalogSource returns raw rows of a catalog collection. Rows are left
// untyped: the backend's field names vary and are normalised by the catalog package.
type CatalogSource interface {
	FetchRows(ctx context.Context, collection string) ([]map[string]any, error)
	// FetchRowsByID returns only the rows whose id is in ids, restricted to fields.
	FetchRowsByID(ctx context.Context, collection string, ids []string, fields []string) ([]map[string]any, error)
}

// EventStore journals order events per stream.
type EventStore interface {
	// AppendEvent stores record as the next version of its stream. A record
	// whose ID is already stored is skipped and reported as not appended.
	AppendEvent(ctx context.Context, record entity.EventStoreRecord) (appended bool, err error)
	LoadEvents(ctx context.Context, streamID string) ([]entity.EventStoreRecord, error)
}
