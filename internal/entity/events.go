package entity

import (
	"encoding/json"
	"time"
)

// Event represents a domain event published to the message broker.
type Event interface {
	EventType() string
}

// Topics events are published on.
const (
	TopicOrdersPlaced      = "orders.placed"
	TopicOrdersCashPending = "orders.cash_pending"
	TopicOrdersPaid        = "orders.paid"
)

// EventLine is an order line carried in events and webhook notifications.
type EventLine struct {
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id,omitempty"`
	Title     string  `json:"title"`
	Option    string  `json:"option,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// OrderPlaced is emitted when checkout has materialised the order aggregate.
type OrderPlaced struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	CustomerID  string      `json:"customer_id"`
	Email       string      `json:"email"`
	Items       []EventLine `json:"items"`
	Total       float64     `json:"total"`
	PlacedAt    time.Time   `json:"placed_at"`
}

func (e OrderPlaced) EventType() string { return "OrderPlaced" }

// OrderCashPending is emitted when the buyer chose to pay cash in store.
type OrderCashPending struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Total       float64   `json:"total"`
	At          time.Time `json:"at"`
}

func (e OrderCashPending) EventType() string { return "OrderCashPending" }

// OrderPaid is emitted when a vendor confirmed cash receipt.
type OrderPaid struct {
	OrderID   string    `json:"order_id"`
	Reference string    `json:"payment_reference"`
	Total     float64   `json:"total"`
	PaidAt    time.Time `json:"paid_at"`
}

func (e OrderPaid) EventType() string { return "OrderPaid" }

// EventStoreRecord is one event journaled on an order stream. Versions start
// at 1 and increase by one per stream.
type EventStoreRecord struct {
	ID         string          `json:"id"`
	StreamID   string          `json:"stream_id"`
	Version    int             `json:"version"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}
