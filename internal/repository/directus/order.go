package directus

import (
	"context"
	"fmt"
	"net/url"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/repository"
)

const (
	collectionOrders        = "orders"
	collectionOrderItems    = "order_items"
	collectionOrderDelivery = "order_delivery"
	collectionOrderBilling  = "order_billing"
)

// orderDetailFields expands customer, items and delivery in one request.
const orderDetailFields = "*,order_items.*,order_delivery.*,customer_id.*"

type orderRepository struct {
	c *Client
}

// NewOrderRepository creates an OrderRepository backed by the item API.
func NewOrderRepository(c *Client) repository.OrderRepository {
	return &orderRepository{c: c}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *orderRepository) CreateOrder(ctx context.Context, order entity.OrderRecord) (*entity.OrderRecord, error) {
	status := order.Status
	if status == "" {
		status = entity.OrderStatusPendingPayment
	}
	currency := order.Currency
	if currency == "" {
		currency = entity.DefaultCurrency
	}
	created, err := createOne[entity.OrderRecord](ctx, r.c, collectionOrders, map[string]any{
		"order_number":   order.OrderNumber,
		"cart_id":        nullable(order.CartID),
		"customer_id":    nullable(order.CustomerID.String()),
		"status":         status,
		"payment_status": nullable(order.PaymentStatus),
		"currency":       currency,
		"subtotal":       order.Subtotal,
		"total":          order.Total,
		"item_count":     order.ItemCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("failed to create order: backend returned no id")
	}
	return created, nil
}

func (r *orderRepository) CreateItems(ctx context.Context, items []entity.OrderItemRecord) ([]entity.OrderItemRecord, error) {
	if len(items) == 0 {
		return nil, nil
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		currency := item.Currency
		if currency == "" {
			currency = entity.DefaultCurrency
		}
		payload = append(payload, map[string]any{
			"order_id":   item.OrderID.String(),
			"product_id": item.ProductID,
			"variant_id": item.VariantID,
			"quantity":   item.Quantity,
			"unit_price": item.UnitPrice,
			"line_total": item.LineTotal,
			"currency":   currency,
		})
	}
	created, err := createMany[entity.OrderItemRecord](ctx, r.c, collectionOrderItems, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}
	return created, nil
}

func (r *orderRepository) CreateDelivery(ctx context.Context, delivery entity.OrderDeliveryRecord) (*entity.OrderDeliveryRecord, error) {
	if delivery.Status == "" {
		delivery.Status = entity.DeliveryStatusPending
	}
	created, err := createOne[entity.OrderDeliveryRecord](ctx, r.c, collectionOrderDelivery, delivery)
	if err != nil {
		return nil, fmt.Errorf("failed to create order delivery: %w", err)
	}
	return created, nil
}

func (r *orderRepository) CreateBilling(ctx context.Context, billing entity.OrderBillingRecord) (*entity.OrderBillingRecord, error) {
	created, err := createOne[entity.OrderBillingRecord](ctx, r.c, collectionOrderBilling, billing)
	if err != nil {
		return nil, fmt.Errorf("failed to create order billing: %w", err)
	}
	return created, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, update repository.StatusUpdate) error {
	if err := updateOne(ctx, r.c, collectionOrders, orderID, update); err != nil {
		return fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	return nil
}

func (r *orderRepository) FindIDByNumber(ctx context.Context, orderNumber string) (string, error) {
	params := eq("order_number", orderNumber)
	params.Set("fields", "id")
	params.Set("limit", "1")
	rows, err := list[entity.OrderRecord](ctx, r.c, collectionOrders, params)
	if err != nil {
		return "", fmt.Errorf("failed to look up order %s: %w", orderNumber, err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].ID.String(), nil
}

func (r *orderRepository) GetDetails(ctx context.Context, orderID string) (*entity.OrderDetails, error) {
	params := url.Values{}
	params.Set("fields", orderDetailFields)
	details, err := getOne[entity.OrderDetails](ctx, r.c, collectionOrders, orderID, params)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	return details, nil
}
