package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GueYatma/koktek-front/internal/entity"
)

// KeyCustomerOrders holds every email's order history in one document.
const KeyCustomerOrders = "koktek_customer_orders_v1"

// OrderHistory keeps receipts per normalised email address.
type OrderHistory struct {
	mu    sync.Mutex
	store Store
}

func NewOrderHistory(store Store) *OrderHistory {
	return &OrderHistory{store: store}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *OrderHistory) readAll(ctx context.Context) map[string][]entity.StoredOrder {
	raw, err := h.store.Get(ctx, KeyCustomerOrders)
	if err != nil {
		return map[string][]entity.StoredOrder{}
	}
	var byEmail map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byEmail); err != nil || byEmail == nil {
		return map[string][]entity.StoredOrder{}
	}
	all := make(map[string][]entity.StoredOrder, len(byEmail))
	for email, rows := range byEmail {
		var orders []entity.StoredOrder
		if err := json.Unmarshal(rows, &orders); err != nil {
			continue
		}
		all[email] = orders
	}
	return all
}

// ForEmail returns the orders of email, newest first.
func (h *OrderHistory) ForEmail(ctx context.Context, email string) []entity.StoredOrder {
	key := normalizeEmail(email)
	if key == "" {
		return nil
	}
	h.mu.Lock()
	orders := h.readAll(ctx)[key]
	h.mu.Unlock()

	sorted := append([]entity.StoredOrder(nil), orders...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return parseTime(sorted[i].CreatedAt).After(parseTime(sorted[j].CreatedAt))
	})
	return sorted
}

// Save upserts order (matched by id or order number) into email's history.
func (h *OrderHistory) Save(ctx context.Context, email string, order entity.StoredOrder) error {
	key := normalizeEmail(email)
	if key == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	all := h.readAll(ctx)
	current := all[key]
	replaced := false
	for i, existing := range current {
		if existing.ID == order.ID || existing.OrderNumber == order.OrderNumber {
			current[i] = order
			replaced = true
			break
		}
	}
	if !replaced {
		current = append(current, order)
	}
	all[key] = current

	payload, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to marshal order history: %w", err)
	}
	return h.store.Set(ctx, KeyCustomerOrders, payload)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
