package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GueYatma/koktek-front/internal/entity"
)

// Keys kept from the storefront's browser storage layout.
const (
	KeyCartItems = "koktek_cart_v1"
	KeyCartID    = "koktek_cart_id_v1"
)

// CartStorage caches the cart for an instant restore.
type CartStorage struct {
	store Store
}

// NewCartStorage wraps a (session-scoped) store.
func NewCartStorage(store Store) *CartStorage {
	return &CartStorage{store: store}
}

// ReadItems returns the cached items. Missing, corrupt or non-array payloads
// yield an empty cart; entries without product, variant or a positive
// quantity are dropped.
func (s *CartStorage) ReadItems(ctx context.Context) []entity.CartItem {
	raw, err := s.store.Get(ctx, KeyCartItems)
	if err != nil || len(raw) == 0 {
		return nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil
	}
	items := make([]entity.CartItem, 0, len(rows))
	for _, row := range rows {
		var item entity.CartItem
		if err := json.Unmarshal(row, &item); err != nil {
			continue
		}
		if item.Product.ID == "" || item.Variant.ID == "" || item.Quantity <= 0 {
			continue
		}
		items = append(items, item)
	}
	return items
}

// WriteItems replaces the cached items.
func (s *CartStorage) WriteItems(ctx context.Context, items []entity.CartItem) error {
	if items == nil {
		items = []entity.CartItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart items: %w", err)
	}
	return s.store.Set(ctx, KeyCartItems, payload)
}

// ReadCartID returns the remote cart id, or "" when none is known.
func (s *CartStorage) ReadCartID(ctx context.Context) string {
	raw, err := s.store.Get(ctx, KeyCartID)
	if err != nil {
		return ""
	}
	return string(raw)
}

// WriteCartID remembers the remote cart id.
func (s *CartStorage) WriteCartID(ctx context.Context, cartID string) error {
	return s.store.Set(ctx, KeyCartID, []byte(cartID))
}

// Clear forgets both the items and the cart id.
func (s *CartStorage) Clear(ctx context.Context) error {
	return errors.Join(
		s.store.Delete(ctx, KeyCartItems),
		s.store.Delete(ctx, KeyCartID),
	)
}
