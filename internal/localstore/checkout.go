package localstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// KeyCheckout holds the checkout step and the order placed in it.
const KeyCheckout = "koktek_checkout_v1"

// CheckoutStorage keeps a session's checkout across restarts. The payload
// is owned by the checkout; this layer only stores it as JSON.
type CheckoutStorage struct {
	store Store
}

func NewCheckoutStorage(store Store) *CheckoutStorage {
	return &CheckoutStorage{store: store}
}

// Read decodes the saved checkout into v. It reports false when nothing
// usable is saved.
func (s *CheckoutStorage) Read(ctx context.Context, v any) bool {
	raw, err := s.store.Get(ctx, KeyCheckout)
	if err != nil || len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func (s *CheckoutStorage) Write(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout: %w", err)
	}
	return s.store.Set(ctx, KeyCheckout, payload)
}

func (s *CheckoutStorage) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, KeyCheckout)
}
