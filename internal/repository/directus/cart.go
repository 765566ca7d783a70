package directus

import (
	"context"
	"fmt"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/repository"
)

const (
	collectionCarts     = "carts"
	collectionCartItems = "cart_items"
)

type cartRepository struct {
	c *Client
}

// NewCartRepository creates a CartRepository backed by the item API.
func NewCartRepository(c *Client) repository.CartRepository {
	return &cartRepository{c: c}
}

func (r *cartRepository) CreateCart(ctx context.Context, status, currency string) (*entity.CartRecord, error) {
	if status == "" {
		status = entity.CartStatusOpen
	}
	if currency == "" {
		currency = entity.DefaultCurrency
	}
	cart, err := createOne[entity.CartRecord](ctx, r.c, collectionCarts, map[string]any{
		"status":      status,
		"currency":    currency,
		"customer_id": nil,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	if cart.ID == "" {
		return nil, fmt.Errorf("failed to create cart: backend returned no id")
	}
	return cart, nil
}

func (r *cartRepository) ListItems(ctx context.Context, cartID string) ([]entity.CartItemRecord, error) {
	params := eq("cart_id", cartID)
	params.Set("fields", "*")
	params.Set("limit", "-1")
	items, err := list[entity.CartItemRecord](ctx, r.c, collectionCartItems, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items for %s: %w", cartID, err)
	}
	return items, nil
}

func (r *cartRepository) AddItem(ctx context.Context, item entity.CartItemRecord) (*entity.CartItemRecord, error) {
	currency := item.Currency
	if currency == "" {
		currency = entity.DefaultCurrency
	}
	var variantID any
	if item.VariantID != "" {
		variantID = item.VariantID.String()
	}
	created, err := createOne[entity.CartItemRecord](ctx, r.c, collectionCartItems, map[string]any{
		"cart_id":    item.CartID.String(),
		"product_id": item.ProductID.String(),
		"variant_id": variantID,
		"quantity":   item.Quantity,
		"unit_price": item.UnitPrice,
		"currency":   currency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return created, nil
}

func (r *cartRepository) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error {
	if err := updateOne(ctx, r.c, collectionCartItems, itemID, map[string]any{"quantity": quantity}); err != nil {
		return fmt.Errorf("failed to update cart item %s: %w", itemID, err)
	}
	return nil
}

func (r *cartRepository) RemoveItem(ctx context.Context, itemID string) error {
	if err := deleteOne(ctx, r.c, collectionCartItems, itemID); err != nil {
		return fmt.Errorf("failed to remove cart item %s: %w", itemID, err)
	}
	return nil
}

func (r *cartRepository) CloseCart(ctx context.Context, cartID, status string) error {
	if status == "" {
		status = entity.CartStatusConverted
	}
	if err := updateOne(ctx, r.c, collectionCarts, cartID, map[string]any{"status": status}); err != nil {
		return fmt.Errorf("failed to close cart %s: %w", cartID, err)
	}
	return nil
}
