package entity

import (
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used for every cart and order created by the storefront.
const DefaultCurrency = "EUR"

// DefaultBrand is shown when the backend has no brand for a product.
const DefaultBrand = "Générique"

// Category groups products for catalog filtering.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ImageURL string `json:"image_url"`
}

// Variant is a purchasable configuration of a product (one option axis).
type Variant struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	SKU           string          `json:"sku"`
	Option1Name   string          `json:"option1_name"`
	Option1Value  string          `json:"option1_value"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	VendorID      string          `json:"cj_vid"`
	ImageURL      string          `json:"image_url,omitempty"`
}

// Product represents a product in the store.
type Product struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
	RetailPrice decimal.Decimal `json:"retail_price"`
	Status      string          `json:"status,omitempty"`
	CategoryID  string          `json:"category_id"`
	Category    *Category       `json:"category,omitempty"`
	Brand       string          `json:"brand"`
	ImageURL    string          `json:"image_url"`
	Images      []string        `json:"images,omitempty"`
	Variants    []Variant       `json:"product_variants,omitempty"`
}

// CartItem is one line of the local cart. There is at most one per variant.
type CartItem struct {
	Product  Product `json:"product"`
	Variant  Variant `json:"variant"`
	Quantity int     `json:"quantity"`
}

// Key is the identifier used to pair a local line with its remote mirror record.
func (i CartItem) Key() string {
	return ItemKey(i.Variant.ID, i.Product.ID)
}

// LineTotal is unit price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Variant.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemKey derives the mirror key: the variant id, or "product:<id>" when no variant applies.
func ItemKey(variantID, productID string) string {
	if variantID != "" {
		return variantID
	}
	if productID != "" {
		return "product:" + productID
	}
	return ""
}

// CartTotal sums price * quantity across items, rounded to cents.
func CartTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(2)
}

// CartItemCount sums quantities across items.
func CartItemCount(items []CartItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// AuthUser is a self-asserted guest profile. It is a cache, not an identity.
type AuthUser struct {
	Email        string `json:"email"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Birthdate    string `json:"birthdate,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Phone        string `json:"phone,omitempty"`
	AddressLine1 string `json:"addressLine1,omitempty"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	Zip          string `json:"zip,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
}

// StoredOrder is a receipt kept in the per-email order history.
type StoredOrder struct {
	ID           string  `json:"id"`
	OrderNumber  string  `json:"orderNumber"`
	Total        float64 `json:"total"`
	ProductName  string  `json:"productName"`
	VariantName  string  `json:"variantName,omitempty"`
	VariantValue string  `json:"variantValue,omitempty"`
	ImageURL     string  `json:"imageUrl,omitempty"`
	CustomerName string  `json:"customerName,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}
