package catalog

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/GueYatma/koktek-front/internal/entity"
)

// aliases lists, for one canonical field, the backend field names that may
// carry it, in order of precedence.
type aliases []string

// Alias tables. The backend schema changed names several times (and differs
// between collections); these tables are the only place that knows about it.
var (
	categoryFields = struct {
		ID, Name, Slug, Image aliases
	}{
		ID:    aliases{"id", "ID", "Id", "category_id", "categoryId"},
		Name:  aliases{"name", "Name", "title", "Title", "nom", "Nom"},
		Slug:  aliases{"slug", "Slug"},
		Image: aliases{"image_url", "imageUrl", "image"},
	}

	variantFields = struct {
		ID, ProductID, SKU, OptionName, OptionValue, Price, Stock, VendorID, Image aliases
	}{
		ID:          aliases{"id", "ID", "Id"},
		ProductID:   aliases{"product_id", "productId", "products_id", "productsId", "product", "products"},
		SKU:         aliases{"sku", "SKU"},
		OptionName:  aliases{"option1_name", "optionName", "option_name", "option"},
		OptionValue: aliases{"option1_value", "optionValue", "option_value", "value"},
		Price:       aliases{"price", "Price", "base_price"},
		Stock:       aliases{"stock_quantity", "stockQuantity", "quantity"},
		VendorID:    aliases{"cj_vid", "cjVid", "vendor_id"},
		Image:       aliases{"image_url", "imageUrl", "image"},
	}

	productFields = struct {
		ID, Title, Slug, Description, BasePrice, RetailPrice, Status, Category, CategoryName, Brand, Image, Gallery, Variants aliases
	}{
		ID:           aliases{"id", "ID", "Id"},
		Title:        aliases{"title", "name"},
		Slug:         aliases{"slug"},
		Description:  aliases{"description"},
		BasePrice:    aliases{"base_price", "basePrice", "price", "Price"},
		RetailPrice:  aliases{"retail_price", "retailPrice", "retail", "RetailPrice", "base_price", "basePrice", "price", "Price"},
		Status:       aliases{"status", "Status", "STATUS", "state", "State", "STATE"},
		Category:     aliases{"categories_id", "categoriesId", "category_id", "categoryId", "categorie_id", "categorieId", "category", "categories"},
		CategoryName: aliases{"category_name"},
		Brand:        aliases{"brand", "Brand", "marque", "Marque"},
		Image:        aliases{"image", "image_url", "imageUrl", "Image"},
		Gallery:      aliases{"images", "image_urls", "gallery", "Images"},
		Variants:     aliases{"product_variants", "variants", "Variants"},
	}
)

// pick returns the first non-null value among the aliases.
func (a aliases) pick(row map[string]any) any {
	for _, name := range a {
		if v, ok := row[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

func (a aliases) str(row map[string]any) string {
	return toString(a.pick(row))
}

func (a aliases) id(row map[string]any) string {
	return entity.IDOf(a.pick(row))
}

func (a aliases) number(row map[string]any) decimal.Decimal {
	return toDecimal(a.pick(row))
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

func toDecimal(v any) decimal.Decimal {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(val)); err == nil {
			return d
		}
	case bool:
		if val {
			return decimal.NewFromInt(1)
		}
	}
	return decimal.Zero
}
