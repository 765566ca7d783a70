package catalog

import "strings"

// SummaryFields is the field selection needed by SummarizeProduct.
var SummaryFields = []string{"id", "title", "name", "image_url", "image", "imageUrl"}

// ProductSummary is what an order line shows of its product.
type ProductSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url,omitempty"`
}

// VariantSummary is what an order line shows of its variant.
type VariantSummary struct {
	ID          string `json:"id"`
	SKU         string `json:"sku,omitempty"`
	OptionName  string `json:"option1_name,omitempty"`
	OptionValue string `json:"option1_value,omitempty"`
}

// SummarizeProduct reads a product row or expanded relation. Rows without
// an id are rejected; a missing title becomes "Produit <id>". The image is
// resolved without fallback.
func (r ImageResolver) SummarizeProduct(row map[string]any) (ProductSummary, bool) {
	id := productFields.ID.id(row)
	if id == "" {
		return ProductSummary{}, false
	}
	title := strings.TrimSpace(productFields.Title.str(row))
	if title == "" {
		title = "Produit " + id
	}
	var image string
	if values := extractImageValues(productFields.Image.pick(row)); len(values) > 0 {
		image = r.resolve(values[0], "")
	}
	return ProductSummary{ID: id, Title: title, ImageURL: image}, true
}

// SummarizeVariant reads an expanded variant relation.
func SummarizeVariant(row map[string]any) (VariantSummary, bool) {
	id := variantFields.ID.id(row)
	if id == "" {
		return VariantSummary{}, false
	}
	return VariantSummary{
		ID:          id,
		SKU:         strings.TrimSpace(variantFields.SKU.str(row)),
		OptionName:  strings.TrimSpace(variantFields.OptionName.str(row)),
		OptionValue: strings.TrimSpace(variantFields.OptionValue.str(row)),
	}, true
}
