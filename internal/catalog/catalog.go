package catalog

import (
	"strings"

	"github.com/GueYatma/koktek-front/internal/entity"
)

// Catalog is an immutable, normalised snapshot of the backend catalog.
type Catalog struct {
	Products   []entity.Product  `json:"products"`
	Categories []entity.Category `json:"categories"`
}

// ProductByID returns the product with that id.
func (c *Catalog) ProductByID(id string) (entity.Product, bool) {
	for _, p := range c.Products {
		if p.ID == id {
			return p, true
		}
	}
	return entity.Product{}, false
}

// ProductBySlug returns the product with that slug.
func (c *Catalog) ProductBySlug(slug string) (entity.Product, bool) {
	for _, p := range c.Products {
		if p.Slug == slug {
			return p, true
		}
	}
	return entity.Product{}, false
}

func (c *Catalog) CategoryByID(id string) (entity.Category, bool) {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return entity.Category{}, false
}

func (c *Catalog) VariantsByProduct(productID string) []entity.Variant {
	p, ok := c.ProductByID(productID)
	if !ok {
		return nil
	}
	return p.Variants
}

// VariantByID searches every product for the variant.
func (c *Catalog) VariantByID(id string) (entity.Product, entity.Variant, bool) {
	for _, p := range c.Products {
		for _, v := range p.Variants {
			if v.ID == id {
				return p, v, true
			}
		}
	}
	return entity.Product{}, entity.Variant{}, false
}

// Filter returns products matching category (id or slug) and brand
// (case-insensitive). Empty arguments match everything.
func (c *Catalog) Filter(category, brand string) []entity.Product {
	var out []entity.Product
	for _, p := range c.Products {
		if category != "" && !matchesCategory(p, category) {
			continue
		}
		if brand != "" && !strings.EqualFold(p.Brand, brand) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesCategory(p entity.Product, category string) bool {
	if p.CategoryID == category {
		return true
	}
	return p.Category != nil && (p.Category.Slug == category || p.Category.ID == category)
}

// Brands lists distinct brands in catalog order.
func (c *Catalog) Brands() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.Products {
		if !seen[p.Brand] {
			seen[p.Brand] = true
			out = append(out, p.Brand)
		}
	}
	return out
}
