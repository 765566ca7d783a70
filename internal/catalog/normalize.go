package catalog

import (
	"strings"

	"github.com/GueYatma/koktek-front/internal/entity"
)

func mapCategory(row map[string]any) entity.Category {
	name := categoryFields.Name.str(row)
	slug := categoryFields.Slug.str(row)
	if slug == "" {
		slug = Slugify(name)
	}
	return entity.Category{
		ID:       categoryFields.ID.id(row),
		Name:     name,
		Slug:     slug,
		ImageURL: categoryFields.Image.str(row),
	}
}

func (r ImageResolver) mapVariant(row map[string]any, parentID string) entity.Variant {
	v := entity.Variant{
		ID:           variantFields.ID.id(row),
		ProductID:    variantFields.ProductID.id(row),
		SKU:          variantFields.SKU.str(row),
		Option1Name:  variantFields.OptionName.str(row),
		Option1Value: variantFields.OptionValue.str(row),
		Price:        variantFields.Price.number(row),
		VendorID:     variantFields.VendorID.str(row),
	}
	if v.ProductID == "" {
		v.ProductID = parentID
	}
	v.StockQuantity = int(variantFields.Stock.number(row).IntPart())
	if image := variantFields.Image.str(row); image != "" {
		v.ImageURL = r.resolve(image, "")
	}
	return v
}

// nestedVariants returns the variant objects embedded in a product row, if any.
// Relations that only list ids are ignored; those come from the flat collection.
func (r ImageResolver) nestedVariants(row map[string]any, productID string) []entity.Variant {
	list, ok := productFields.Variants.pick(row).([]any)
	if !ok {
		return nil
	}
	var out []entity.Variant
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if v := r.mapVariant(obj, productID); v.ID != "" {
			out = append(out, v)
		}
	}
	return out
}

func (r ImageResolver) mapProduct(row map[string]any, categories map[string]entity.Category) entity.Product {
	title := productFields.Title.str(row)
	slug := productFields.Slug.str(row)
	if slug == "" {
		slug = Slugify(title)
	}
	p := entity.Product{
		ID:          productFields.ID.id(row),
		Slug:        slug,
		Title:       title,
		Description: productFields.Description.str(row),
		BasePrice:   productFields.BasePrice.number(row),
		RetailPrice: productFields.RetailPrice.number(row),
		Status:      productFields.Status.str(row),
		Brand:       strings.TrimSpace(productFields.Brand.str(row)),
	}
	if p.Brand == "" {
		p.Brand = entity.DefaultBrand
	}

	rawCategory := productFields.Category.pick(row)
	p.CategoryID = entity.IDOf(rawCategory)
	if c, ok := categories[p.CategoryID]; ok {
		p.Category = &c
	} else if obj, ok := rawCategory.(map[string]any); ok {
		c := mapCategory(obj)
		p.Category = &c
	} else if name := productFields.CategoryName.str(row); name != "" {
		p.Category = &entity.Category{ID: p.CategoryID, Name: name, Slug: Slugify(name)}
	}

	main := r.resolve(productFields.Image.str(row), r.Fallback)
	for _, raw := range extractImageValues(productFields.Gallery.pick(row)) {
		if u := r.resolve(raw, ""); u != "" {
			p.Images = append(p.Images, u)
		}
	}
	if len(p.Images) == 0 && main != "" {
		p.Images = []string{main}
	}
	if len(p.Images) > 0 {
		p.ImageURL = p.Images[0]
	} else {
		p.ImageURL = main
	}

	p.Variants = r.nestedVariants(row, p.ID)
	return p
}

// IsPublished reports whether a product is visible: empty status or
// "published" in any case.
func IsPublished(p entity.Product) bool {
	status := strings.TrimSpace(p.Status)
	return status == "" || strings.EqualFold(status, "published")
}
