package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	rows  map[string][]map[string]any
	errs  map[string]error
	calls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		rows:  map[string][]map[string]any{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeSource) FetchRows(_ context.Context, collection string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[collection]++
	if err := f.errs[collection]; err != nil {
		return nil, err
	}
	return f.rows[collection], nil
}

func (f *fakeSource) FetchRowsByID(ctx context.Context, collection string, _ []string, _ []string) ([]map[string]any, error) {
	return f.FetchRows(ctx, collection)
}

func (f *fakeSource) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[collection]
}

var resolver = ImageResolver{AssetBase: "https://cms.test/assets", Fallback: FallbackImageURL}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Étui Élégant!":          "etui-elegant",
		"  Coque -- iPhone 15  ": "coque-iphone-15",
		"Chargeur 20W (USB-C)":   "chargeur-20w-usb-c",
		"":                       "",
		"!!!":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestImageResolver(t *testing.T) {
	assert.Equal(t, "https://x.test/a.jpg", resolver.Resolve("https://x.test/a.jpg"))
	assert.Equal(t, "HTTP://x.test/a.jpg", resolver.Resolve("HTTP://x.test/a.jpg"))
	assert.Equal(t, "https://cms.test/assets/abc-123", resolver.Resolve("abc-123"))
	assert.Equal(t, "https://cms.test/assets/abc-123", resolver.Resolve("/abc-123"))
	assert.Equal(t, FallbackImageURL, resolver.Resolve("  "))
}

func TestExtractImageValues(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"nil", nil, nil},
		{"plain", " a.jpg ", []string{"a.jpg"}},
		{"json array string", `["a","b"]`, []string{"a", "b"}},
		{"comma list", "a, b ,,c", []string{"a", "b", "c"}},
		{"array of files", []any{"a", map[string]any{"id": "f1"}, map[string]any{"url": "https://u"}}, []string{"a", "f1", "https://u"}},
		{"data wrapper", map[string]any{"data": []any{map[string]any{"path": "p1"}}}, []string{"p1"}},
		{"numeric id", map[string]any{"id": float64(7)}, []string{"7"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractImageValues(tt.in))
		})
	}
}

func TestLoadNormalisesAliases(t *testing.T) {
	src := newFakeSource()
	src.rows[CollectionProducts] = []map[string]any{
		{
			"ID":          float64(1),
			"name":        "Étui Élégant",
			"Price":       "39.90",
			"Marque":      "Koktek",
			"categoryId":  map[string]any{"id": "c1"},
			"STATUS":      "Published",
			"description": "cuir",
			"gallery":     `["img-1","https://cdn.test/2.jpg"]`,
		},
		{"id": "2", "title": "Brouillon", "status": "draft"},
		{"id": "3", "title": "Sans statut", "base_price": float64(5), "retail_price": float64(9)},
		{"title": "No id"},
	}
	src.rows[CollectionCategories] = []map[string]any{
		{"id": "c1", "Nom": "Coques"},
		{"id": "c2"},
	}
	src.rows[CollectionVariants] = []map[string]any{
		{"id": "v1", "productId": float64(1), "Price": float64(39.9), "stockQuantity": "4", "optionName": "Couleur", "optionValue": "Noir", "cjVid": "CJ1"},
		{"id": "v2", "product_id": "3", "price": "5"},
		{"id": "orphan"},
	}

	c, err := NewLoader(src, resolver, nil).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, c.Categories, 1)
	assert.Equal(t, "coques", c.Categories[0].Slug)

	require.Len(t, c.Products, 2)
	p := c.Products[0]
	assert.Equal(t, "1", p.ID)
	assert.Equal(t, "etui-elegant", p.Slug)
	assert.True(t, decimal.RequireFromString("39.90").Equal(p.BasePrice))
	assert.Equal(t, "Koktek", p.Brand)
	assert.Equal(t, "c1", p.CategoryID)
	require.NotNil(t, p.Category)
	assert.Equal(t, "Coques", p.Category.Name)
	assert.Equal(t, []string{"https://cms.test/assets/img-1", "https://cdn.test/2.jpg"}, p.Images)
	assert.Equal(t, "https://cms.test/assets/img-1", p.ImageURL)
	require.Len(t, p.Variants, 1)
	assert.Equal(t, "Couleur", p.Variants[0].Option1Name)
	assert.Equal(t, 4, p.Variants[0].StockQuantity)
	assert.Equal(t, "CJ1", p.Variants[0].VendorID)

	other := c.Products[1]
	assert.Equal(t, "Générique", other.Brand)
	assert.Equal(t, FallbackImageURL, other.ImageURL)
	assert.True(t, decimal.NewFromInt(9).Equal(other.RetailPrice))
	require.Len(t, other.Variants, 1)
}

func TestLoadNestedVariantsInheritParent(t *testing.T) {
	src := newFakeSource()
	src.rows[CollectionProducts] = []map[string]any{{
		"id":    "p1",
		"title": "Câble",
		"product_variants": []any{
			map[string]any{"id": "nv1", "price": float64(12)},
			"nv-id-only",
		},
	}}
	src.rows[CollectionVariants] = []map[string]any{{"id": "flat", "product_id": "p1"}}

	c, err := NewLoader(src, resolver, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Products, 1)
	require.Len(t, c.Products[0].Variants, 1)
	assert.Equal(t, "nv1", c.Products[0].Variants[0].ID)
	assert.Equal(t, "p1", c.Products[0].Variants[0].ProductID)
}

func TestLoadCategoryFallbacks(t *testing.T) {
	src := newFakeSource()
	src.rows[CollectionProducts] = []map[string]any{{"id": "p1", "title": "A"}}
	src.errs[CollectionCategories] = errors.New("forbidden")
	src.rows[CollectionCategoriesLegacy] = []map[string]any{{"id": "c9", "title": "Anciens"}}
	src.errs[CollectionVariants] = errors.New("boom")

	c, err := NewLoader(src, resolver, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Categories, 1)
	assert.Equal(t, "Anciens", c.Categories[0].Name)
	assert.Len(t, c.Products, 1)
	assert.Empty(t, c.Products[0].Variants)
}

func TestLoadProductsFailure(t *testing.T) {
	src := newFakeSource()
	src.errs[CollectionProducts] = errors.New("down")

	l := NewLoader(src, resolver, nil)
	_, err := l.Catalog(context.Background())
	require.Error(t, err)

	delete(src.errs, CollectionProducts)
	src.rows[CollectionProducts] = []map[string]any{{"id": "p1", "title": "A"}}
	c, err := l.Catalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Products, 1)
}

func TestCatalogIsCached(t *testing.T) {
	src := newFakeSource()
	src.rows[CollectionProducts] = []map[string]any{{"id": "p1", "title": "A"}}
	l := NewLoader(src, resolver, nil)

	first, err := l.Catalog(context.Background())
	require.NoError(t, err)
	second, err := l.Catalog(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, src.count(CollectionProducts))

	_, err = l.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.count(CollectionProducts))
}

func TestCatalogQueries(t *testing.T) {
	src := newFakeSource()
	src.rows[CollectionProducts] = []map[string]any{
		{"id": "p1", "title": "Coque A", "category_id": "c1", "brand": "Koktek"},
		{"id": "p2", "title": "Coque B", "category_id": "c1", "brand": "Autre"},
		{"id": "p3", "title": "Câble", "category_id": "c2"},
	}
	src.rows[CollectionCategories] = []map[string]any{{"id": "c1", "name": "Coques"}, {"id": "c2", "name": "Câbles"}}
	src.rows[CollectionVariants] = []map[string]any{{"id": "v3", "product_id": "p3"}}
	c, err := NewLoader(src, resolver, nil).Load(context.Background())
	require.NoError(t, err)

	p, ok := c.ProductBySlug("coque-b")
	require.True(t, ok)
	assert.Equal(t, "p2", p.ID)

	_, ok = c.ProductBySlug("missing")
	assert.False(t, ok)

	cat, ok := c.CategoryByID("c2")
	require.True(t, ok)
	assert.Equal(t, "cables", cat.Slug)

	assert.Len(t, c.Filter("c1", ""), 2)
	assert.Len(t, c.Filter("coques", "koktek"), 1)
	assert.Len(t, c.Filter("", "Générique"), 1)
	assert.Len(t, c.Filter("", ""), 3)
	assert.Equal(t, []string{"Koktek", "Autre", "Générique"}, c.Brands())

	assert.Len(t, c.VariantsByProduct("p3"), 1)
	prod, v, ok := c.VariantByID("v3")
	require.True(t, ok)
	assert.Equal(t, "p3", prod.ID)
	assert.Equal(t, "v3", v.ID)
}

func TestSummaries(t *testing.T) {
	r := ImageResolver{AssetBase: "https://cms.example.com/assets", Fallback: FallbackImageURL}

	s, ok := r.SummarizeProduct(map[string]any{"id": 12.0, "name": "Coque", "image": "file-1"})
	require.True(t, ok)
	assert.Equal(t, ProductSummary{ID: "12", Title: "Coque", ImageURL: "https://cms.example.com/assets/file-1"}, s)

	s, ok = r.SummarizeProduct(map[string]any{"id": "p9"})
	require.True(t, ok)
	assert.Equal(t, "Produit p9", s.Title)
	assert.Empty(t, s.ImageURL)

	_, ok = r.SummarizeProduct(map[string]any{"title": "orphan"})
	assert.False(t, ok)

	v, ok := SummarizeVariant(map[string]any{"id": "v1", "sku": "SKU-1", "option_name": "Couleur", "option_value": "Noir"})
	require.True(t, ok)
	assert.Equal(t, VariantSummary{ID: "v1", SKU: "SKU-1", OptionName: "Couleur", OptionValue: "Noir"}, v)
}
