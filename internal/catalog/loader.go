// Package catalog loads products, categories and variants from the backend
// and normalises them into the storefront model.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/repository"
)

// Backend collections read by the loader.
const (
	CollectionProducts         = "products"
	CollectionCategories       = "categories"
	CollectionCategoriesLegacy = "Categories"
	CollectionVariants         = "product_variants"
)

// Loader fetches and caches the catalog.
type Loader struct {
	source repository.CatalogSource
	images ImageResolver
	logger *slog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	cached *Catalog
}

// NewLoader creates a loader. logger may be nil.
func NewLoader(source repository.CatalogSource, images ImageResolver, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, images: images, logger: logger}
}

// Catalog returns the cached catalog, loading it on first use. Only
// successful loads are cached.
func (l *Loader) Catalog(ctx context.Context) (*Catalog, error) {
	l.mu.RLock()
	cached := l.cached
	l.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	return l.Refresh(ctx)
}

// Refresh reloads the catalog from the backend and replaces the cache.
// Concurrent refreshes share one load.
func (l *Loader) Refresh(ctx context.Context) (*Catalog, error) {
	v, err, _ := l.group.Do("catalog", func() (any, error) {
		c, err := l.Load(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cached = c
		l.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog), nil
}

// Load fetches all three collections without touching the cache. A products
// failure is returned; categories and variants failures are logged and
// treated as empty.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	var productRows, categoryRows, variantRows []map[string]any

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := l.source.FetchRows(gctx, CollectionProducts)
		if err != nil {
			return fmt.Errorf("fetch products: %w", err)
		}
		productRows = rows
		return nil
	})
	g.Go(func() error {
		categoryRows = l.fetchCategories(gctx)
		return nil
	})
	g.Go(func() error {
		rows, err := l.source.FetchRows(gctx, CollectionVariants)
		if err != nil {
			l.logger.Warn("catalog: variants unavailable", "error", err)
			return nil
		}
		variantRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		l.logger.Error("catalog: load failed", "error", err)
		return nil, err
	}

	return l.build(productRows, categoryRows, variantRows), nil
}

func (l *Loader) fetchCategories(ctx context.Context) []map[string]any {
	rows, err := l.source.FetchRows(ctx, CollectionCategories)
	if err == nil && len(rows) > 0 {
		return rows
	}
	if err != nil {
		l.logger.Warn("catalog: categories unavailable, trying legacy collection", "error", err)
	}
	rows, err = l.source.FetchRows(ctx, CollectionCategoriesLegacy)
	if err != nil {
		l.logger.Warn("catalog: legacy categories unavailable", "error", err)
		return nil
	}
	return rows
}

func (l *Loader) build(productRows, categoryRows, variantRows []map[string]any) *Catalog {
	c := &Catalog{}

	byCategoryID := make(map[string]entity.Category, len(categoryRows))
	for _, row := range categoryRows {
		cat := mapCategory(row)
		if cat.ID == "" || cat.Name == "" {
			continue
		}
		byCategoryID[cat.ID] = cat
		c.Categories = append(c.Categories, cat)
	}

	flat := make(map[string][]entity.Variant)
	for _, row := range variantRows {
		v := l.images.mapVariant(row, "")
		if v.ID == "" || v.ProductID == "" {
			continue
		}
		flat[v.ProductID] = append(flat[v.ProductID], v)
	}

	for _, row := range productRows {
		p := l.images.mapProduct(row, byCategoryID)
		if p.ID == "" || !IsPublished(p) {
			continue
		}
		if len(p.Variants) == 0 {
			p.Variants = flat[p.ID]
		}
		c.Products = append(c.Products, p)
	}
	return c
}
