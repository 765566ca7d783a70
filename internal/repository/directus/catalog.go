package directus

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/GueYatma/koktek-front/internal/repository"
)

type catalogSource struct {
	c *Client
}

// NewCatalogSource creates a CatalogSource backed by the item API.
func NewCatalogSource(c *Client) repository.CatalogSource {
	return &catalogSource{c: c}
}

func (s *catalogSource) FetchRows(ctx context.Context, collection string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("limit", "-1")
	params.Set("fields", "*")
	rows, err := list[map[string]any](ctx, s.c, collection, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", collection, err)
	}
	return rows, nil
}

func (s *catalogSource) FetchRowsByID(ctx context.Context, collection string, ids []string, fields []string) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("filter[id][_in]", strings.Join(ids, ","))
	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ","))
	}
	rows, err := list[map[string]any](ctx, s.c, collection, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s by id: %w", collection, err)
	}
	return rows, nil
}
