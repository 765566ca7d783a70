// Package directus implements the repository ports against a headless CMS
// exposing collection-scoped items under /items/<collection>.
package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GueYatma/koktek-front/internal/metrics"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return "directus error: " + e.Message
	}
	return fmt.Sprintf("directus request failed: %d", e.Status)
}

// IsNotFound reports whether err is a 404 from the item API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorPayload struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Client issues item requests with an optional bearer token.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger used for request debugging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}
	c := &Client{
		baseURL:    u,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// AssetURL resolves a file id against the asset endpoint.
func (c *Client) AssetURL(id string) string {
	return c.baseURL.JoinPath("assets", id).String()
}

func (c *Client) itemsURL(collection string, id string, params url.Values) string {
	u := c.baseURL.JoinPath("items", collection)
	if id != "" {
		u = u.JoinPath(id)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// do sends one request and decodes the "data" member of the response into out.
func (c *Client) do(ctx context.Context, method, collection, id string, params url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s body: %w", collection, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.itemsURL(collection, id, params), reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", collection, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRemote(collection, method, 0, time.Since(start))
		return fmt.Errorf("%s %s: %w", method, collection, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRemote(collection, method, resp.StatusCode, time.Since(start))
	c.logger.Debug("Item API request", "method", method, "collection", collection, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload errorPayload
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && len(payload.Errors) > 0 {
			apiErr.Message = payload.Errors[0].Message
		}
		return apiErr
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", collection, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", collection, err)
	}
	return nil
}

func createOne[T any](ctx context.Context, c *Client, collection string, data any) (*T, error) {
	var out T
	if err := c.do(ctx, http.MethodPost, collection, "", nil, data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func createMany[T any](ctx context.Context, c *Client, collection string, data any) ([]T, error) {
	var out []T
	if err := c.do(ctx, http.MethodPost, collection, "", nil, data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func updateOne(ctx context.Context, c *Client, collection, id string, data any) error {
	return c.do(ctx, http.MethodPatch, collection, id, nil, data, nil)
}

func deleteOne(ctx context.Context, c *Client, collection, id string) error {
	return c.do(ctx, http.MethodDelete, collection, id, nil, nil, nil)
}

func list[T any](ctx context.Context, c *Client, collection string, params url.Values) ([]T, error) {
	var out []T
	if err := c.do(ctx, http.MethodGet, collection, "", params, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func getOne[T any](ctx context.Context, c *Client, collection, id string, params url.Values) (*T, error) {
	var out T
	if err := c.do(ctx, http.MethodGet, collection, id, params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// eq builds a filter[field][_eq]=value parameter set.
func eq(field, value string) url.Values {
	v := url.Values{}
	v.Set("filter["+field+"][_eq]", value)
	return v
}
