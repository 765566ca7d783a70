// Package webhook sends the single outbound notification fired when a buyer
// chooses to pay cash.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/metrics"
)

// ErrNotConfigured is returned when no endpoint URL was set.
var ErrNotConfigured = errors.New("webhook: endpoint not configured")

// StatusError reports a non-2xx answer from the endpoint.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: endpoint answered %d", e.Status)
}

// Customer identifies the buyer in a Notification.
type Customer struct {
	ID         string `json:"id,omitempty"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Notification is the JSON body posted to the endpoint.
type Notification struct {
	OrderID       string             `json:"order_id"`
	OrderNumber   string             `json:"order_number"`
	TotalAmount   float64            `json:"total_amount"`
	Currency      string             `json:"currency"`
	PaymentMethod string             `json:"payment_method"`
	Customer      Customer           `json:"customer"`
	Items         []entity.EventLine `json:"items"`
}

type Notifier struct {
	url     string
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Notifier)

func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) { n.client = hc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// New creates a notifier posting to url. An empty url yields a notifier
// whose Notify always fails with ErrNotConfigured.
func New(url string, opts ...Option) *Notifier {
	n := &Notifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify posts the notification once. There is no retry.
func (n *Notifier) Notify(ctx context.Context, notification Notification) (err error) {
	defer func() { n.metrics.WebhookCalled(err) }()

	if n.url == "" {
		return ErrNotConfigured
	}
	if notification.Items == nil {
		notification.Items = []entity.EventLine{}
	}
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode}
	}
	n.logger.Info("webhook: cash notification sent", "order_id", notification.OrderID, "order_number", notification.OrderNumber)
	return nil
}
