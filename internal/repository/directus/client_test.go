package directus_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/repository"
	"github.com/GueYatma/koktek-front/internal/repository/directus"
)

func newClient(t *testing.T, handler http.HandlerFunc) *directus.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := directus.NewClient(server.URL, "secret-token")
	require.NoError(t, err)
	return c
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := directus.NewClient("directus.local", "")
	require.Error(t, err)
}

func TestCartRepository_CreateCartSendsDefaultsAndToken(t *testing.T) {
	var body map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/items/carts", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeData(w, map[string]any{"id": "cart-1", "status": "open"})
	})

	cart, err := directus.NewCartRepository(c).CreateCart(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "cart-1", cart.ID.String())
	assert.Equal(t, "open", body["status"])
	assert.Equal(t, "EUR", body["currency"])
	assert.Nil(t, body["customer_id"])
}

func TestCartRepository_ListItemsFiltersByCart(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items/cart_items", r.URL.Path)
		assert.Equal(t, "cart-9", r.URL.Query().Get("filter[cart_id][_eq]"))
		writeData(w, []map[string]any{
			{"id": 12, "cart_id": "cart-9", "product_id": map[string]any{"id": "p1"}, "variant_id": "v1", "quantity": 2},
		})
	})

	items, err := directus.NewCartRepository(c).ListItems(context.Background(), "cart-9")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "12", items[0].ID.String())
	assert.Equal(t, "p1", items[0].ProductID.String())
	assert.Equal(t, "v1", items[0].VariantID.String())
	assert.Equal(t, float64(2), items[0].Quantity)
}

func TestClient_ErrorMessageIsParsed(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"errors":[{"message":"You don't have permission"}]}`)
	})

	err := directus.NewCartRepository(c).RemoveItem(context.Background(), "x")
	require.Error(t, err)

	var apiErr *directus.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, err.Error(), "directus error: You don't have permission")
}

func TestClient_ErrorWithoutBody(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := directus.NewCartRepository(c).UpdateItemQuantity(context.Background(), "missing", 2)
	require.Error(t, err)
	assert.True(t, directus.IsNotFound(err))
	assert.Contains(t, err.Error(), "directus request failed: 404")

	details, err := directus.NewOrderRepository(c).GetDetails(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, details)
}

func TestClient_NoContentOnDelete(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/items/cart_items/line-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, directus.NewCartRepository(c).RemoveItem(context.Background(), "line-1"))
}

func TestOrderRepository_FindIDByNumber(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "KOK-1234", q.Get("filter[order_number][_eq]"))
		assert.Equal(t, "id", q.Get("fields"))
		assert.Equal(t, "1", q.Get("limit"))
		if q.Get("filter[order_number][_eq]") == "KOK-1234" {
			writeData(w, []map[string]any{{"id": "ord-77"}})
			return
		}
		writeData(w, []any{})
	})

	id, err := directus.NewOrderRepository(c).FindIDByNumber(context.Background(), "KOK-1234")
	require.NoError(t, err)
	assert.Equal(t, "ord-77", id)
}

func TestOrderRepository_GetDetailsExpandsRelations(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items/orders/ord-1", r.URL.Path)
		assert.Equal(t, "*,order_items.*,order_delivery.*,customer_id.*", r.URL.Query().Get("fields"))
		writeData(w, map[string]any{
			"id":           "ord-1",
			"order_number": "KOK-1",
			"status":       "pending_cash",
			"total":        59.8,
			"customer_id":  map[string]any{"id": "cus-1", "first_name": "Camille", "last_name": "Durand"},
			"order_items": []map[string]any{
				{"id": "oi-1", "order_id": "ord-1", "product_id": "p1", "variant_id": nil, "quantity": 2, "unit_price": 29.9},
			},
			"order_delivery": []map[string]any{{"id": "d1", "order_id": "ord-1", "recipient_name": "Camille Durand", "city": "Paris"}},
		})
	})

	details, err := directus.NewOrderRepository(c).GetDetails(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", details.ID.String())
	assert.Equal(t, "cus-1", details.CustomerID.String())
	require.NotNil(t, details.Customer)
	assert.Equal(t, "Camille Durand", details.Customer.DisplayName())
	require.Len(t, details.Items, 1)
	assert.Equal(t, "p1", details.Items[0].ProductRef())
	assert.Equal(t, "", details.Items[0].VariantRef())
	require.NotNil(t, details.Delivery)
	assert.Equal(t, "Paris", details.Delivery.City)
	require.NotNil(t, details.Total)
	assert.InDelta(t, 59.8, *details.Total, 0.001)
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	var body repository.StatusUpdate
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/items/orders/ord-5", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeData(w, map[string]any{"id": "ord-5"})
	})

	err := directus.NewOrderRepository(c).UpdateStatus(context.Background(), "ord-5", repository.StatusUpdate{
		Status: entity.OrderStatusPaid, PaymentStatus: entity.OrderStatusPaid, PaymentReference: "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, "paid", body.Status)
	assert.Equal(t, "cash", body.PaymentReference)
}

func TestCustomerRepository_FindByEmailMissing(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nobody@example.com", r.URL.Query().Get("filter[email][_eq]"))
		writeData(w, []any{})
	})

	customer, err := directus.NewCustomerRepository(c).FindByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, customer)
}

func TestCatalogSource_FetchRowsByID(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p1,p2", r.URL.Query().Get("filter[id][_in]"))
		assert.Equal(t, "id,title", r.URL.Query().Get("fields"))
		writeData(w, []map[string]any{{"id": "p1", "title": "Coque"}})
	})

	rows, err := directus.NewCatalogSource(c).FetchRowsByID(context.Background(), "products", []string{"p1", "p2"}, []string{"id", "title"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Coque", rows[0]["title"])
}

func TestClient_AssetURL(t *testing.T) {
	c, err := directus.NewClient("https://cms.example.com/", "")
	require.NoError(t, err)
	assert.Equal(t, "https://cms.example.com/assets/abc-123", c.AssetURL("abc-123"))
}
