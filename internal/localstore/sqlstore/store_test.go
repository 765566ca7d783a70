package sqlstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/localstore"
	"github.com/GueYatma/koktek-front/internal/localstore/sqlstore"
)

func openTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	// Use a unique in-memory database per test to avoid cross-test collisions.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := sqlstore.Open(sqlstore.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := sqlstore.Open("mysql", "")
	require.Error(t, err)
}

func TestStore_SetOverwritesAndDeletes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, localstore.ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", []byte("one")))
	require.NoError(t, store.Set(ctx, "k", []byte("two")))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestStore_BacksOrderHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	history := localstore.NewOrderHistory(store)

	require.NoError(t, history.Save(ctx, "Camille@Example.com ", entity.StoredOrder{
		ID: "ord-1", OrderNumber: "KOK-1", Total: 39.9, CreatedAt: "2026-01-02T10:00:00Z",
	}))

	orders := history.ForEmail(ctx, "camille@example.com")
	require.Len(t, orders, 1)
	assert.Equal(t, "KOK-1", orders[0].OrderNumber)
}
