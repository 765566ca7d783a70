package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GueYatma/koktek-front/internal/localstore"
	"github.com/GueYatma/koktek-front/internal/localstore/redisstore"
)

func TestStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisstore.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, localstore.ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", []byte(`{"a":1}`)))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))
	assert.Equal(t, time.Hour, mr.TTL("k"))

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestStore_BacksCartStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisstore.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	carts := localstore.NewCartStorage(localstore.Namespace(store, "session:abc"))
	require.NoError(t, carts.WriteCartID(ctx, "cart-1"))

	assert.Equal(t, "cart-1", carts.ReadCartID(ctx))
	assert.True(t, mr.Exists("session:abc:"+localstore.KeyCartID))
}
