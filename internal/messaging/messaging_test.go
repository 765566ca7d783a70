package messaging_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/messaging"
)

func TestEncodeWrapsEventInEnvelope(t *testing.T) {
	data, err := messaging.Encode("order-1", entity.OrderCashPending{OrderID: "order-1", OrderNumber: "KOK-1", Total: 12.5})
	require.NoError(t, err)

	env, err := messaging.Decode(data)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "OrderCashPending", env.Type)
	assert.Equal(t, "order-1", env.Key)
	assert.False(t, env.OccurredAt.IsZero())

	var event entity.OrderCashPending
	require.NoError(t, json.Unmarshal(env.Payload, &event))
	assert.Equal(t, "KOK-1", event.OrderNumber)
}

func TestEncodeNamesPlainValuesByType(t *testing.T) {
	data, err := messaging.Encode("", map[string]int{"a": 1})
	require.NoError(t, err)
	env, err := messaging.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "map[string]int", env.Type)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := messaging.Decode([]byte("{"))
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, messaging.Discard.PublishEvent(context.Background(), "t", "k", struct{}{}))
}
