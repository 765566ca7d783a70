package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectFailsWithoutServer(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", nil)
	assert.Error(t, err)
}
