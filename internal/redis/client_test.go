package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		assert.Equal(t, 10, client.config.PoolSize)
		assert.NoError(t, client.Health(context.Background()))
	})

	t.Run("missing address", func(t *testing.T) {
		_, err := NewClient(Config{})
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		_, err = NewClient(Config{Address: addr})
		assert.Error(t, err)
	})
}

func TestPublishSubscribe(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	ps, err := client.Subscribe(ctx, "orders:new")
	require.NoError(t, err)
	defer ps.Close()

	require.NoError(t, client.Publish(ctx, "orders:new", map[string]string{"platform": "getir"}))
	require.NoError(t, client.Publish(ctx, "orders:new", "plain"))

	ch := ps.Channel()
	for _, want := range []string{`{"platform":"getir"}`, "plain"} {
		select {
		case msg := <-ch:
			assert.Equal(t, want, msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
}

func TestHealth_AfterServerStops(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}
