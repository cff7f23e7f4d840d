package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

func TestRedisLocal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	defer container.Terminate(ctx)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	defer client.Close()

	local := NewRedisLocal(client, time.Hour)

	t.Run("missing owner is a miss", func(t *testing.T) {
		holdings, ok, err := local.Load(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, holdings)
	})

	t.Run("save then load keeps decimals exact", func(t *testing.T) {
		in := []*models.Holding{{
			ID:          7,
			OwnerID:     "owner-1",
			Symbol:      "TCS.NS",
			Shares:      decimal.RequireFromString("12.5"),
			AvgBuyPrice: decimal.RequireFromString("3321.4567"),
		}}
		require.NoError(t, local.Save(ctx, "owner-1", in))

		out, ok, err := local.Load(ctx, "owner-1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, out, 1)
		assert.True(t, in[0].Shares.Equal(out[0].Shares))
		assert.True(t, in[0].AvgBuyPrice.Equal(out[0].AvgBuyPrice))

		ttl, err := client.TTL(ctx, "portfolio:holdings:owner-1").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("empty portfolio is a hit", func(t *testing.T) {
		require.NoError(t, local.Save(ctx, "owner-2", nil))
		out, ok, err := local.Load(ctx, "owner-2")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, out)
	})

	t.Run("delete removes the copy", func(t *testing.T) {
		require.NoError(t, local.Delete(ctx, "owner-1"))
		_, ok, err := local.Load(ctx, "owner-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt document is an error", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "portfolio:holdings:owner-3", "[{", 0).Err())
		_, ok, err := local.Load(ctx, "owner-3")
		assert.Error(t, err)
		assert.False(t, ok)
	})
}
