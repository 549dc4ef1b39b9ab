//go:build integration

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err)

	endpoint, err := c.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestIntegration_RedisGuard(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	g := NewRedisGuard(client, "test:delivery:", time.Minute)

	first, err := g.Claim(ctx, "crypto:abc")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := g.Claim(ctx, "crypto:abc")
	require.NoError(t, err)
	assert.False(t, again)

	ttl, err := client.TTL(ctx, "test:delivery:crypto:abc").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, g.Release(ctx, "crypto:abc"))
	afterRelease, err := g.Claim(ctx, "crypto:abc")
	require.NoError(t, err)
	assert.True(t, afterRelease)
}
