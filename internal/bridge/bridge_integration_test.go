//go:build integration

package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dyluth/nadi/pkg/nadi"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) *redis.Client {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	opts, err := redis.ParseURL(fmt.Sprintf("redis://%s:%s", host, port.Port()))
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestBridgeAgainstRealRedis(t *testing.T) {
	b, err := New(setupRedis(t), "integration")
	require.NoError(t, err)
	require.NoError(t, b.Ping(context.Background()))

	c, src, got := setupGraph(t, b, map[string]any{"topic": "it", "compress": true})
	for i := 0; i < 10; i++ {
		msg := &nadi.Message{
			Meta:    []byte(`{"format":"text"}`),
			Data:    []byte(fmt.Sprint(i)),
			Channel: 1,
			Node:    src,
			Release: nadi.NopRelease,
		}
		require.NoError(t, c.Send(msg, nadi.ContextHandle))
	}

	for i := 0; i < 10; i++ {
		select {
		case r := <-got:
			require.Equal(t, fmt.Sprint(i), r.data)
		case <-time.After(5 * time.Second):
			t.Fatalf("message %d did not arrive", i)
		}
	}
}
