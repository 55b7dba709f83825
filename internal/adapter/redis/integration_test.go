package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// externalRedisEnv points the integration tests at an already running server
// instead of starting a container.
const externalRedisEnv = "TILECAST_TEST_REDIS_URL"

var shared struct {
	once      sync.Once
	url       string
	err       error
	container testcontainers.Container
}

func TestMain(m *testing.M) {
	flag.Parse()
	code := m.Run()
	if shared.container != nil {
		if err := shared.container.Terminate(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
		}
	}
	os.Exit(code)
}

// redisURL starts the shared container on first use, so unit-only runs never pay for it.
func redisURL(t *testing.T) string {
	t.Helper()
	shared.once.Do(func() {
		if url := os.Getenv(externalRedisEnv); url != "" {
			shared.url = url
			return
		}
		ctx := context.Background()
		container, err := redis.Run(ctx, "redis:7-alpine")
		if err != nil {
			shared.err = fmt.Errorf("start redis container: %w", err)
			return
		}
		shared.container = container
		endpoint, err := container.Endpoint(ctx, "")
		if err != nil {
			shared.err = fmt.Errorf("resolve redis endpoint: %w", err)
			return
		}
		shared.url = "redis://" + endpoint
	})
	require.NoError(t, shared.err)
	return shared.url
}

// setupTestClient returns a flushed client wired with the same hooks the relay installs.
func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	client, err := NewClient(ctx, redisURL(t), NewMetricsHook(m), NewBreakerHook(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.FlushAll(ctx).Err())
	return client
}
