package runcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container-backed coverage for RedisStore, following the same
// GenericContainer/Docker-unavailable-skip shape as backend/mongo's
// integration test.

var (
	testRedisContainer testcontainers.Container
	testRedisAddr      string
	skipRedisTests     bool
)

func setupRedisContainer() {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}
		testRedisContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, Redis cache tests will be skipped: %v\n", containerErr)
		skipRedisTests = true
		return
	}

	host, err := testRedisContainer.Host(ctx)
	if err != nil {
		fmt.Printf("failed to get container host: %v\n", err)
		skipRedisTests = true
		return
	}
	port, err := testRedisContainer.MappedPort(ctx, "6379")
	if err != nil {
		fmt.Printf("failed to get container port: %v\n", err)
		skipRedisTests = true
		return
	}
	testRedisAddr = fmt.Sprintf("%s:%s", host, port.Port())
}

func getRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	if testRedisAddr == "" && !skipRedisTests {
		setupRedisContainer()
	}
	if skipRedisTests {
		t.Skip("Docker not available, skipping Redis cache test")
	}

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())

	store := NewRedisStore(client, "pypads_test:"+t.Name(), time.Minute)
	store.Clear()
	t.Cleanup(store.Clear)
	return store
}

func TestRedisStoreRoundTripsJSONValues(t *testing.T) {
	store := getRedisTestStore(t)

	store.Add("learning_rate", 0.01)
	store.Add("tags", []string{"a", "b"})

	v, ok := store.Get("learning_rate")
	require.True(t, ok)
	require.InDelta(t, 0.01, v, 0.0001)

	require.True(t, store.Exists("tags"))
	tags, ok := store.Get("tags")
	require.True(t, ok)
	require.Equal(t, []any{"a", "b"}, tags)

	snap := store.Snapshot()
	require.Contains(t, snap, "learning_rate")
	require.Contains(t, snap, "tags")
}

func TestRedisStorePopRemovesKeyAgainstRealRedis(t *testing.T) {
	store := getRedisTestStore(t)

	store.Add("once", "value")
	v, ok := store.Pop("once")
	require.True(t, ok)
	require.Equal(t, "value", v)

	require.False(t, store.Exists("once"))
	_, ok = store.Get("once")
	require.False(t, ok)
}

func TestRedisStoreClearRemovesAllKeysAgainstRealRedis(t *testing.T) {
	store := getRedisTestStore(t)

	store.Add("a", 1)
	store.Add("b", 2)
	store.Clear()

	require.Empty(t, store.Snapshot())
	require.False(t, store.Exists("a"))
}
