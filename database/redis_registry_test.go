package database

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startRedis runs Redis in docker. Set KNOWLEDGE_DOCKER_TESTS=1 to enable.
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv("KNOWLEDGE_DOCKER_TESTS") != "1" {
		t.Skip("KNOWLEDGE_DOCKER_TESTS not set, skipping docker test")
	}

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)
	pool.MaxWait = 60 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	addr := "localhost:" + resource.GetPort("6379/tcp")
	var client *redis.Client
	err = pool.Retry(func() error {
		var err error
		client, err = NewRedisClient(context.Background(), addr, "", 0)
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestRedisRegistry(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	r := NewRedisRegistry(client, "")

	ok, err := r.Contains(ctx, "policy.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	added, err := r.Add(ctx, "policy.txt")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.Add(ctx, "policy.txt")
	require.NoError(t, err)
	assert.False(t, added)

	ok, err = r.Contains(ctx, "policy.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := client.SMembers(ctx, DefaultRegistryKey).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"policy.txt"}, members)

	require.NoError(t, r.Remove(ctx, "policy.txt"))
	require.NoError(t, r.Remove(ctx, "never-added.txt"))
	ok, err = r.Contains(ctx, "policy.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Add(ctx, "a.txt")
	require.NoError(t, err)
	_, err = r.Add(ctx, "b.txt")
	require.NoError(t, err)
	require.NoError(t, r.Reset(ctx))
	for _, name := range []string{"a.txt", "b.txt"} {
		ok, err := r.Contains(ctx, name)
		require.NoError(t, err)
		assert.False(t, ok, name)
	}
}

func TestRedisRegistry_ConcurrentAdd(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	a := NewRedisRegistry(client, "knowledge:test_files")
	b := NewRedisRegistry(client, "knowledge:test_files")

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		r := a
		if i%2 == 1 {
			r = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := r.Add(ctx, "race.txt")
			if assert.NoError(t, err) && added {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)

	ok, err := NewRedisRegistry(client, "").Contains(ctx, "race.txt")
	require.NoError(t, err)
	assert.False(t, ok, "registries with different keys are independent")
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
