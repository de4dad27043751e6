package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-concierge/internal/clinicorp"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

func countingLoader(calls *int, profs []clinicorp.Professional, err error) DirectoryLoader {
	return func(context.Context) ([]clinicorp.Professional, error) {
		*calls++
		return profs, err
	}
}

func TestMemoryDirectoryCacheExpires(t *testing.T) {
	cache := NewMemoryDirectoryCache(time.Minute)
	now := time.Date(2025, 12, 25, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	calls := 0
	load := countingLoader(&calls, testDirectory, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		profs, err := cache.Professionals(ctx, "t1", load)
		require.NoError(t, err)
		assert.Len(t, profs, 2)
	}
	assert.Equal(t, 1, calls)

	_, err := cache.Professionals(ctx, "t2", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "tenants are cached separately")

	now = now.Add(2 * time.Minute)
	_, err = cache.Professionals(ctx, "t1", load)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	cache.Invalidate("t1")
	_, err = cache.Professionals(ctx, "t1", load)
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestMemoryDirectoryCacheSkipsEmptyAndErrors(t *testing.T) {
	cache := NewMemoryDirectoryCache(time.Minute)
	ctx := context.Background()

	calls := 0
	_, err := cache.Professionals(ctx, "t1", countingLoader(&calls, nil, errors.New("boom")))
	require.Error(t, err)
	_, err = cache.Professionals(ctx, "t1", countingLoader(&calls, nil, nil))
	require.NoError(t, err)
	_, err = cache.Professionals(ctx, "t1", countingLoader(&calls, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRedisDirectoryCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisDirectoryCache(client, time.Minute, logging.Discard())
	ctx := context.Background()

	calls := 0
	load := countingLoader(&calls, testDirectory, nil)

	profs, err := cache.Professionals(ctx, "t1", load)
	require.NoError(t, err)
	assert.Equal(t, testDirectory, profs)

	profs, err = cache.Professionals(ctx, "t1", load)
	require.NoError(t, err)
	assert.Equal(t, testDirectory, profs)
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists("directory:professionals:t1"))

	mr.FastForward(2 * time.Minute)
	_, err = cache.Professionals(ctx, "t1", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRedisDirectoryCacheRecoversFromCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set("directory:professionals:t1", "{not-json"))

	cache := NewRedisDirectoryCache(client, time.Minute, logging.Discard())
	calls := 0
	profs, err := cache.Professionals(context.Background(), "t1", countingLoader(&calls, testDirectory, nil))
	require.NoError(t, err)
	assert.Len(t, profs, 2)
	assert.Equal(t, 1, calls)
}
