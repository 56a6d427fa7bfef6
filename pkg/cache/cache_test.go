package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reading struct {
	Site string    `json:"site"`
	PM25 float64   `json:"pm2_5"`
	At   time.Time `json:"at"`
}

func TestMemoryCacheRoundTripsTypedValues(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := []reading{{Site: "a", PM25: 12.5, At: at}, {Site: "b", PM25: 40, At: at}}
	require.NoError(t, mc.Set(ctx, "k", in, time.Minute))

	var out []reading
	require.NoError(t, mc.Get(ctx, "k", &out))
	assert.Equal(t, in, out)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "plain", 0))
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	var v int
	assert.ErrorIs(t, mc.Get(ctx, "nope", &v), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "k", 7, time.Second))
	require.NoError(t, mc.Get(ctx, "k", &v))
	assert.Equal(t, 7, v)

	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
	assert.Zero(t, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "a", 1, time.Hour))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Hour))
	now = now.Add(time.Second)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v)) // a is now fresher than b
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", 3, time.Hour))

	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "c", &v))
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "insights:1", 1, 0))
	require.NoError(t, mc.Set(ctx, "insights:2", 2, 0))
	require.NoError(t, mc.Set(ctx, "sites:1", 3, 0))

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("insights:")))

	ok, err := mc.Exists(ctx, "insights:1", "insights:2")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = mc.Exists(ctx, "sites:1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLayeredCacheFillsL1FromRemote(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemorySize(10), WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "k", []reading{{Site: "x"}}, time.Hour))

	var out []reading
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, "x", out[0].Site)

	// Remove from remote: L1 still answers.
	require.NoError(t, remote.Delete(ctx, "k"))
	out = nil
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, "x", out[0].Site)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &out), ErrCacheMiss)
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, HashKey("site=a|freq=HOURLY"), HashKey("site=a|freq=HOURLY"))
	assert.NotEqual(t, HashKey("a"), HashKey("b"))
	assert.Len(t, HashKey("a"), 32)
	assert.Equal(t, "insights:abc", GenerateKey("insights", "abc"))
}
