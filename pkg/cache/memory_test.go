package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedVerdict struct {
	IsExoplanet bool    `json:"isExoplanet"`
	Confidence  float64 `json:"confidence"`
}

func newTestMemory(t *testing.T, opts ...MemoryOption) (*MemoryCache, *time.Time) {
	t.Helper()
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryCleanup(0)}, opts...)...)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }
	t.Cleanup(func() { _ = mc.Close() })
	return mc, &now
}

func TestMemoryCache_TypedRoundTrip(t *testing.T) {
	mc, _ := newTestMemory(t)
	ctx := context.Background()

	in := []cachedVerdict{{true, 0.91}, {false, 0.1}}
	require.NoError(t, mc.Set(ctx, "result:abc", in, time.Minute))

	var out []cachedVerdict
	require.NoError(t, mc.Get(ctx, "result:abc", &out))
	assert.Equal(t, in, out)

	typed, err := GetTyped[[]cachedVerdict](ctx, mc, "result:abc")
	require.NoError(t, err)
	assert.Equal(t, in, typed)

	require.NoError(t, mc.Set(ctx, "plain", "hello", time.Minute))
	var s string
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "hello", s)
}

func TestMemoryCache_Expiry(t *testing.T) {
	mc, now := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", 1, time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	*now = now.Add(2 * time.Second)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
	ok, _ = mc.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc, now := newTestMemory(t, WithMemoryMaxSize(2))
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	*now = now.Add(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	*now = now.Add(time.Millisecond)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	*now = now.Add(time.Millisecond)

	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))
	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestMemoryCache_TryLock(t *testing.T) {
	mc, now := newTestMemory(t)
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:job", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "lock:job", time.Second)
	assert.False(t, ok)

	*now = now.Add(2 * time.Second)
	ok, _ = mc.TryLock(ctx, "lock:job", time.Second)
	assert.True(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:job"))
	ok, _ = mc.TryLock(ctx, "lock:job", time.Second)
	assert.True(t, ok)
}

func TestHashKey(t *testing.T) {
	a := HashKey([]byte(`[[1,2,3]]`))
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashKey([]byte(`[[1,2,3]]`)))
	assert.NotEqual(t, a, HashKey([]byte(`[[1,2,4]]`)))
	assert.Equal(t, "result:model:abc", GenerateKeyWithParams("result", "model", "abc"))
	assert.Equal(t, "job:1", GenerateKey("job", "1"))
}
