package lookupcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("not found")

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c := New(time.Minute, 10*time.Second, 100, time.Minute)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	})
	return c
}

func TestGetOrFetchCachesPositiveResult(t *testing.T) {
	c := newTestCache(t)

	var calls int32
	fetch := func() (any, error, bool) {
		atomic.AddInt32(&calls, 1)
		return "value", nil, false
	}

	v, err := c.GetOrFetch("k", fetch)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	v, err = c.GetOrFetch("k", fetch)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	hits, misses, size := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 1, size)
}

func TestGetOrFetchCachesNegativeResult(t *testing.T) {
	c := newTestCache(t)

	var calls int32
	fetch := func() (any, error, bool) {
		atomic.AddInt32(&calls, 1)
		return nil, errNotFound, true
	}

	_, err := c.GetOrFetch("missing", fetch)
	assert.ErrorIs(t, err, errNotFound)

	_, err = c.GetOrFetch("missing", fetch)
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetchDoesNotCacheTransientErrors(t *testing.T) {
	c := newTestCache(t)

	transient := errors.New("connection refused")
	var calls int32
	fetch := func() (any, error, bool) {
		atomic.AddInt32(&calls, 1)
		return nil, transient, false
	}

	_, err := c.GetOrFetch("k", fetch)
	assert.ErrorIs(t, err, transient)

	_, err = c.GetOrFetch("k", fetch)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExpiredEntryIsRefetched(t *testing.T) {
	c := New(10*time.Millisecond, 10*time.Millisecond, 100, time.Minute)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	}()

	var calls int32
	fetch := func() (any, error, bool) {
		atomic.AddInt32(&calls, 1)
		return "value", nil, false
	}

	_, err := c.GetOrFetch("k", fetch)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = c.GetOrFetch("k", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := newTestCache(t)

	var calls int32
	fetch := func() (any, error, bool) {
		atomic.AddInt32(&calls, 1)
		return "value", nil, false
	}

	_, err := c.GetOrFetch("k", fetch)
	require.NoError(t, err)
	c.Invalidate("k")

	_, err = c.GetOrFetch("k", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMaxSizeEviction(t *testing.T) {
	c := New(time.Minute, time.Minute, 2, time.Minute)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	}()

	for _, key := range []string{"a", "b", "c"} {
		_, err := c.GetOrFetch(key, func() (any, error, bool) {
			return key, nil, false
		})
		require.NoError(t, err)
	}

	_, _, size := c.Stats()
	assert.LessOrEqual(t, size, 2)
}

func TestConcurrentFetchesShareOneCall(t *testing.T) {
	c := newTestCache(t)

	var calls int32
	release := make(chan struct{})
	fetch := func() (any, error, bool) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil, false
	}

	const workers = 10
	var wg sync.WaitGroup
	results := make([]any, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrFetch("k", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give every worker time to miss the cache and pile onto the
	// singleflight group before the fetch completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, "value", v)
	}
}

func TestKeyDistinguishesKindsAndArguments(t *testing.T) {
	assert.NotEqual(t, Key("site", "example.com"), Key("group", "example.com"))
	assert.NotEqual(t, Key("person", int64(1), "a@b.c"), Key("person", int64(1), "a@b.d"))
	assert.Equal(t, Key("site", "example.com"), Key("site", "example.com"))
}
