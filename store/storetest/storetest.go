// Package storetest provides a conformance suite run against every
// store.Store implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/enverbisevac/coord/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the suite. newStore must return an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("SetNX", func(t *testing.T) { testSetNX(t, newStore(t)) })
	t.Run("CompareAndDelete", func(t *testing.T) { testCompareAndDelete(t, newStore(t)) })
	t.Run("PushPopOrder", func(t *testing.T) { testPushPopOrder(t, newStore(t)) })
	t.Run("BlockingPopWakesOnPush", func(t *testing.T) { testBlockingPopWakes(t, newStore(t)) })
	t.Run("BlockingPopTimeout", func(t *testing.T) { testBlockingPopTimeout(t, newStore(t)) })
	t.Run("CancelledContext", func(t *testing.T) { testCancelled(t, newStore(t)) })
}

func testSetNX(t *testing.T, s store.Store) {
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX must not overwrite")

	ok, err = s.SetNX(ctx, "other", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testCompareAndDelete(t *testing.T, s store.Store) {
	ctx := context.Background()

	deleted, err := s.CompareAndDelete(ctx, "missing", "x")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.SetNX(ctx, "k", "a", time.Minute)
	require.NoError(t, err)

	deleted, err = s.CompareAndDelete(ctx, "k", "b")
	require.NoError(t, err)
	assert.False(t, deleted, "mismatched value must not delete")

	ok, err := s.SetNX(ctx, "k", "c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "key must still be held by a")

	deleted, err = s.CompareAndDelete(ctx, "k", "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	ok, err = s.SetNX(ctx, "k", "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testPushPopOrder(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, item := range []string{"1", "2", "3"} {
		_, err := s.Push(ctx, "list", item)
		require.NoError(t, err)
	}
	n, err := s.Len(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"1", "2", "3"} {
		item, ok, err := s.BlockingPop(ctx, "list", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, item)
	}

	n, err = s.Len(ctx, "list")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testBlockingPopWakes(t *testing.T, s store.Store) {
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		item string
		ok   bool
		err  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		item, ok, err = s.BlockingPop(ctx, "wake", 5*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	_, pushErr := s.Push(ctx, "wake", "hello")
	require.NoError(t, pushErr)

	wg.Wait()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", item)
}

func testBlockingPopTimeout(t *testing.T, s store.Store) {
	start := time.Now()
	item, ok, err := s.BlockingPop(context.Background(), "empty", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, item)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func testCancelled(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Len(ctx, "list")
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))

	_, _, err = s.BlockingPop(ctx, "list", time.Second)
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))
}
