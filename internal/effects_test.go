package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, cfg EffectQueueConfig) *EffectQueue {
	t.Helper()
	q := NewEffectQueue(cfg, zerolog.Nop())
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEffectQueue_FIFOPerKey(t *testing.T) {
	q := newTestQueue(t, EffectQueueConfig{Shards: 4})
	ctx := context.Background()

	var mu sync.Mutex
	got := map[string][]int{}
	for i := range 50 {
		for _, key := range []string{"a", "b", "c"} {
			require.NoError(t, q.Submit(ctx, key, JobFunc(func(context.Context) error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			})))
		}
	}
	require.NoError(t, q.Flush(ctx))

	for _, key := range []string{"a", "b", "c"} {
		require.Len(t, got[key], 50)
		for i, v := range got[key] {
			assert.Equal(t, i, v, "key %s out of order", key)
		}
	}
}

func TestEffectQueue_RetriesUntilSuccess(t *testing.T) {
	q := newTestQueue(t, EffectQueueConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, q.Submit(ctx, "k", JobFunc(func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})))
	require.NoError(t, q.Barrier(ctx, "k"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestEffectQueue_PermanentErrorIsNotRetried(t *testing.T) {
	q := newTestQueue(t, EffectQueueConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond})
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, q.Submit(ctx, "k", JobFunc(func(context.Context) error {
		calls.Add(1)
		return Permanent(errors.New("no point"))
	})))
	require.NoError(t, q.Barrier(ctx, "k"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestEffectQueue_PanicDoesNotKillWorker(t *testing.T) {
	q := newTestQueue(t, EffectQueueConfig{Shards: 1})
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, "k", JobFunc(func(context.Context) error {
		panic("boom")
	})))
	ran := false
	require.NoError(t, q.Submit(ctx, "k", JobFunc(func(context.Context) error {
		ran = true
		return nil
	})))
	require.NoError(t, q.Barrier(ctx, "k"))
	assert.True(t, ran)
}

func TestEffectQueue_CloseDrainsAndRejects(t *testing.T) {
	q := NewEffectQueue(EffectQueueConfig{Shards: 2}, zerolog.Nop())
	ctx := context.Background()

	var ran atomic.Int32
	for i := range 20 {
		require.NoError(t, q.Submit(ctx, fmt.Sprint(i), JobFunc(func(context.Context) error {
			ran.Add(1)
			return nil
		})))
	}
	require.NoError(t, q.Close())
	assert.Equal(t, int32(20), ran.Load())

	err := q.Submit(ctx, "late", JobFunc(func(context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.NoError(t, q.Close())
}

func TestEffectQueue_CancelledJobIsSkipped(t *testing.T) {
	q := newTestQueue(t, EffectQueueConfig{Shards: 1})

	block := make(chan struct{})
	require.NoError(t, q.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		<-block
		return nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	require.NoError(t, q.Submit(ctx, "k", JobFunc(func(context.Context) error {
		ran = true
		return nil
	})))
	cancel()
	close(block)

	require.NoError(t, q.Barrier(context.Background(), "k"))
	assert.False(t, ran)
}
