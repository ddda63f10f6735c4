package shardqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExec(t *testing.T, cfg Config) *Executor {
	t.Helper()
	e := New(cfg, zerolog.Nop())
	t.Cleanup(e.Stop)
	return e
}

func TestExecutor_FIFOPerKey(t *testing.T) {
	e := newExec(t, Config{Shards: 4, QueueSize: 16})

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 10; i++ {
		v := i
		require.NoError(t, e.Submit(context.Background(), "state", JobFunc(func(context.Context) error {
			mu.Lock()
			order = append(order, v)
			mu.Unlock()
			return nil
		})))
	}
	require.NoError(t, e.Barrier(context.Background(), "state"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestExecutor_RetriesUntilSuccess(t *testing.T) {
	e := newExec(t, Config{Shards: 1, MaxAttempts: 3, BaseBackoff: time.Millisecond})

	var attempts atomic.Int32
	require.NoError(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})))
	require.NoError(t, e.Barrier(context.Background(), "k"))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestExecutor_PermanentErrorNotRetried(t *testing.T) {
	var handled atomic.Int32
	cfg := Config{Shards: 1, MaxAttempts: 5, BaseBackoff: time.Millisecond}
	cfg.ErrorHandler = func(key string, err error) {
		if key == "k" {
			handled.Add(1)
		}
	}
	e := newExec(t, cfg)

	var attempts atomic.Int32
	require.NoError(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		attempts.Add(1)
		return Permanent(errors.New("quota"))
	})))
	require.NoError(t, e.Barrier(context.Background(), "k"))
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, int32(1), handled.Load())
}

func TestExecutor_ErrorHandlerAfterFinalAttempt(t *testing.T) {
	var got error
	cfg := Config{Shards: 1, MaxAttempts: 2, BaseBackoff: time.Millisecond}
	cfg.ErrorHandler = func(_ string, err error) { got = err }
	e := newExec(t, cfg)

	var attempts atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		attempts.Add(1)
		return boom
	})))
	require.NoError(t, e.Barrier(context.Background(), "k"))
	assert.Equal(t, int32(2), attempts.Load())
	assert.ErrorIs(t, got, boom)
}

func TestExecutor_PanicDoesNotKillWorker(t *testing.T) {
	e := newExec(t, Config{Shards: 1, MaxAttempts: 1})

	require.NoError(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		panic("bad job")
	})))
	ran := make(chan struct{})
	require.NoError(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		close(ran)
		return nil
	})))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestExecutor_CanceledJobSkipped(t *testing.T) {
	e := newExec(t, Config{Shards: 1})

	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	require.NoError(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		<-block
		return nil
	})))
	var ran atomic.Bool
	require.NoError(t, e.Submit(ctx, "k", JobFunc(func(context.Context) error {
		ran.Store(true)
		return nil
	})))
	cancel()
	close(block)
	require.NoError(t, e.Barrier(context.Background(), "k"))
	assert.False(t, ran.Load())
}

func TestExecutor_QueueFull(t *testing.T) {
	e := newExec(t, Config{Shards: 1, QueueSize: 1, EnqueueTimeout: 5 * time.Millisecond})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		close(started)
		<-release
		return nil
	})))
	<-started
	require.NoError(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error { return nil })))

	err := e.Submit(context.Background(), "k", JobFunc(func(context.Context) error { return nil }))
	var qf *QueueFullError
	require.ErrorAs(t, err, &qf)
	assert.ErrorIs(t, err, ErrQueueFull)
	close(release)
}

func TestExecutor_StopDrainsAndRejects(t *testing.T) {
	e := New(Config{Shards: 2, QueueSize: 32}, zerolog.Nop())

	var n atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
			n.Add(1)
			return nil
		})))
	}
	e.Stop()
	e.Stop()
	assert.Equal(t, int32(20), n.Load())
	assert.ErrorIs(t, e.Submit(context.Background(), "k", JobFunc(func(context.Context) error { return nil })), ErrExecutorClosed)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Shards)
	assert.Equal(t, 3, cfg.MaxAttempts)
}
