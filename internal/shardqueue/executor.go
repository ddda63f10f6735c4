// Package shardqueue runs jobs on a fixed set of worker goroutines. Jobs that
// share a key land on the same shard and run in submission order; different
// keys may run in parallel. Failed jobs are retried with exponential backoff.
//
// FIFO order per key holds only if callers do not Submit concurrently for the
// same key.
package shardqueue

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type queued struct {
	ctx context.Context
	key string
	job Job
}

// Executor is a sharded, per-key FIFO job runner.
type Executor struct {
	cfg    Config
	log    zerolog.Logger
	queues []chan queued

	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// New starts cfg.Shards workers.
func New(cfg Config, log zerolog.Logger) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		cfg:    cfg,
		log:    log.With().Str("component", "shardqueue").Logger(),
		queues: make([]chan queued, cfg.Shards),
		done:   make(chan struct{}),
	}
	for i := range e.queues {
		ch := make(chan queued, cfg.QueueSize)
		e.queues[i] = ch
		e.wg.Add(1)
		go e.worker(i, ch)
	}
	return e
}

// Submit enqueues job on the shard for key. It returns ErrExecutorClosed after
// Stop, a *QueueFullError when the shard stays full for EnqueueTimeout, or
// ctx.Err() if ctx ends first.
func (e *Executor) Submit(ctx context.Context, key string, job Job) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	shard := e.shardFor(key)
	ch := e.queues[shard]

	timer := time.NewTimer(e.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- queued{ctx: ctx, key: key, job: job}:
		submissionsTotal.WithLabelValues(labelFor(shard)).Inc()
		return nil
	case <-e.done:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		queueFullTotal.WithLabelValues(labelFor(shard)).Inc()
		return &QueueFullError{Shard: shard, Length: len(ch), Capacity: cap(ch)}
	}
}

// Barrier waits until every job submitted for key before the call has finished.
func (e *Executor) Barrier(ctx context.Context, key string) error {
	reached := make(chan struct{})
	if err := e.Submit(ctx, key, JobFunc(func(context.Context) error {
		close(reached)
		return nil
	})); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-reached:
		return nil
	}
}

// Stop rejects new work, lets every worker drain its queue, and waits for
// them to exit. It is idempotent.
func (e *Executor) Stop() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.log.Debug().Int("shards", len(e.queues)).Msg("stopping executor")
	close(e.done)
	e.wg.Wait()
	e.log.Debug().Msg("executor stopped")
}

// Close lets Executor satisfy io.Closer.
func (e *Executor) Close() error {
	e.Stop()
	return nil
}

func (e *Executor) worker(idx int, ch <-chan queued) {
	defer e.wg.Done()
	label := labelFor(idx)

	for {
		select {
		case q := <-ch:
			e.execute(label, q)
			queueDepth.WithLabelValues(label).Set(float64(len(ch)))
		case <-e.done:
			for {
				select {
				case q := <-ch:
					e.execute(label, q)
				default:
					queueDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

func (e *Executor) execute(label string, q queued) {
	if q.job == nil {
		return
	}
	if err := q.ctx.Err(); err != nil {
		e.fail(label, q.key, err)
		return
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.cfg.BaseBackoff
	exp.MaxInterval = e.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(e.cfg.MaxAttempts-1)), q.ctx)

	attempt := 0
	op := func() error {
		attempt++
		start := time.Now()
		err := e.runSafely(q)
		runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		return err
	}
	notify := func(err error, wait time.Duration) {
		e.log.Debug().Err(err).Str("key", q.key).Int("attempt", attempt).Dur("retry_in", wait).Msg("job failed; retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		e.fail(label, q.key, err)
	}
}

// runSafely turns a panicking job into an error so the worker survives.
func (e *Executor) runSafely(q queued) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = backoff.Permanent(fmt.Errorf("job panic: %v", r))
		}
	}()
	return q.job.Run(q.ctx)
}

func (e *Executor) fail(label, key string, err error) {
	failuresTotal.WithLabelValues(label).Inc()
	if e.cfg.ErrorHandler == nil {
		e.log.Warn().Err(err).Str("key", key).Msg("job failed")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("key", key).Msg("error handler panic")
		}
	}()
	e.cfg.ErrorHandler(key, err)
}

func (e *Executor) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(e.queues)))
}
