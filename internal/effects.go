package internal

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned by Submit after the queue has been closed.
var ErrQueueClosed = errors.New("effect queue closed")

// Job is a background side effect run by an EffectQueue.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to a Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// EffectQueueConfig tunes an EffectQueue. Zero values get defaults.
type EffectQueueConfig struct {
	Shards         int
	QueueSize      int
	EnqueueTimeout time.Duration
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxInterval    time.Duration
}

func (c EffectQueueConfig) withDefaults() EffectQueueConfig {
	if c.Shards <= 0 {
		c.Shards = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 100 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	return c
}

var (
	effectSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subsaver",
			Subsystem: "effects",
			Name:      "submissions_total",
			Help:      "Effects accepted for execution.",
		},
		[]string{"shard"},
	)

	effectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subsaver",
			Subsystem: "effects",
			Name:      "failures_total",
			Help:      "Effects that failed after all attempts.",
		},
		[]string{"shard"},
	)

	effectDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "subsaver",
			Subsystem: "effects",
			Name:      "run_duration_seconds",
			Help:      "Effect execution latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"shard"},
	)
)

type queuedJob struct {
	ctx context.Context
	key string
	job Job
}

// EffectQueue runs jobs on shard workers picked by a stable hash of their key.
// Jobs sharing a key run one at a time in submission order; jobs with
// different keys may run in parallel.
type EffectQueue struct {
	cfg    EffectQueueConfig
	log    zerolog.Logger
	queues []chan queuedJob

	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewEffectQueue starts the shard workers.
func NewEffectQueue(cfg EffectQueueConfig, log zerolog.Logger) *EffectQueue {
	cfg = cfg.withDefaults()
	q := &EffectQueue{
		cfg:    cfg,
		log:    log.With().Str("component", "effects").Logger(),
		queues: make([]chan queuedJob, cfg.Shards),
		done:   make(chan struct{}),
	}
	for i := range cfg.Shards {
		ch := make(chan queuedJob, cfg.QueueSize)
		q.queues[i] = ch
		q.wg.Add(1)
		go q.runWorker(i, ch)
	}
	return q
}

// Submit enqueues job behind every job previously submitted with the same key.
// It blocks for at most EnqueueTimeout when the shard is full.
func (q *EffectQueue) Submit(ctx context.Context, key string, job Job) error {
	return q.submitToShard(ctx, q.shardFor(key), queuedJob{ctx: ctx, key: key, job: job})
}

func (q *EffectQueue) submitToShard(ctx context.Context, shard int, qj queuedJob) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	timer := time.NewTimer(q.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case q.queues[shard] <- qj:
		effectSubmissions.WithLabelValues(strconv.Itoa(shard)).Inc()
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("effect queue shard %d full (%d/%d)", shard, len(q.queues[shard]), cap(q.queues[shard]))
	}
}

// Barrier waits until every job submitted for key before the call has run.
func (q *EffectQueue) Barrier(ctx context.Context, key string) error {
	return q.barrier(ctx, q.shardFor(key))
}

// Flush waits until every job submitted before the call has run.
func (q *EffectQueue) Flush(ctx context.Context) error {
	errs := make(chan error, len(q.queues))
	for shard := range q.queues {
		go func() { errs <- q.barrier(ctx, shard) }()
	}
	var result error
	for range q.queues {
		result = errors.Join(result, <-errs)
	}
	return result
}

func (q *EffectQueue) barrier(ctx context.Context, shard int) error {
	reached := make(chan struct{})
	marker := JobFunc(func(context.Context) error {
		close(reached)
		return nil
	})
	if err := q.submitToShard(ctx, shard, queuedJob{ctx: ctx, key: "barrier", job: marker}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-reached:
		return nil
	}
}

// Close stops accepting jobs, runs what is already queued once more without
// retries, and waits for the workers to exit. It is idempotent.
func (q *EffectQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(q.done)
	q.wg.Wait()
	return nil
}

func (q *EffectQueue) runWorker(idx int, ch <-chan queuedJob) {
	defer q.wg.Done()
	label := strconv.Itoa(idx)

	for {
		select {
		case qj := <-ch:
			q.runWithRetry(label, qj)

		case <-q.done:
			for {
				select {
				case qj := <-ch:
					if err := q.runOnce(label, qj); err != nil {
						q.fail(label, qj, err)
					}
				default:
					return
				}
			}
		}
	}
}

func (q *EffectQueue) runWithRetry(label string, qj queuedJob) {
	if qj.job == nil {
		return
	}
	if err := qj.ctx.Err(); err != nil {
		q.fail(label, qj, err)
		return
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = q.cfg.BaseBackoff
	exp.MaxInterval = q.cfg.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(q.cfg.MaxAttempts-1)), qj.ctx)

	err := backoff.RetryNotify(
		func() error { return q.runOnce(label, qj) },
		policy,
		func(err error, wait time.Duration) {
			q.log.Debug().Err(err).Str("key", qj.key).Dur("retry_in", wait).Msg("effect failed, retrying")
		},
	)
	if err != nil {
		q.fail(label, qj, err)
	}
}

func (q *EffectQueue) runOnce(label string, qj queuedJob) (err error) {
	if qj.job == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = backoff.Permanent(fmt.Errorf("effect panicked: %v", r))
		}
	}()
	start := time.Now()
	err = qj.job.Run(qj.ctx)
	effectDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return err
}

func (q *EffectQueue) fail(label string, qj queuedJob, err error) {
	effectFailures.WithLabelValues(label).Inc()
	q.log.Warn().Err(err).Str("key", qj.key).Msg("effect failed")
}

func (q *EffectQueue) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.queues)))
}
