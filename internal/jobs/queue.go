package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"xgrowth/internal/limits"
	"xgrowth/internal/logging"
	"xgrowth/internal/metrics"
	"xgrowth/internal/xapi"
)

// Kind names a job family. Each kind has its own worker pool so a slow
// auto-post cannot starve discovery.
type Kind string

const (
	KindDiscovery  Kind = "discovery"
	KindEngagement Kind = "engagement"
	KindAutoPost   Kind = "autopost"
)

const (
	maxAttempts    = 3
	backoffBase    = 1 * time.Second
	queueDepth     = 256
	idempotencyTTL = time.Minute
)

// Handle identifies an enqueued job. Deduped is true when an identical job
// was already enqueued within the current minute and this call was absorbed.
type Handle struct {
	ID      string
	Kind    Kind
	Deduped bool
}

type job struct {
	id     string
	kind   Kind
	userID string
	force  bool
}

// Queue is the in-process job queue: one bounded channel and a fixed worker
// pool per kind, minute-bucket idempotency on enqueue, and bounded retry with
// exponential backoff for retryable failures.
type Queue struct {
	deps Deps
	ch   map[Kind]chan job
	wg   sync.WaitGroup
}

// NewQueue builds a stopped queue over deps. Worker counts come from
// deps.Cfg.Workers.
func NewQueue(deps Deps) *Queue {
	return &Queue{
		deps: deps,
		ch: map[Kind]chan job{
			KindDiscovery:  make(chan job, queueDepth),
			KindEngagement: make(chan job, queueDepth),
			KindAutoPost:   make(chan job, queueDepth),
		},
	}
}

// Start launches the worker pools. Workers drain until ctx is canceled; Wait
// blocks until they exit.
func (q *Queue) Start(ctx context.Context) {
	pools := []struct {
		kind Kind
		n    int
	}{
		{KindDiscovery, q.deps.Cfg.Workers.Discovery},
		{KindEngagement, q.deps.Cfg.Workers.Engagement},
		{KindAutoPost, q.deps.Cfg.Workers.AutoPost},
	}
	for _, p := range pools {
		if p.n < 1 {
			p.n = 1
		}
		for i := 0; i < p.n; i++ {
			q.wg.Add(1)
			go q.worker(ctx, p.kind)
		}
	}
}

// Wait blocks until all workers have stopped.
func (q *Queue) Wait() { q.wg.Wait() }

func (q *Queue) worker(ctx context.Context, kind Kind) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.ch[kind]:
			q.run(ctx, j)
		}
	}
}

// run executes one job with bounded retry. Processors absorb non-retryable
// conditions themselves, so any returned error is worth another attempt
// unless classification says otherwise.
func (q *Queue) run(ctx context.Context, j job) {
	metrics.JobRuns.WithLabelValues(string(j.kind)).Inc()
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = q.process(ctx, j)
		if err == nil {
			return
		}
		if xapi.IsNonRetryable(err) || limits.IsCapExceeded(err) || ctx.Err() != nil {
			break
		}
		logging.Warn("job_retry", map[string]any{
			"job_id":  j.id,
			"kind":    string(j.kind),
			"user_id": j.userID,
			"attempt": attempt,
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoffBase << (attempt - 1)):
		}
	}
	metrics.JobErrors.WithLabelValues(string(j.kind)).Inc()
	logging.Error("job_failed", map[string]any{
		"job_id":  j.id,
		"kind":    string(j.kind),
		"user_id": j.userID,
		"error":   err.Error(),
	})
}

func (q *Queue) process(ctx context.Context, j job) error {
	switch j.kind {
	case KindDiscovery:
		_, err := RunDiscovery(ctx, q.deps, j.userID)
		return err
	case KindEngagement:
		_, err := RunEngagement(ctx, q.deps, j.userID)
		return err
	case KindAutoPost:
		_, err := RunAutoPost(ctx, q.deps, j.userID, j.force)
		return err
	default:
		return fmt.Errorf("unknown job kind %q", j.kind)
	}
}

// Enqueue schedules one job. Enqueueing the same kind and user twice within
// one minute yields a single execution; the duplicate returns Deduped=true.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, userID string, force bool) (Handle, error) {
	key := fmt.Sprintf("enqueue:%s:%s:%d", kind, userID, time.Now().Unix()/60)
	_, acquired, err := q.deps.Locker.TryAcquire(ctx, key, idempotencyTTL)
	if err != nil {
		// Backend down: accept a possible duplicate over dropping the job.
		logging.Warn("enqueue_dedup_unavailable", map[string]any{"error": err.Error()})
	} else if !acquired {
		return Handle{ID: key, Kind: kind, Deduped: true}, nil
	}

	j := job{id: uuid.NewString(), kind: kind, userID: userID, force: force}
	select {
	case q.ch[kind] <- j:
		return Handle{ID: j.id, Kind: kind}, nil
	default:
		return Handle{}, fmt.Errorf("queue full for %s", kind)
	}
}

func (q *Queue) EnqueueDiscovery(ctx context.Context, userID string) (Handle, error) {
	return q.Enqueue(ctx, KindDiscovery, userID, false)
}

func (q *Queue) EnqueueEngagement(ctx context.Context, userID string) (Handle, error) {
	return q.Enqueue(ctx, KindEngagement, userID, false)
}

func (q *Queue) EnqueueAutoPost(ctx context.Context, userID string, force bool) (Handle, error) {
	return q.Enqueue(ctx, KindAutoPost, userID, force)
}
