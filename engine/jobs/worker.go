package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/recallhq/recall/engine/ai"
	"github.com/recallhq/recall/engine/content"
	"github.com/recallhq/recall/engine/semantic"
	"github.com/recallhq/recall/pkg/metrics"
	"github.com/recallhq/recall/pkg/natsutil"
)

// VectorWriter is the slice of the vector index the worker needs.
type VectorWriter interface {
	Upsert(ctx context.Context, rec semantic.VectorRecord) error
}

// Options bound the worker pool's concurrency, throughput and retry policy.
type Options struct {
	// Concurrency is the number of jobs processed simultaneously.
	Concurrency int
	// RateLimit caps oracle calls per second across all workers; Burst is
	// the token bucket capacity.
	RateLimit rate.Limit
	Burst     int
	// MaxAttempts bounds retries per job delivery; BackoffBase is the first
	// retry delay, doubling each attempt.
	MaxAttempts int
	BackoffBase time.Duration
}

// DefaultOptions matches the oracle's external rate limits.
func DefaultOptions() Options {
	return Options{
		Concurrency: 5,
		RateLimit:   10,
		Burst:       10,
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
	}
}

// Deps holds the worker pool's external dependencies.
type Deps struct {
	Embedder ai.Embedder
	Vectors  VectorWriter
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

// Worker drains the job queue: rebuild combined text from the snapshot,
// embed it, upsert into the vector index. Any step failing triggers the
// retry policy; exhaustion hands the job to the DLQ.
type Worker struct {
	deps    Deps
	opts    Options
	limiter *rate.Limiter
	sem     chan struct{}
	wg      sync.WaitGroup

	// sleep and exhausted are replaceable for tests.
	sleep     func(ctx context.Context, d time.Duration) error
	exhausted func(ctx context.Context, f FailedJob)

	received  *metrics.Counter
	completed *metrics.Counter
	retried   *metrics.Counter
	failed    *metrics.Counter
	inflight  *metrics.Gauge
	duration  *metrics.Histogram
}

// NewWorker creates a worker pool. Start must be called to begin consuming.
func NewWorker(deps Deps, opts Options) *Worker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultOptions().BackoffBase
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultOptions().RateLimit
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultOptions().Burst
	}

	w := &Worker{
		deps:    deps,
		opts:    opts,
		limiter: rate.NewLimiter(opts.RateLimit, opts.Burst),
		sem:     make(chan struct{}, opts.Concurrency),
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}

	reg := deps.Metrics
	w.received = reg.Counter("embed_jobs_received_total", "Embedding jobs consumed from the queue")
	w.completed = reg.Counter("embed_jobs_completed_total", "Embedding jobs completed")
	w.retried = reg.Counter("embed_jobs_retried_total", "Embedding job attempts retried")
	w.failed = reg.Counter("embed_jobs_exhausted_total", "Embedding jobs with retries exhausted")
	w.inflight = reg.Gauge("embed_jobs_inflight", "Embedding jobs currently processing")
	w.duration = reg.Histogram("embed_job_duration_seconds", "Embedding job duration", nil)
	return w
}

// Start subscribes the pool to the job subject. Exhausted jobs are
// published to the DLQ on the same connection.
func (w *Worker) Start(nc *nats.Conn) (*nats.Subscription, error) {
	if w.exhausted == nil {
		w.exhausted = func(ctx context.Context, f FailedJob) {
			if err := natsutil.Publish(ctx, nc, DLQSubject, f); err != nil {
				w.deps.Logger.Error("dlq publish failed", "content_id", f.Job.ContentID, "err", err)
			}
		}
	}

	return natsutil.Subscribe(nc, JobsSubject, func(ctx context.Context, job Job) {
		w.received.Inc()
		w.sem <- struct{}{}
		w.wg.Add(1)
		go func() {
			defer func() { <-w.sem; w.wg.Done() }()
			w.Run(ctx, job)
		}()
	})
}

// Drain waits for in-flight jobs to finish. Call after unsubscribing.
func (w *Worker) Drain() {
	w.wg.Wait()
}

// Run executes one job delivery with the retry policy. Re-running the same
// snapshot is idempotent: it overwrites the same point with the same
// payload.
func (w *Worker) Run(ctx context.Context, job Job) {
	w.inflight.Inc()
	start := time.Now()
	defer func() {
		w.inflight.Dec()
		w.duration.Since(start)
	}()

	combined := content.CombineForEmbedding(job.Fields)

	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		lastErr = w.attempt(ctx, job, combined)
		if lastErr == nil {
			w.completed.Inc()
			w.deps.Logger.Info("embedding job completed",
				"content_id", job.ContentID, "attempt", attempt)
			return
		}

		w.deps.Logger.Warn("embedding job attempt failed",
			"content_id", job.ContentID,
			"attempt", attempt,
			"max_attempts", w.opts.MaxAttempts,
			"err", lastErr,
		)

		if attempt == w.opts.MaxAttempts {
			break
		}

		w.retried.Inc()
		// 2s, 4s, 8s, ... between attempts.
		delay := w.opts.BackoffBase << (attempt - 1)
		if err := w.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	w.failed.Inc()
	w.deps.Logger.Error("embedding job exhausted",
		"content_id", job.ContentID, "err", lastErr)
	if w.exhausted != nil {
		w.exhausted(ctx, FailedJob{
			Job:      job,
			Error:    lastErr.Error(),
			Attempts: w.opts.MaxAttempts,
			FailedAt: time.Now().UTC(),
		})
	}
}

// attempt is one embed-and-upsert pass, gated by the shared rate limiter.
func (w *Worker) attempt(ctx context.Context, job Job, combined string) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	vector, err := w.deps.Embedder.EmbedDocument(ctx, combined)
	if err != nil {
		return err
	}

	return w.deps.Vectors.Upsert(ctx, semantic.VectorRecord{
		ID:           job.ContentID,
		Vector:       vector,
		Title:        job.Fields.Title,
		Type:         job.Fields.Type,
		Labels:       job.Fields.Labels,
		CombinedText: combined,
	})
}
