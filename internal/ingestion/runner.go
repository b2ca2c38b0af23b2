package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"attribution-engine/internal/domain"
)

// Retry backoff defaults for storage failures.
const (
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultMaxRetryBackoff = 30 * time.Second
)

// Runner feeds touchpoints from streaming sources into the ingestor.
// Envelopes from all sources are ingested one at a time, so per-source
// arrival order becomes insertion order. A storage failure is retried until
// it succeeds or ctx ends; no later envelope is acked meanwhile.
type Runner struct {
	ingestor   *Ingestor
	sources    []TouchpointSource
	logger     *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration

	ingested atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Ingestor *Ingestor
	Sources  []TouchpointSource
	Logger   *slog.Logger

	// RetryBackoff is the first delay after a storage failure, doubled per
	// attempt up to MaxRetryBackoff.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// RunnerStats summarizes what a runner has processed.
type RunnerStats struct {
	Ingested int64 // stored or idempotently matched
	Rejected int64 // validation or unknown tenant, acked and dropped
	Failed   int64 // storage errors, each retried before the next envelope
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	maxBackoff := opts.MaxRetryBackoff
	if maxBackoff < backoff {
		maxBackoff = max(DefaultMaxRetryBackoff, backoff)
	}
	return &Runner{
		ingestor:   opts.Ingestor,
		sources:    opts.Sources,
		logger:     logger,
		backoff:    backoff,
		maxBackoff: maxBackoff,
	}
}

// Run subscribes to every source and ingests until ctx is cancelled or all
// sources have closed. Sources are closed on return.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.sources) == 0 {
		return errors.New("no touchpoint sources configured")
	}

	defer func() {
		for _, src := range r.sources {
			if err := src.Close(); err != nil {
				r.logger.Warn("source close failed", "source", src.Name(), "error", err)
			}
		}
	}()

	cases := make([]reflect.SelectCase, 0, len(r.sources)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	for _, src := range r.sources {
		ch, err := src.Subscribe(ctx)
		if err != nil {
			return err
		}
		r.logger.Info("subscribed to touchpoint source", "source", src.Name())
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}

	open := len(r.sources)
	for open > 0 {
		chosen, v, ok := reflect.Select(cases)
		if chosen == 0 || ctx.Err() != nil {
			r.logger.Info("runner stopping", "ingested", r.ingested.Load(), "rejected", r.rejected.Load(), "failed", r.failed.Load())
			return ctx.Err()
		}
		if !ok {
			cases[chosen].Chan = reflect.Value{}
			open--
			continue
		}
		r.handle(ctx, v.Interface().(*Envelope))
	}

	r.logger.Info("all sources closed", "ingested", r.ingested.Load(), "rejected", r.rejected.Load(), "failed", r.failed.Load())
	return nil
}

func (r *Runner) handle(ctx context.Context, env *Envelope) {
	if env.AckOnly {
		r.ack(ctx, env)
		return
	}

	backoff := r.backoff
	for {
		id, err := r.ingestor.Ingest(ctx, env.TenantID, env.Input)
		if err == nil {
			r.ingested.Add(1)
			r.logger.Debug("ingested touchpoint", "source", env.Source, "tenant", env.TenantID, "touchpoint_id", id)
			r.ack(ctx, env)
			return
		}

		var ve *domain.ValidationError
		var nf *domain.NotFoundError
		if errors.As(err, &ve) || errors.As(err, &nf) {
			r.rejected.Add(1)
			r.logger.Warn("rejected touchpoint", "source", env.Source, "tenant", env.TenantID, "error", err)
			r.ack(ctx, env)
			return
		}

		r.failed.Add(1)
		r.logger.Error("ingest failed, retrying", "source", env.Source, "tenant", env.TenantID, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, r.maxBackoff)
	}
}

func (r *Runner) ack(ctx context.Context, env *Envelope) {
	if env.Ack == nil {
		return
	}
	if err := env.Ack(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("ack failed", "source", env.Source, "error", err)
	}
}

// Stats returns counters since the runner started.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Ingested: r.ingested.Load(),
		Rejected: r.rejected.Load(),
		Failed:   r.failed.Load(),
	}
}
