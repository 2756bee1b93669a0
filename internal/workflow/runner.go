package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// ErrStopped is returned by Submit once the runner has been stopped.
var ErrStopped = errors.New("workflow runner stopped")

// SnapshotSource provides the current portfolio snapshot at instance creation.
type SnapshotSource interface {
	Current() *domain.PortfolioSnapshot
}

// Sink receives the finalized alert exactly once per instance.
type Sink interface {
	Deliver(ctx context.Context, alert *domain.Alert) error
}

// Runner drives workflow instances over a bounded worker pool. Each admitted
// violation becomes one instance; instances are independent and run
// concurrently up to the worker count.
type Runner struct {
	stages    *Stages
	snapshots SnapshotSource
	sink      Sink
	log       zerolog.Logger

	queue   chan domain.ViolationEvent
	done    chan struct{}
	workers int
	wg      sync.WaitGroup

	// mu serializes queue sends against the close in Stop.
	mu        sync.RWMutex
	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
}

func NewRunner(stages *Stages, snapshots SnapshotSource, sink Sink, workers int, log zerolog.Logger) *Runner {
	if workers <= 0 {
		workers = 4
	}
	r := &Runner{
		stages:    stages,
		snapshots: snapshots,
		sink:      sink,
		log:       log.With().Str("component", "workflow_runner").Logger(),
		queue:     make(chan domain.ViolationEvent, workers*8),
		done:      make(chan struct{}),
		workers:   workers,
	}
	return r
}

// Start launches the worker pool.
func (r *Runner) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go r.worker(ctx)
		}
		r.log.Info().Int("workers", r.workers).Msg("Workflow runner started")
	})
}

// Submit enqueues an admitted violation for processing. It blocks when the
// queue is full, applying backpressure to the detection pipeline rather than
// dropping alerts. After Stop it returns ErrStopped instead of panicking on
// the closed queue.
func (r *Runner) Submit(ctx context.Context, event domain.ViolationEvent) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	select {
	case <-r.done:
		return ErrStopped
	default:
	}

	select {
	case r.queue <- event:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains in-flight instances and shuts the pool down. Closing done
// first unblocks any Submit waiting on a full queue; the write lock is not
// granted until those submitters release their read locks, so the queue is
// only closed once no sender can touch it.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		close(r.queue)
		r.mu.Unlock()
		r.wg.Wait()
		if r.cancel != nil {
			r.cancel()
		}
		r.log.Info().Msg("Workflow runner stopped")
	})
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for event := range r.queue {
		r.run(ctx, event)
	}
}

// run executes the six stages for one violation. The snapshot is captured
// here, before any stage runs, and the instance never sees a newer one.
func (r *Runner) run(ctx context.Context, event domain.ViolationEvent) {
	in := NewInstance(event, r.snapshots.Current())

	r.stages.Analyze(ctx, in)
	r.stages.AssessImpact(in)
	r.stages.Recommend(ctx, in)
	r.stages.DraftEmail(ctx, in)
	r.stages.DecideEscalation(in)
	alert := r.stages.Finalize(in)

	if err := r.sink.Deliver(ctx, alert); err != nil {
		r.log.Error().
			Err(err).
			Str("alert_id", alert.AlertID).
			Str("violation_key", event.ViolationKey).
			Msg("Alert delivery failed after retries")
		return
	}

	r.log.Debug().
		Str("alert_id", alert.AlertID).
		Str("event_id", event.EventID).
		Msg("Workflow instance completed")
}
