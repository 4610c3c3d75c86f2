// Package scheduler serializes index runs. At most one run executes at
// a time; change sets submitted while a run is in flight merge into a
// single pending batch instead of queueing. Transient failures retry
// with exponential backoff, fatal ones never do.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
	"github.com/cocodex/cocowatch/internal/indexer"
	"github.com/cocodex/cocowatch/internal/watcher"
)

// RunStatus is the lifecycle state of an index run.
type RunStatus string

const (
	// StatusPending means the run is waiting for the run slot.
	StatusPending RunStatus = "pending"
	// StatusRunning means the run holds the slot and is executing.
	StatusRunning RunStatus = "running"
	// StatusSucceeded means the run completed.
	StatusSucceeded RunStatus = "succeeded"
	// StatusFailed means the run failed after exhausting retries, hit
	// a fatal error, or was cancelled.
	StatusFailed RunStatus = "failed"
)

// IndexRun is one attempt to bring the store up to date.
type IndexRun struct {
	// ID uniquely identifies the run.
	ID string

	// Full marks a full-tree pass; Paths is empty for those.
	Full bool

	// Paths is the change set driving an incremental run.
	Paths []string

	// Status is the run's lifecycle state.
	Status RunStatus

	// Attempts counts indexer invocations, including the first.
	Attempts int

	// Result holds the indexer's summary once the run finished.
	Result indexer.Result

	// Error describes the failure for failed runs.
	Error string

	// StartedAt and FinishedAt bound the run's execution.
	StartedAt  time.Time
	FinishedAt time.Time
}

// SubmitOutcome reports what Submit did with a change set.
type SubmitOutcome string

const (
	// OutcomeScheduled means the change set became a new pending batch.
	OutcomeScheduled SubmitOutcome = "scheduled"
	// OutcomeCoalesced means the change set merged into an existing
	// pending batch.
	OutcomeCoalesced SubmitOutcome = "coalesced"
	// OutcomeRejected means the scheduler is draining or stopped.
	OutcomeRejected SubmitOutcome = "rejected"
)

// Snapshot is a point-in-time view of scheduler state, served by the
// index_status tool.
type Snapshot struct {
	// Running is the in-flight run, nil when the slot is idle.
	Running *IndexRun

	// PendingPaths is the size of the batch waiting for the slot.
	PendingPaths int

	// PendingFull marks that a full pass is waiting.
	PendingFull bool

	// LastRun is the most recently finished run, nil before the first.
	LastRun *IndexRun

	// Succeeded and Failed count finished runs.
	Succeeded int
	Failed    int
}

// Options configures a Scheduler.
type Options struct {
	// Flow is passed through to the indexer.
	Flow string

	// MaxRetries bounds retries for a transient failure.
	// Default: 3
	MaxRetries int

	// InitialDelay is the first retry backoff. Default: 500ms
	InitialDelay time.Duration

	// MaxDelay caps the backoff. Default: 30s
	MaxDelay time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.InitialDelay == 0 {
		o.InitialDelay = 500 * time.Millisecond
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Scheduler owns the single run slot and the pending batch.
type Scheduler struct {
	indexer indexer.Indexer
	opts    Options
	logger  *slog.Logger

	mu          sync.Mutex
	running     *IndexRun
	pending     *watcher.ChangeSet
	pendingFull bool
	lastRun     *IndexRun
	succeeded   int
	failed      int
	draining    bool
	stopped     bool
	idleCh      chan struct{} // closed and replaced whenever the slot frees

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a scheduler driving the given indexer.
func New(idx indexer.Indexer, opts Options) *Scheduler {
	opts = opts.WithDefaults()
	return &Scheduler{
		indexer: idx,
		opts:    opts,
		logger:  opts.Logger,
		idleCh:  make(chan struct{}),
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the worker goroutine. Runs execute under the given
// context; cancelling it aborts the in-flight run.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Submit hands a settled change set to the scheduler. Empty sets are
// ignored. When the run slot is busy or a batch is already waiting,
// the set merges into the single pending batch.
func (s *Scheduler) Submit(cs watcher.ChangeSet) SubmitOutcome {
	if cs.Empty() {
		return OutcomeRejected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining || s.stopped {
		s.logger.Warn("change set rejected, scheduler is draining",
			slog.Int("paths", len(cs.Paths)))
		return OutcomeRejected
	}

	if s.pending != nil {
		merged := s.pending.Merge(cs)
		s.pending = &merged
		s.wake()
		return OutcomeCoalesced
	}

	s.pending = &cs
	s.wake()
	return OutcomeScheduled
}

// SubmitFull schedules a full-tree pass. A pending full pass subsumes
// any pending incremental batch.
func (s *Scheduler) SubmitFull() SubmitOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining || s.stopped {
		return OutcomeRejected
	}

	outcome := OutcomeScheduled
	if s.pendingFull {
		outcome = OutcomeCoalesced
	}
	s.pendingFull = true
	s.wake()
	return outcome
}

// wake signals the worker. Callers hold s.mu.
func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.wakeCh:
		}

		for {
			run := s.takePending()
			if run == nil {
				break
			}
			s.execute(ctx, run)
		}
	}
}

// takePending promotes the pending batch into the run slot. Returns
// nil when nothing is waiting.
func (s *Scheduler) takePending() *IndexRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pendingFull && s.pending == nil {
		return nil
	}

	run := &IndexRun{
		ID:     uuid.NewString(),
		Status: StatusRunning,
	}
	if s.pendingFull {
		run.Full = true
		s.pendingFull = false
		// A full pass visits everything, the incremental batch is
		// subsumed.
		s.pending = nil
	} else {
		run.Paths = s.pending.Paths
		s.pending = nil
	}

	run.StartedAt = time.Now()
	s.running = run
	return run
}

func (s *Scheduler) execute(ctx context.Context, run *IndexRun) {
	s.logger.Info("index run started",
		slog.String("run_id", run.ID),
		slog.Bool("full", run.Full),
		slog.Int("paths", len(run.Paths)))

	retryCfg := cocoerrors.RetryConfig{
		MaxRetries:   s.opts.MaxRetries,
		InitialDelay: s.opts.InitialDelay,
		MaxDelay:     s.opts.MaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			s.logger.Warn("index run attempt failed, retrying",
				slog.String("run_id", run.ID),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()))
		},
	}

	var result indexer.Result
	err := cocoerrors.Retry(ctx, retryCfg, func() error {
		// Status copies the run under the same lock, so the counter
		// must not be bumped bare.
		s.mu.Lock()
		run.Attempts++
		s.mu.Unlock()
		var ierr error
		paths := run.Paths
		if run.Full {
			paths = nil
		}
		result, ierr = s.indexer.Index(ctx, s.opts.Flow, paths)
		return ierr
	})

	s.finish(run, result, err)
}

func (s *Scheduler) finish(run *IndexRun, result indexer.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.FinishedAt = time.Now()
	run.Result = result

	switch {
	case err == nil:
		run.Status = StatusSucceeded
		s.succeeded++
		s.logger.Info("index run succeeded",
			slog.String("run_id", run.ID),
			slog.Int("attempts", run.Attempts),
			slog.Int("indexed", result.Indexed),
			slog.Int("deleted", result.Deleted),
			slog.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))
	case errors.Is(err, context.Canceled) || cocoerrors.GetCode(err) == cocoerrors.ErrCodeIndexCancelled:
		run.Status = StatusFailed
		run.Error = err.Error()
		s.failed++
		s.logger.Warn("index run cancelled",
			slog.String("run_id", run.ID),
			slog.Int("attempts", run.Attempts))
	default:
		run.Status = StatusFailed
		run.Error = err.Error()
		s.failed++
		// The batch is dropped, a later change or a manual full pass
		// must re-cover these paths.
		s.logger.Error("index run failed, dropping change set",
			slog.String("run_id", run.ID),
			slog.Int("attempts", run.Attempts),
			slog.Bool("full", run.Full),
			slog.Int("paths", len(run.Paths)),
			slog.Bool("retryable", cocoerrors.IsRetryable(err)),
			slog.String("error", err.Error()))
	}

	s.running = nil
	s.lastRun = run
	close(s.idleCh)
	s.idleCh = make(chan struct{})
}

// Status returns a point-in-time view. The returned runs are copies.
func (s *Scheduler) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		PendingFull: s.pendingFull,
		Succeeded:   s.succeeded,
		Failed:      s.failed,
	}
	if s.pending != nil {
		snap.PendingPaths = len(s.pending.Paths)
	}
	if s.running != nil {
		c := *s.running
		snap.Running = &c
	}
	if s.lastRun != nil {
		c := *s.lastRun
		snap.LastRun = &c
	}
	return snap
}

// Drain stops accepting new change sets, drops any pending batch, and
// waits up to grace for the in-flight run. Returns ERR_601 when the
// run outlives the grace period; the caller then cancels the run
// context, which records the run as failed.
func (s *Scheduler) Drain(grace time.Duration) error {
	s.mu.Lock()
	s.draining = true
	if s.pending != nil || s.pendingFull {
		s.logger.Warn("dropping pending change set on drain",
			slog.Int("paths", func() int {
				if s.pending == nil {
					return 0
				}
				return len(s.pending.Paths)
			}()),
			slog.Bool("full", s.pendingFull))
		s.pending = nil
		s.pendingFull = false
	}
	running := s.running != nil
	idleCh := s.idleCh
	s.mu.Unlock()

	if !running {
		return nil
	}

	select {
	case <-idleCh:
		return nil
	case <-time.After(grace):
		return cocoerrors.New(cocoerrors.ErrCodeShutdownTimeout,
			fmt.Sprintf("index run still in flight after %s grace", grace), nil)
	}
}

// Stop terminates the worker. A run in flight keeps the worker alive
// until it finishes or its context is cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}
