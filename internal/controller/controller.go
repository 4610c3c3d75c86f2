// Package controller supervises the coordinator's components according
// to the configured mode. It owns startup ordering, the shared store,
// and the drain sequence on shutdown.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cocodex/cocowatch/internal/config"
	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
	"github.com/cocodex/cocowatch/internal/indexer"
	"github.com/cocodex/cocowatch/internal/mcp"
	"github.com/cocodex/cocowatch/internal/scanner"
	"github.com/cocodex/cocowatch/internal/scheduler"
	"github.com/cocodex/cocowatch/internal/store"
	"github.com/cocodex/cocowatch/internal/watcher"
)

// State is the controller's lifecycle phase.
type State string

const (
	// StateStarting covers lock acquisition, store open, and
	// component construction.
	StateStarting State = "starting"
	// StateRunning means all mode components are live.
	StateRunning State = "running"
	// StateDraining means shutdown began and in-flight work is being
	// settled under the grace budget.
	StateDraining State = "draining"
	// StateStopped means everything is released.
	StateStopped State = "stopped"
)

// Controller wires watcher, debouncer, scheduler, store, and serving
// endpoint together for one watch root.
type Controller struct {
	cfg    *config.Config
	logger *slog.Logger

	mu    sync.RWMutex
	state State

	lock      *DataLock
	store     *store.SQLiteStore
	watcher   *watcher.FSWatcher
	debouncer *watcher.Debouncer
	sched     *scheduler.Scheduler
	server    *mcp.Server
}

// New creates a controller for a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		logger: logger,
		state:  StateStarting,
	}, nil
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger.Info("controller state changed", slog.String("state", string(s)))
}

// Scheduler returns the index scheduler, nil in serve-only mode.
// Exposed for status inspection.
func (c *Controller) Scheduler() *scheduler.Scheduler {
	return c.sched
}

// Run executes the configured mode until the context is cancelled,
// then drains and releases everything. It blocks for the whole
// lifetime of the coordinator.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setState(StateStopped)

	if err := c.start(); err != nil {
		c.cleanup()
		return err
	}

	// Index runs get a context detached from ctx so an in-flight run
	// survives into the drain window instead of dying with the first
	// Ctrl-C.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	if c.sched != nil {
		c.sched.Start(runCtx)
		if c.cfg.InitialIndex {
			// The initial pass goes straight to the scheduler, the
			// debouncer only sees live events.
			c.logger.Info("scheduling initial full index")
			c.sched.SubmitFull()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if c.cfg.Mode.Watches() {
		c.startPipeline(g, gctx)
	}
	if c.cfg.Mode.Serves() {
		g.Go(func() error {
			return c.server.Serve(gctx, c.cfg.Address)
		})
	}

	c.setState(StateRunning)
	<-gctx.Done()

	c.setState(StateDraining)
	drainErr := c.drain(cancelRuns)

	err := g.Wait()
	c.cleanup()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return drainErr
}

// start acquires the lock, opens the store, and builds the components
// the mode needs.
func (c *Controller) start() error {
	if c.cfg.Mode.Watches() {
		c.lock = NewDataLock(c.cfg.DataDir())
		if err := c.lock.Acquire(); err != nil {
			return err
		}
	}

	dbPath := c.cfg.DatabaseURL
	if dbPath == "" {
		dbPath = c.cfg.DefaultDatabaseURL()
	}
	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	c.store = st

	if c.cfg.Mode.Watches() {
		scanOpts := scanner.Options{
			Root:           c.cfg.WatchPath,
			NonRecursive:   !c.cfg.Recursive,
			IgnorePatterns: c.cfg.IgnorePatterns,
		}
		idx := indexer.NewDocumentIndexer(c.cfg.WatchPath, st, scanOpts)
		c.sched = scheduler.New(idx, scheduler.Options{
			Flow:       c.cfg.Flow,
			MaxRetries: c.cfg.MaxRetries,
			Logger:     c.logger,
		})

		w, err := watcher.NewFSWatcher(watcher.Options{
			NonRecursive:   !c.cfg.Recursive,
			IgnorePatterns: c.cfg.IgnorePatterns,
		})
		if err != nil {
			return cocoerrors.WatchError(cocoerrors.ErrCodeWatchInit, "create watcher", err)
		}
		c.watcher = w
		c.debouncer = watcher.NewDebouncer(c.cfg.DebounceWindow)
	}

	if c.cfg.Mode.Serves() {
		srv, err := mcp.NewServer(st, c.sched, mcp.Options{Logger: c.logger})
		if err != nil {
			return cocoerrors.ServeError("create MCP server", err)
		}
		c.server = srv
	}

	return nil
}

// startPipeline runs watcher -> debouncer -> scheduler.
func (c *Controller) startPipeline(g *errgroup.Group, gctx context.Context) {
	g.Go(func() error {
		err := c.watcher.Start(gctx, c.cfg.WatchPath)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Raw events feed the debouncer; watcher errors are surfaced but
	// never stop the pipeline.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case event, ok := <-c.watcher.Events():
				if !ok {
					return nil
				}
				c.debouncer.Add(event)
			case err, ok := <-c.watcher.Errors():
				if !ok {
					return nil
				}
				c.logger.Warn("watch error",
					slog.String("code", cocoerrors.GetCode(err)),
					slog.String("error", err.Error()))
				if cocoerrors.GetCode(err) == cocoerrors.ErrCodeWatchOverflow {
					// Events were lost, re-derive everything.
					c.sched.SubmitFull()
				}
			}
		}
	})

	// Settled change sets feed the scheduler.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case cs, ok := <-c.debouncer.Output():
				if !ok {
					return nil
				}
				outcome := c.sched.Submit(cs)
				c.logger.Debug("change set submitted",
					slog.Int("paths", len(cs.Paths)),
					slog.String("outcome", string(outcome)))
			}
		}
	})
}

// drain settles in-flight work under the shutdown grace budget. A run
// that outlives the budget is cancelled and recorded as failed.
func (c *Controller) drain(cancelRuns context.CancelFunc) error {
	if c.watcher != nil {
		_ = c.watcher.Stop()
	}
	if c.debouncer != nil {
		c.debouncer.Stop()
	}

	var drainErr error
	if c.sched != nil {
		if err := c.sched.Drain(c.cfg.ShutdownGrace); err != nil {
			c.logger.Error("shutdown grace exceeded, cancelling index run",
				slog.String("error", err.Error()))
			cancelRuns()
			drainErr = err
		}
		c.sched.Stop()
	}
	return drainErr
}

// cleanup releases the store and the data lock.
func (c *Controller) cleanup() {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("closing store", slog.String("error", err.Error()))
		}
	}
	if c.lock != nil {
		if err := c.lock.Release(); err != nil {
			c.logger.Warn("releasing coordinator lock", slog.String("error", err.Error()))
		}
	}
}
