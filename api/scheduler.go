/*
scheduler.go - Background suggestion refresh

PURPOSE:
  Periodically refreshes the suggestion feed so the grid surfaces new
  document-extraction and service suggestions without user action.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - DROPS itself when the reconciliation guard reports edits in flight:
    refreshes are never queued, the next tick retries naturally
  - A tick's fetch participates in the guard's generation tracking, so a
    user-triggered fetch supersedes a tick that is still in flight

CONFIGURATION:
  - Interval: How often to refresh (default: 30 seconds)
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  sched := api.NewRefreshScheduler(store, guard, fundID, logger)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - guard/guard.go: AllowRefresh and generation semantics
  - suggest/store.go: The fetch being scheduled
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/matrix-engine/grid"
	"github.com/warp/matrix-engine/guard"
	"github.com/warp/matrix-engine/suggest"
)

// RefreshScheduler drives periodic suggestion refreshes.
type RefreshScheduler struct {
	Suggestions *suggest.Store
	Guard       *guard.Guard
	FundID      string
	Interval    time.Duration
	Enabled     bool

	log    *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRefreshScheduler creates a scheduler with the default interval.
func NewRefreshScheduler(store *suggest.Store, g *guard.Guard, fundID string, log *slog.Logger) *RefreshScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &RefreshScheduler{
		Suggestions: store,
		Guard:       g,
		FundID:      fundID,
		Interval:    30 * time.Second,
		Enabled:     true,
		log:         log,
		stop:        make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info("refresh scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)
	go rs.run()

	rs.log.Info("refresh scheduler started", "interval", rs.Interval)
}

// Stop stops the scheduler.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.log.Info("refresh scheduler stopped")
	}
}

func (rs *RefreshScheduler) run() {
	defer rs.wg.Done()

	// Refresh immediately on start
	rs.refresh()

	for {
		select {
		case <-rs.ticker.C:
			rs.refresh()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RefreshScheduler) refresh() {
	// Drop-don't-queue: a tick that finds edits in flight skips itself
	// and the next tick retries naturally.
	if !rs.Guard.AllowRefresh("scheduled_suggestion_refresh") {
		return
	}
	_, err := rs.Suggestions.Fetch(context.Background(), rs.FundID)
	switch {
	case err == nil:
	case grid.IsSuperseded(err):
		// A newer fetch won. Silent.
	default:
		rs.log.Warn("scheduled suggestion refresh failed", "error", err)
	}
}

// RunNow triggers an immediate refresh (for testing/admin).
func (rs *RefreshScheduler) RunNow() {
	rs.refresh()
}
