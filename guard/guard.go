/*
Package guard provides the concurrency controller for the grid engine.

PURPOSE:
  Four writers touch the grid asynchronously. The guard is the component
  that keeps them from trampling each other without ever blocking:

  1. An in-flight-write counter. Any edit/accept increments it before
     starting and decrements after (accepts after a trailing cooldown, to
     absorb replication lag in the backing store). Background refresh entry
     points check the counter and DROP themselves when it is nonzero —
     refreshes are never queued, they are retried on the next natural
     trigger.
  2. Request generations. Starting a new instance of an operation kind
     (suggestion fetch, portfolio reload, batch polling) cancels the
     previous instance with a supersession cause. Abort-then-replace,
     never queue-then-serialize.
  3. The protected-sources merge rule (merge.go): a background poll can
     never silently discard a manual or agent edit.

LIFECYCLE:
  The guard is an explicit instance passed by reference to every component
  that needs it — never a module singleton — so multiple independent grids
  can coexist in one process and tests get a fresh guard each.

    rg := guard.New(logger)
    defer rg.Dispose()

SEE ALSO:
  - merge.go: PreserveProtected
  - suggest/store.go: Accept/reject routed through the counter
  - api/scheduler.go: Background refresh honoring AllowRefresh
*/
package guard

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/matrix-engine/grid"
)

// OpKind names an operation family for generation tracking. A new instance
// of a kind supersedes the previous instance of the same kind.
type OpKind string

const (
	OpSuggestionFetch OpKind = "suggestion_fetch"
	OpPortfolioReload OpKind = "portfolio_reload"
	OpBatchSearch     OpKind = "batch_search"
)

// DefaultAcceptCooldown is how long the counter stays held after a
// successful accept, covering read-after-write lag on the server.
const DefaultAcceptCooldown = 2 * time.Second

// Guard is the reconciliation controller. Zero value is not usable; call New.
type Guard struct {
	log *slog.Logger

	inFlight atomic.Int64

	mu          sync.Mutex
	generations map[OpKind]*generation
	timers      []*time.Timer
	disposed    bool
}

type generation struct {
	seq    uint64
	cancel context.CancelCauseFunc
}

// New creates a guard. The logger records dropped refreshes and
// supersessions; pass slog.Default() if in doubt.
func New(log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		log:         log,
		generations: make(map[OpKind]*generation),
	}
}

// Dispose cancels all outstanding generations and pending cooldown timers.
// The guard must not be used afterwards.
func (g *Guard) Dispose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disposed = true
	for _, gen := range g.generations {
		gen.cancel(grid.ErrSuperseded)
	}
	g.generations = make(map[OpKind]*generation)
	for _, t := range g.timers {
		t.Stop()
	}
	g.timers = nil
}

// =============================================================================
// IN-FLIGHT WRITE COUNTER
// =============================================================================

// Acquire marks an edit as in flight. Pair with Release or ReleaseAfter.
func (g *Guard) Acquire() {
	g.inFlight.Add(1)
}

// Release marks an edit as settled immediately.
func (g *Guard) Release() {
	if n := g.inFlight.Add(-1); n < 0 {
		// Unbalanced release is a programming error; clamp and log rather
		// than poisoning the counter forever.
		g.inFlight.Store(0)
		g.log.Warn("guard: unbalanced release")
	}
}

// ReleaseAfter holds the counter for the cooldown window before releasing.
// Used by suggestion accepts so a refresh scheduled immediately after the
// server call still sees "edit in flight" until replication settles.
func (g *Guard) ReleaseAfter(cooldown time.Duration) {
	if cooldown <= 0 {
		g.Release()
		return
	}
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		g.Release()
		return
	}
	// The fired timer prunes itself so the slice stays bounded on a
	// long-lived guard. t is read back under g.mu only.
	var t *time.Timer
	t = time.AfterFunc(cooldown, func() {
		g.Release()
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, x := range g.timers {
			if x == t {
				g.timers = append(g.timers[:i], g.timers[i+1:]...)
				return
			}
		}
	})
	g.timers = append(g.timers, t)
	g.mu.Unlock()
}

// PendingCooldowns reports cooldown timers armed but not yet fired.
func (g *Guard) PendingCooldowns() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

// WithEditLock runs fn with the counter held. The counter releases as soon
// as fn returns; use Acquire/ReleaseAfter directly when a cooldown applies.
func (g *Guard) WithEditLock(fn func() error) error {
	g.Acquire()
	defer g.Release()
	return fn()
}

// InFlight returns the current counter value.
func (g *Guard) InFlight() int64 { return g.inFlight.Load() }

// AllowRefresh reports whether a background refresh may run. When edits are
// in flight the refresh is dropped (logged, never queued) and the caller
// should return grid.ErrEditInFlight.
func (g *Guard) AllowRefresh(op string) bool {
	if n := g.inFlight.Load(); n > 0 {
		g.log.Info("guard: refresh dropped, edits in flight",
			"op", op, "in_flight", n)
		return false
	}
	return true
}

// =============================================================================
// REQUEST GENERATIONS - Abort-then-replace
// =============================================================================

// NextGeneration starts a new instance of the operation kind, cancelling the
// previous instance with a supersession cause. The returned context is
// derived from parent; the returned sequence number identifies the
// generation for staleness checks after resumption.
func (g *Guard) NextGeneration(parent context.Context, kind OpKind) (context.Context, uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var seq uint64 = 1
	if prev, ok := g.generations[kind]; ok {
		prev.cancel(grid.ErrSuperseded)
		seq = prev.seq + 1
		g.log.Debug("guard: superseding request", "kind", string(kind), "seq", seq)
	}

	ctx, cancel := context.WithCancelCause(parent)
	g.generations[kind] = &generation{seq: seq, cancel: cancel}
	return ctx, seq
}

// CurrentGeneration returns the live sequence number for the kind. An
// operation that suspended across a network call compares its own sequence
// against this before applying results.
func (g *Guard) CurrentGeneration(kind OpKind) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen, ok := g.generations[kind]; ok {
		return gen.seq
	}
	return 0
}

// CancelGeneration aborts the live instance of the kind, if any, with the
// given cause. A nil cause marks supersession.
func (g *Guard) CancelGeneration(kind OpKind, cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen, ok := g.generations[kind]; ok {
		if cause == nil {
			cause = grid.ErrSuperseded
		}
		gen.cancel(cause)
		delete(g.generations, kind)
	}
}
