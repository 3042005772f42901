/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the matrix reconciliation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store and restore the latest grid snapshot
  3. Create the guard, suggestion store, and workflow interpreter
  4. Configure HTTP router and background refresh scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: matrix.db)
            Use ":memory:" for in-memory database
  -backend  Base URL of the backend services (actions, suggestions, cells)
  -fund     Fund id this instance serves

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresh scheduler and dispose the guard
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Persist a final grid snapshot and close the database

EXAMPLES:
  # Run with file database
  ./server -db="./data/matrix.db" -fund=fund-042

  # Run with in-memory database against a local backend
  ./server -db=":memory:" -backend=http://localhost:9000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/warp/matrix-engine/action"
	"github.com/warp/matrix-engine/api"
	"github.com/warp/matrix-engine/client"
	"github.com/warp/matrix-engine/grid"
	"github.com/warp/matrix-engine/guard"
	"github.com/warp/matrix-engine/notify"
	"github.com/warp/matrix-engine/store/sqlite"
	"github.com/warp/matrix-engine/suggest"
	"github.com/warp/matrix-engine/workflow"
)

// slogNotifier surfaces user-facing notifications into the server log when
// no UI transport is attached.
type slogNotifier struct {
	log *slog.Logger
}

func (n *slogNotifier) Notify(level notify.Level, message string) {
	switch level {
	case notify.LevelError:
		n.log.Error(message)
	case notify.LevelWarn:
		n.log.Warn(message)
	default:
		n.log.Info(message)
	}
}

// storeRefresher adapts the suggestion store to the interpreter's
// between-group refresh capability.
type storeRefresher struct {
	store  *suggest.Store
	fundID string
}

func (r *storeRefresher) Refresh(ctx context.Context) error {
	_, err := r.store.Fetch(ctx, r.fundID)
	return err
}

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "matrix.db", "SQLite database path")
	backend := flag.String("backend", "http://localhost:9000", "Backend services base URL")
	fundID := flag.String("fund", "default", "Fund id this instance serves")
	flag.Parse()

	log := slog.Default()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Restore the latest grid snapshot, or start empty
	var g *grid.Grid
	if rec, err := store.Latest(context.Background(), *fundID); err != nil {
		log.Error("failed to load snapshot", "error", err)
		os.Exit(1)
	} else if rec != nil {
		g = grid.FromSnapshot(rec.Grid)
		log.Info("restored grid snapshot", "snapshot", rec.ID, "taken_at", rec.TakenAt)
	} else {
		g = grid.New(nil)
	}
	ref := grid.NewRef(g)

	// Core engine wiring
	rg := guard.New(log)
	defer rg.Dispose()

	base := client.New(*backend)
	cells := client.NewCellClient(base)
	suggestions := suggest.NewStore(client.NewSuggestionClient(base), ref, rg, log)

	interpreter := &workflow.Interpreter{
		Gateway:     action.NewGateway(client.NewActionClient(base)),
		Ref:         ref,
		Guard:       rg,
		Persist:     cells,
		Suggestions: &storeRefresher{store: suggestions, fundID: *fundID},
		Documents:   client.NewDocumentClient(base),
		Notify:      &slogNotifier{log: log},
		Log:         log,
		FundID:      *fundID,
	}

	// HTTP surface
	handler := api.NewHandler(ref, rg, suggestions, interpreter, log)
	handler.Portfolio = client.NewPortfolioClient(base)
	handler.Persist = cells
	handler.Snapshots = store
	handler.Runs = store
	handler.Audit = store
	handler.FundID = *fundID

	scheduler := api.NewRefreshScheduler(suggestions, rg, *fundID, log)
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", "addr", server.Addr, "fund", *fundID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// Persist a final snapshot so the grid survives the restart.
	rec := grid.SnapshotRecord{
		ID:      uuid.NewString(),
		FundID:  *fundID,
		TakenAt: time.Now().UTC(),
		Reason:  "shutdown",
		Grid:    ref.Load().Snapshot(),
	}
	if err := store.Save(context.Background(), rec); err != nil {
		log.Error("final snapshot save failed", "error", err)
	}

	log.Info("server stopped")
}
