/*
Package notify is the capability interface for user-facing notifications.

PURPOSE:
  The core never talks to a UI directly. Anything a user should see — the
  aggregate workflow summary, a surfaced rollback error — goes through this
  port. Production wires a toast/event-bus adapter; tests substitute the
  Recorder and assert on what was sent.

SEE ALSO:
  - workflow/run.go: Emits one aggregate summary per batch, never one
    notification per command
*/
package notify

import "sync"

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Port receives user-facing notifications.
type Port interface {
	Notify(level Level, message string)
}

// =============================================================================
// NULL PORT - Default when no UI is attached
// =============================================================================

type Null struct{}

func (Null) Notify(Level, string) {}

// =============================================================================
// RECORDER - Test double
// =============================================================================

// Recorder captures notifications for assertions.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

type Entry struct {
	Level   Level
	Message string
}

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: message})
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}
