// Package session implements the per-peer session table: a single map
// from peer key to a supervised child and its output pump, with the
// replace-on-preemption contract.
package session

import (
	"sync"

	"github.com/samber/lo"

	"github.com/go-psyncd/psyncd/internal/pump"
	"github.com/go-psyncd/psyncd/internal/supervisor"
)

// Entry is a live session: one child process and its pump task.
type Entry struct {
	Child *supervisor.Child
	Pump  *pump.Task
}

// Table is the process-wide peer -> Entry map. A purely cooperative
// scheduler could skip locking entirely, but Go's goroutines are
// preemptible, so Table guards its map with a mutex instead.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[string]*Entry)}
}

// Get returns the live entry for peer, if any.
func (t *Table) Get(peer string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[peer]
	return e, ok
}

// Put inserts or overwrites the entry for peer. The caller is responsible
// for killing any prior child and cancelling its pump before calling Put —
// Table itself stays a dumb map.
func (t *Table) Put(peer string, e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[peer] = e
}

// Remove deletes the entry for peer, if any. Idempotent.
func (t *Table) Remove(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, peer)
}

// Peers returns the set of peers with a live entry, used during shutdown to
// enumerate every session that still needs tearing down.
func (t *Table) Peers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.Keys(t.entries)
}
