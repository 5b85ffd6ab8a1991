// Package dispatch drives the frame-by-frame decode loop: it turns a
// stream of decoded QR strings into a registry of per-file fountain
// decoders, routing each packet to the right one and tracking the
// fresh/metadata_known/data_flowing/done/poisoned state machine.
package dispatch

import (
	"errors"
	"sync"

	"github.com/qrfountain/qrf/internal/fountain"
)

// FileState is a file's position in the state machine (spec §4.8).
type FileState int

const (
	StateFresh FileState = iota
	StateMetadataKnown
	StateDataFlowing
	StateDone
	StatePoisoned
)

func (s FileState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateMetadataKnown:
		return "metadata_known"
	case StateDataFlowing:
		return "data_flowing"
	case StateDone:
		return "done"
	case StatePoisoned:
		return "poisoned"
	default:
		return "unknown"
	}
}

var (
	ErrEntryNotFound      = errors.New("dispatch: file entry not found")
	ErrEntryAlreadyExists = errors.New("dispatch: file entry already exists")
)

// Entry pairs a fountain decoder with its state-machine position.
type Entry struct {
	FileID string
	State  FileState
	Dec    *fountain.Decoder
}

// Registry holds one decoder entry per file_id seen so far. Safe for
// concurrent use; the dispatch loop itself is single-threaded per spec §5,
// but a host process may run several loops (one per input stream) sharing
// a result sink, so the registry guards its map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Get returns the entry for fileID, if any.
func (r *Registry) Get(fileID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[fileID]
	return e, ok
}

// Put inserts a new entry, failing if one already exists for this file_id.
func (r *Registry) Put(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.FileID]; exists {
		return ErrEntryAlreadyExists
	}
	r.entries[e.FileID] = e
	return nil
}

// Transition advances an entry's state. It never regresses: advancing
// to a state at or behind the current one is a silent no-op, matching
// the "transitions are monotone" invariant (spec §4.8).
func (r *Registry) Transition(fileID string, to FileState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[fileID]
	if !ok {
		return ErrEntryNotFound
	}
	if to > e.State {
		e.State = to
	}
	return nil
}

// All returns a snapshot slice of every registered entry, for
// end-of-stream reporting.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Count returns the number of registered files.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
