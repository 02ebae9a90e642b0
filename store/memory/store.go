// Package memory provides a fully in-memory workflow state store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/workflow"
)

// Ensure Store implements workflow.Store at compile time.
var _ workflow.Store = (*Store)(nil)

// Store holds full state snapshots in a map keyed by document ID. All
// reads and writes copy, so callers can never mutate stored snapshots.
type Store struct {
	mu     sync.RWMutex
	states map[string]*workflow.State
	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		states: make(map[string]*workflow.State),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping fails only after Close.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ledgerflow.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Held data is kept so late reads surface a
// clear error instead of a nil map panic.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SaveState stores a deep copy of the snapshot, replacing any prior
// snapshot for the document.
func (m *Store) SaveState(_ context.Context, s *workflow.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ledgerflow.ErrStoreClosed
	}
	m.states[s.DocumentID.String()] = s.Clone()
	return nil
}

// GetState returns a deep copy of the snapshot for the document.
func (m *Store) GetState(_ context.Context, docID id.DocumentID) (*workflow.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ledgerflow.ErrStoreClosed
	}
	s, ok := m.states[docID.String()]
	if !ok {
		return nil, ledgerflow.ErrWorkflowNotFound
	}
	return s.Clone(), nil
}

// ListStates returns matching snapshots, most recently updated first.
func (m *Store) ListStates(_ context.Context, opts workflow.ListOpts) ([]*workflow.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ledgerflow.ErrStoreClosed
	}

	var out []*workflow.State
	for _, s := range m.states {
		if opts.Match(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DeleteState removes the snapshot for the document, if any.
func (m *Store) DeleteState(_ context.Context, docID id.DocumentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ledgerflow.ErrStoreClosed
	}
	delete(m.states, docID.String())
	return nil
}
