// Package vector holds the best-effort semantic document index. Workflows
// treat indexing as advisory: a failed index call is logged by the caller
// and never blocks completion.
package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/workflow"
)

// Entry is one indexed document.
type Entry struct {
	DocumentID id.DocumentID
	Text       string
	Meta       map[string]string
}

// Memory is an in-process index for tests and single-node deployments.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

var _ workflow.VectorIndex = (*Memory)(nil)

// NewMemory returns an empty in-process index.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

// Index implements workflow.VectorIndex. Re-indexing a document replaces
// its entry.
func (m *Memory) Index(ctx context.Context, docID id.DocumentID, text string, meta map[string]string) error {
	if docID.IsNil() {
		return fmt.Errorf("vector: document id is required")
	}
	if text == "" {
		return fmt.Errorf("vector: empty text for document %s", docID)
	}

	metaCopy := make(map[string]string, len(meta))
	for k, v := range meta {
		metaCopy[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[docID.String()] = Entry{DocumentID: docID, Text: text, Meta: metaCopy}
	return nil
}

// Get returns the indexed entry for a document, or
// ledgerflow.ErrRecordNotFound.
func (m *Memory) Get(docID id.DocumentID) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[docID.String()]
	if !ok {
		return Entry{}, ledgerflow.ErrRecordNotFound
	}
	return entry, nil
}

// Len returns the number of indexed documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Noop discards everything. Useful when embedding is disabled but a
// collaborator must still be wired.
type Noop struct{}

var _ workflow.VectorIndex = Noop{}

func (Noop) Index(context.Context, id.DocumentID, string, map[string]string) error { return nil }
