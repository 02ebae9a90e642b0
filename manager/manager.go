// Package manager is the public façade over the pipeline: submitting
// documents, resuming quarantined workflows with reviewer feedback, and
// read-only status queries. It owns no pipeline logic; it prepares state
// and delegates to the engine.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
	"github.com/finshore/ledgerflow/risk"
	"github.com/finshore/ledgerflow/workflow"
)

// Manager drives document workflows end to end.
type Manager struct {
	engine *workflow.Engine
	store  workflow.Store
	logger *slog.Logger

	// batchLimit caps concurrent submissions in SubmitBatch. Zero means
	// unbounded.
	batchLimit int
}

// Option configures a Manager.
type Option func(*Manager)

// WithBatchLimit caps how many documents SubmitBatch processes at once.
func WithBatchLimit(n int) Option {
	return func(m *Manager) { m.batchLimit = n }
}

// New creates a Manager on top of an engine and its state store.
func New(engine *workflow.Engine, store workflow.Store, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if engine == nil {
		return nil, fmt.Errorf("manager: nil engine")
	}
	if store == nil {
		return nil, ledgerflow.ErrNoStore
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{engine: engine, store: store, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Submit runs a document through the pipeline synchronously and returns
// the final state snapshot: completed, failed, or quarantined.
func (m *Manager) Submit(ctx context.Context, doc workflow.Document) (*workflow.State, error) {
	docID := id.NewDocumentID()
	s := workflow.NewState(docID, doc)

	m.logger.Info("document submitted",
		slog.String("document_id", docID.String()),
		slog.String("name", doc.Name),
	)

	// Persist before running so the workflow is findable even if the
	// process dies inside the first node.
	if err := m.store.SaveState(ctx, s); err != nil {
		return nil, fmt.Errorf("manager: save initial state %s: %w", docID, err)
	}

	if err := m.engine.Run(ctx, s); err != nil {
		return nil, fmt.Errorf("manager: run %s: %w", docID, err)
	}
	return s, nil
}

// SubmitBatch submits documents concurrently as independent workflows.
// The returned slice is index-aligned with docs; entries whose submission
// errored are nil. The first error encountered is returned after all
// submissions finish.
func (m *Manager) SubmitBatch(ctx context.Context, docs []workflow.Document) ([]*workflow.State, error) {
	states := make([]*workflow.State, len(docs))

	var g errgroup.Group
	if m.batchLimit > 0 {
		g.SetLimit(m.batchLimit)
	}

	for i, doc := range docs {
		g.Go(func() error {
			s, err := m.Submit(ctx, doc)
			if err != nil {
				return err
			}
			states[i] = s
			return nil
		})
	}

	err := g.Wait()
	return states, err
}

// Resume applies reviewer feedback to a quarantined workflow and drives
// it to completion. Approval forces risk to low and clears all anomalies;
// corrections amend the candidate record, drop the now-stale findings,
// and reset the retry budget so the amended record is re-validated fresh.
// Feedback that neither approves nor corrects is rejected: re-entering the
// pipeline with the record unchanged could only re-quarantine.
func (m *Manager) Resume(ctx context.Context, docID id.DocumentID, fb workflow.HumanFeedback) (*workflow.State, error) {
	s, err := m.store.GetState(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("manager: resume %s: %w", docID, err)
	}
	if s.Status != workflow.StatusQuarantined {
		return nil, fmt.Errorf("manager: resume %s with status %q: %w", docID, s.Status, ledgerflow.ErrNotQuarantined)
	}

	if !fb.Approved && fb.Corrections == nil {
		return nil, fmt.Errorf("manager: resume %s: feedback must approve or correct: %w", docID, ledgerflow.ErrInvalidState)
	}

	if fb.ReviewedAt.IsZero() {
		fb.ReviewedAt = time.Now().UTC()
	}

	switch {
	case fb.Approved:
		s.RiskLevel = risk.LevelLow
		s.StructuralAnomalies = nil
		s.ComplianceAnomalies = nil
		m.logger.Info("workflow approved by reviewer",
			slog.String("document_id", docID.String()),
		)
	case fb.Corrections != nil:
		applyCorrections(s, fb.Corrections)
		s.StructuralAnomalies = nil
		s.ComplianceAnomalies = nil
		s.RetryCount = 0
		m.logger.Info("reviewer corrections applied",
			slog.String("document_id", docID.String()),
		)
	}

	s.HumanFeedback = &fb

	if err := m.engine.Resume(ctx, s); err != nil {
		return nil, fmt.Errorf("manager: resume %s: %w", docID, err)
	}
	return s, nil
}

// Status returns the current state snapshot for a document.
func (m *Manager) Status(ctx context.Context, docID id.DocumentID) (*workflow.State, error) {
	s, err := m.store.GetState(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("manager: status %s: %w", docID, err)
	}
	return s, nil
}

// ListQuarantined returns all workflows awaiting human review.
func (m *Manager) ListQuarantined(ctx context.Context) ([]*workflow.State, error) {
	return m.store.ListStates(ctx, workflow.ListOpts{Status: workflow.StatusQuarantined})
}

// ListByStatus returns all workflows in the given status.
func (m *Manager) ListByStatus(ctx context.Context, status workflow.Status) ([]*workflow.State, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ledgerflow.ErrInvalidState, status)
	}
	return m.store.ListStates(ctx, workflow.ListOpts{Status: status})
}

// applyCorrections merges a reviewer's partial record into the candidate.
// A missing candidate is created rather than rejected: reviewers fix
// records the structurer never managed to produce.
func applyCorrections(s *workflow.State, c *workflow.Corrections) {
	if s.Record == nil {
		s.Record = &record.Record{
			ID:         id.NewRecordID(),
			DocumentID: s.DocumentID,
			Type:       s.DocumentType,
		}
	}
	r := s.Record

	if c.Number != nil {
		r.Number = *c.Number
	}
	if c.Date != nil {
		r.Date = *c.Date
	}
	if c.DueDate != nil {
		r.DueDate = c.DueDate
	}
	if c.ContractorID != nil {
		r.ContractorID = *c.ContractorID
	}
	if c.AgreementID != nil {
		r.AgreementID = *c.AgreementID
	}
	if c.Amount != nil {
		r.Amount = *c.Amount
	}
	if c.LineItems != nil {
		r.LineItems = c.LineItems
	}
}
