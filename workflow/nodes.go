package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
	"github.com/finshore/ledgerflow/risk"
)

// Node functions return only the fields they changed; the engine merges
// the update and appends any returned error to the error history before
// routing.

func (e *Engine) extractText(ctx context.Context, s *State) (Update, error) {
	text, err := e.extractor.ExtractText(ctx, s.Document)
	if err != nil {
		return Update{}, fmt.Errorf("extract %q: %w", s.DocumentName, err)
	}
	return Update{RawText: ptr(text)}, nil
}

func (e *Engine) structureRecord(ctx context.Context, s *State) (Update, error) {
	rec, err := e.structurer.Structure(ctx, s.RawText, s.Feedback)
	if err != nil {
		return Update{}, fmt.Errorf("structure %q: %w", s.DocumentName, err)
	}

	if rec.ID.IsNil() {
		rec.ID = id.NewRecordID()
	}
	rec.DocumentID = s.DocumentID
	if rec.Type == "" {
		rec.Type = s.DocumentType
	}
	if rec.ExtractedAt.IsZero() {
		rec.ExtractedAt = time.Now().UTC()
	}
	conf := record.Confidence(rec)
	rec.Confidence = conf

	return Update{Record: rec, Confidence: ptr(conf)}, nil
}

// validate scores risk over this attempt's findings only. The accumulated
// anomaly list keeps prior attempts for the reviewer, but a corrected
// record must not stay medium forever on the ghosts of attempt one.
func (e *Engine) validate(_ context.Context, s *State) (Update, error) {
	anomalies := e.validator.Validate(s.Record)

	sevs := make([]ledgerflow.Severity, 0, len(anomalies))
	for _, a := range anomalies {
		sevs = append(sevs, a.Severity)
	}
	level := e.scorer.Score(sevs)

	return Update{AppendStructural: anomalies, RiskLevel: ptr(level)}, nil
}

func (e *Engine) complianceAudit(ctx context.Context, s *State) (Update, error) {
	if !e.cfg.EnableComplianceAudit || e.auditor == nil {
		return Update{}, nil
	}

	anomalies, err := e.auditor.Audit(ctx, s.Record)
	if err != nil {
		return Update{}, fmt.Errorf("audit %q: %w", s.DocumentName, err)
	}

	sevs := make([]ledgerflow.Severity, 0, len(s.StructuralAnomalies)+len(anomalies))
	for _, a := range s.StructuralAnomalies {
		sevs = append(sevs, a.Severity)
	}
	for _, a := range anomalies {
		sevs = append(sevs, a.Severity)
	}
	level := e.scorer.Score(sevs)

	return Update{Compliance: &anomalies, RiskLevel: ptr(level)}, nil
}

// runCritic burns one retry and produces guidance for the next structuring
// attempt. Routing only enters this node while budget remains, so the
// incremented count never exceeds the budget.
func (e *Engine) runCritic(_ context.Context, s *State) (Update, error) {
	next, _ := e.critic.Permit(s.RetryCount)

	feedback := e.critic.Critique(s.StructuralAnomalies, s.Record)
	if feedback == "" {
		if last := lastError(s, NodeStructureRecord); last != "" {
			feedback = "The previous structuring attempt failed outright: " + last +
				"\nProduce a complete record from the text, paying attention to the document number, dates, contractor, totals, and line items."
		}
	}

	return Update{RetryCount: ptr(next), Feedback: ptr(feedback)}, nil
}

func (e *Engine) quarantine(_ context.Context, s *State) (Update, error) {
	reason := pauseReason(s, e.critic.Exhausted(s.RetryCount))

	return Update{
		Status:      ptr(StatusQuarantined),
		Paused:      ptr(true),
		PauseReason: ptr(reason),
	}, nil
}

func (e *Engine) insertGraph(ctx context.Context, s *State) (Update, error) {
	if e.graph == nil {
		return Update{}, fmt.Errorf("insert %q: %w", s.DocumentName, ledgerflow.ErrNoStore)
	}

	recID, err := e.graph.UpsertRecord(ctx, s.Record)
	if err != nil {
		return Update{}, fmt.Errorf("insert %q: %w", s.DocumentName, err)
	}

	return Update{GraphWritten: ptr(true), GraphRecordID: ptr(recID)}, nil
}

func (e *Engine) embed(ctx context.Context, s *State) (Update, error) {
	if !e.cfg.EnableVectorEmbedding || e.vector == nil {
		return Update{}, nil
	}

	meta := map[string]string{
		"number":     s.Record.Number,
		"contractor": s.Record.ContractorID,
		"type":       string(s.Record.Type),
		"risk_level": s.RiskLevel.String(),
	}
	if err := e.vector.Index(ctx, s.DocumentID, s.RawText, meta); err != nil {
		return Update{}, fmt.Errorf("embed %q: %w", s.DocumentName, err)
	}
	return Update{}, nil
}

func (e *Engine) finalize(_ context.Context, s *State) (Update, error) {
	elapsed := time.Since(s.StartedAt)
	return Update{
		Status:  ptr(StatusCompleted),
		Paused:  ptr(false),
		Elapsed: ptr(elapsed),
		Report:  buildReport(s, StatusCompleted, elapsed),
	}, nil
}

func (e *Engine) errorHandler(_ context.Context, s *State) (Update, error) {
	elapsed := time.Since(s.StartedAt)
	return Update{
		Status:  ptr(StatusFailed),
		Paused:  ptr(false),
		Elapsed: ptr(elapsed),
		Report:  buildReport(s, StatusFailed, elapsed),
	}, nil
}

// pauseReason distinguishes the two paths into quarantine so a reviewer
// sees why the document stopped without re-deriving it.
func pauseReason(s *State, exhausted bool) string {
	total := len(s.StructuralAnomalies) + len(s.ComplianceAnomalies)

	if s.Record == nil || !s.Record.Identified() {
		return fmt.Sprintf("structuring produced no usable record after %d retries", s.RetryCount)
	}
	if s.RiskLevel == risk.LevelMedium && exhausted {
		return fmt.Sprintf("risk level medium with retry budget exhausted (%d anomalies)", total)
	}
	return fmt.Sprintf("risk level %s requires human review (%d anomalies)", s.RiskLevel, total)
}

func buildReport(s *State, status Status, elapsed time.Duration) *Report {
	return &Report{
		DocumentID:      s.DocumentID,
		Status:          status,
		RiskLevel:       s.RiskLevel,
		StructuralCount: len(s.StructuralAnomalies),
		ComplianceCount: len(s.ComplianceAnomalies),
		RetryCount:      s.RetryCount,
		GraphWritten:    s.GraphWritten,
		Elapsed:         elapsed,
		GeneratedAt:     time.Now().UTC(),
	}
}

func lastError(s *State, node Node) string {
	for i := len(s.ErrorHistory) - 1; i >= 0; i-- {
		if s.ErrorHistory[i].Node == node {
			return s.ErrorHistory[i].Error
		}
	}
	return ""
}
