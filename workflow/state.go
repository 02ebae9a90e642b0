package workflow

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/compliance"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
	"github.com/finshore/ledgerflow/risk"
)

// Status is the lifecycle state of a document workflow.
type Status string

const (
	// StatusProcessing means the pipeline is actively running the document.
	StatusProcessing Status = "processing"

	// StatusQuarantined means the workflow is paused awaiting human review.
	// Quarantined workflows can be resumed; they are not terminal.
	StatusQuarantined Status = "quarantined"

	// StatusCompleted means the document finished the pipeline successfully.
	StatusCompleted Status = "completed"

	// StatusFailed means the pipeline aborted on a fatal error.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusQuarantined, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status ends the workflow's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is the input handed to a workflow: a reference to the raw
// source plus what the submitter already knows about it.
type Document struct {
	// Name is a human-readable label, usually the original filename.
	Name string `json:"name"`

	// Path locates the document for the extractor. Ignored when Content
	// is set.
	Path string `json:"path,omitempty"`

	// Content is the raw document body, for callers that already hold
	// the bytes.
	Content []byte `json:"content,omitempty"`

	// Type classifies the document when known. The structurer may refine
	// it.
	Type record.DocumentType `json:"type,omitempty"`
}

// ErrorRecord is one entry in a workflow's error history.
type ErrorRecord struct {
	Node  Node      `json:"node"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// Corrections is a partial record supplied by a reviewer. Nil fields are
// left untouched; a non-nil LineItems slice replaces the extracted items
// wholesale.
type Corrections struct {
	Number       *string           `json:"number,omitempty"`
	Date         *time.Time        `json:"date,omitempty"`
	DueDate      *time.Time        `json:"due_date,omitempty"`
	ContractorID *string           `json:"contractor_id,omitempty"`
	AgreementID  *id.AgreementID   `json:"agreement_id,omitempty"`
	Amount       *decimal.Decimal  `json:"amount,omitempty"`
	LineItems    []record.LineItem `json:"line_items,omitempty"`
}

// HumanFeedback is a reviewer's decision on a quarantined workflow.
type HumanFeedback struct {
	// Approved accepts the record as-is: risk is forced to low and all
	// anomalies are cleared.
	Approved bool `json:"approved"`

	// Corrections amends the candidate record before re-validation.
	Corrections *Corrections `json:"corrections,omitempty"`

	// Notes is free-form reviewer commentary, kept for the audit trail.
	Notes string `json:"notes,omitempty"`

	// ReviewedAt is when the feedback was applied.
	ReviewedAt time.Time `json:"reviewed_at"`
}

// Report summarizes a finished (or failed) workflow run.
type Report struct {
	DocumentID      id.DocumentID `json:"document_id"`
	Status          Status        `json:"status"`
	RiskLevel       risk.Level    `json:"risk_level"`
	StructuralCount int           `json:"structural_anomalies"`
	ComplianceCount int           `json:"compliance_anomalies"`
	RetryCount      int           `json:"retry_count"`
	GraphWritten    bool          `json:"graph_written"`
	Elapsed         time.Duration `json:"elapsed"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// State is the full mutable record threaded through the pipeline. It is
// created once per submitted document, mutated only by node functions via
// Apply, and persisted as a complete snapshot after every node.
type State struct {
	ledgerflow.Entity

	DocumentID   id.DocumentID       `json:"document_id"`
	DocumentName string              `json:"document_name"`
	DocumentType record.DocumentType `json:"document_type,omitempty"`
	Document     Document            `json:"document"`

	// RawText is the extractor's output. Empty until extraction runs.
	RawText string `json:"raw_text,omitempty"`

	// Record is the current structured candidate. Nil until structuring
	// produces one.
	Record *record.Record `json:"record,omitempty"`

	// StructuralAnomalies accumulates validation findings across all
	// structuring attempts. Append-only.
	StructuralAnomalies []record.Anomaly `json:"structural_anomalies,omitempty"`

	// ComplianceAnomalies holds the latest audit's findings. Replaced
	// wholesale each audit run.
	ComplianceAnomalies []compliance.Anomaly `json:"compliance_anomalies,omitempty"`

	// Feedback is the critic's guidance for the next structuring attempt.
	Feedback string `json:"feedback,omitempty"`

	RetryCount int        `json:"retry_count"`
	RiskLevel  risk.Level `json:"risk_level"`
	Status     Status     `json:"status"`

	Paused      bool   `json:"paused"`
	PauseReason string `json:"pause_reason,omitempty"`

	HumanFeedback *HumanFeedback `json:"human_feedback,omitempty"`

	// ErrorHistory accumulates every node failure. Append-only.
	ErrorHistory []ErrorRecord `json:"error_history,omitempty"`

	// GraphWritten and GraphRecordID track the knowledge-store upsert.
	GraphWritten  bool   `json:"graph_written"`
	GraphRecordID string `json:"graph_record_id,omitempty"`

	// Confidence is the extraction completeness score in [0, 1].
	Confidence float64 `json:"confidence"`

	// CurrentNode is the node the engine will execute next, or the node
	// the workflow stopped on.
	CurrentNode Node `json:"current_node"`

	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`

	Report *Report `json:"report,omitempty"`
}

// NewState builds the initial state for a submitted document.
func NewState(docID id.DocumentID, doc Document) *State {
	return &State{
		Entity:       ledgerflow.NewEntity(),
		DocumentID:   docID,
		DocumentName: doc.Name,
		DocumentType: doc.Type,
		Document:     doc,
		Status:       StatusProcessing,
		RiskLevel:    risk.LevelLow,
		CurrentNode:  NodeExtractText,
		StartedAt:    time.Now().UTC(),
	}
}

// CheckInvariants verifies the structural invariants that must hold at
// every checkpoint.
func (s *State) CheckInvariants(maxRetries int) error {
	if s.Paused && s.Status != StatusQuarantined {
		return fmt.Errorf("%w: paused workflow has status %q", ledgerflow.ErrInvalidState, s.Status)
	}
	if s.RetryCount > maxRetries {
		return fmt.Errorf("%w: retry count %d exceeds budget %d", ledgerflow.ErrInvalidState, s.RetryCount, maxRetries)
	}
	return nil
}

// Clone returns a deep copy of the state. Stores use it so callers can
// never mutate persisted snapshots in place.
func (s *State) Clone() *State {
	cp := *s

	if s.Record != nil {
		rec := *s.Record
		rec.LineItems = append([]record.LineItem(nil), s.Record.LineItems...)
		cp.Record = &rec
	}
	cp.StructuralAnomalies = append([]record.Anomaly(nil), s.StructuralAnomalies...)
	cp.ComplianceAnomalies = append([]compliance.Anomaly(nil), s.ComplianceAnomalies...)
	cp.ErrorHistory = append([]ErrorRecord(nil), s.ErrorHistory...)
	if s.HumanFeedback != nil {
		fb := *s.HumanFeedback
		cp.HumanFeedback = &fb
	}
	if s.Report != nil {
		rep := *s.Report
		cp.Report = &rep
	}
	cp.Document.Content = append([]byte(nil), s.Document.Content...)

	return &cp
}

// AnomalySeverities collects the severities of all structural and
// compliance anomalies for risk scoring.
func (s *State) AnomalySeverities() []ledgerflow.Severity {
	sevs := make([]ledgerflow.Severity, 0, len(s.StructuralAnomalies)+len(s.ComplianceAnomalies))
	for _, a := range s.StructuralAnomalies {
		sevs = append(sevs, a.Severity)
	}
	for _, a := range s.ComplianceAnomalies {
		sevs = append(sevs, a.Severity)
	}
	return sevs
}
