package workflow

import (
	"time"

	"github.com/finshore/ledgerflow/compliance"
	"github.com/finshore/ledgerflow/record"
	"github.com/finshore/ledgerflow/risk"
)

// Update is the partial state change returned by a node function. Pointer
// fields replace the corresponding state field when non-nil; the Append*
// slices are merged append-only and can never remove or rewrite history.
// Compliance anomalies are the one list replaced wholesale, matching the
// audit's replace-per-run semantics.
type Update struct {
	RawText       *string
	Record        *record.Record
	Feedback      *string
	RetryCount    *int
	RiskLevel     *risk.Level
	Status        *Status
	Paused        *bool
	PauseReason   *string
	HumanFeedback *HumanFeedback
	GraphWritten  *bool
	GraphRecordID *string
	Confidence    *float64
	Elapsed       *time.Duration
	Report        *Report

	// Compliance replaces the compliance anomaly list when non-nil. An
	// empty non-nil slice clears it.
	Compliance *[]compliance.Anomaly

	AppendStructural []record.Anomaly
	AppendErrors     []ErrorRecord
}

// IsZero reports whether the update changes nothing.
func (u Update) IsZero() bool {
	return u.RawText == nil && u.Record == nil && u.Feedback == nil &&
		u.RetryCount == nil && u.RiskLevel == nil && u.Status == nil &&
		u.Paused == nil && u.PauseReason == nil && u.HumanFeedback == nil &&
		u.GraphWritten == nil && u.GraphRecordID == nil && u.Confidence == nil &&
		u.Report == nil && u.Compliance == nil && u.Elapsed == nil &&
		len(u.AppendStructural) == 0 && len(u.AppendErrors) == 0
}

// Apply merges the update into the state and bumps UpdatedAt.
func (s *State) Apply(u Update) {
	if u.RawText != nil {
		s.RawText = *u.RawText
	}
	if u.Record != nil {
		s.Record = u.Record
	}
	if u.Feedback != nil {
		s.Feedback = *u.Feedback
	}
	if u.RetryCount != nil {
		s.RetryCount = *u.RetryCount
	}
	if u.RiskLevel != nil {
		s.RiskLevel = *u.RiskLevel
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Paused != nil {
		s.Paused = *u.Paused
	}
	if u.PauseReason != nil {
		s.PauseReason = *u.PauseReason
	}
	if u.HumanFeedback != nil {
		s.HumanFeedback = u.HumanFeedback
	}
	if u.GraphWritten != nil {
		s.GraphWritten = *u.GraphWritten
	}
	if u.GraphRecordID != nil {
		s.GraphRecordID = *u.GraphRecordID
	}
	if u.Confidence != nil {
		s.Confidence = *u.Confidence
	}
	if u.Elapsed != nil {
		s.Elapsed = *u.Elapsed
	}
	if u.Report != nil {
		s.Report = u.Report
	}
	if u.Compliance != nil {
		s.ComplianceAnomalies = *u.Compliance
	}
	s.StructuralAnomalies = append(s.StructuralAnomalies, u.AppendStructural...)
	s.ErrorHistory = append(s.ErrorHistory, u.AppendErrors...)

	s.Touch()
}

// Small helpers so node functions read cleanly.

func ptr[T any](v T) *T { return &v }
