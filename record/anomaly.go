package record

import (
	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
)

// AnomalyType classifies a structural validation finding.
type AnomalyType string

const (
	AnomalyMissingField     AnomalyType = "missing_field"
	AnomalyMissingLineItems AnomalyType = "missing_line_items"
	AnomalyFutureDate       AnomalyType = "future_date"
	AnomalyInvalidDueDate   AnomalyType = "invalid_due_date"
	AnomalyInvalidNumber    AnomalyType = "invalid_number"
	AnomalyMathError        AnomalyType = "math_error"
	AnomalyTotalMismatch    AnomalyType = "total_mismatch"
)

// Anomaly is a structural validation finding on a candidate record.
// Anomalies are immutable once produced; the workflow accumulates them
// append-only across validation runs.
type Anomaly struct {
	Type       AnomalyType         `json:"type"`
	Severity   ledgerflow.Severity `json:"severity"`
	Message    string              `json:"message"`
	Field      string              `json:"field,omitempty"`
	LineItemID id.LineItemID       `json:"line_item_id,omitempty"`
	Expected   string              `json:"expected,omitempty"`
	Actual     string              `json:"actual,omitempty"`
}
