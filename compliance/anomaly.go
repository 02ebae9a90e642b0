package compliance

import (
	"time"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
)

// AnomalyType classifies a compliance audit finding.
type AnomalyType string

const (
	AnomalyMissingContract    AnomalyType = "missing_contract"
	AnomalyContractNotFound   AnomalyType = "contract_not_found"
	AnomalyRetentionViolation AnomalyType = "retention_violation"
	AnomalyPriceMismatch      AnomalyType = "price_mismatch"
	AnomalyBillingCapExceeded AnomalyType = "billing_cap_exceeded"
	AnomalyScopeViolation     AnomalyType = "scope_violation"
)

// Anomaly is a detected deviation between a billed record and its governing
// agreement's terms. Anomalies are created once per violation per audit run
// and are immutable afterwards.
type Anomaly struct {
	ID          id.AnomalyID        `json:"id"`
	Type        AnomalyType         `json:"type"`
	Severity    ledgerflow.Severity `json:"severity"`
	Message     string              `json:"message"`
	AgreementID id.AgreementID      `json:"agreement_id"`
	Clause      string              `json:"clause,omitempty"`
	Expected    string              `json:"expected,omitempty"`
	Actual      string              `json:"actual,omitempty"`
	LineItemID  id.LineItemID       `json:"line_item_id,omitempty"`
	CostCode    string              `json:"cost_code,omitempty"`
	DetectedAt  time.Time           `json:"detected_at"`
}
