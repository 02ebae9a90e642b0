// Package compliance audits structured records against the terms of their
// governing agreement. The auditor is deterministic: given the same record
// and terms it always produces the same anomalies.
package compliance

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/finshore/ledgerflow/id"
)

// Terms is a read-only projection of an agreement used for comparison.
// It is derived fresh per audit run and never persisted by this package.
type Terms struct {
	// AgreementID identifies the governing agreement.
	AgreementID id.AgreementID

	// RetentionRate is the fraction of each billed total withheld as
	// retention, in [0, 1].
	RetentionRate decimal.Decimal

	// UnitPriceSchedule maps cost codes to the maximum scheduled unit
	// price. Codes absent from the schedule are not price-checked.
	UnitPriceSchedule map[string]decimal.Decimal

	// BillingCap is the cumulative billing limit across all records
	// against the agreement. Nil means no cap is defined.
	BillingCap *decimal.Decimal

	// ApprovedCostCodes lists the cost codes within the agreement's
	// scope. Empty means scope is not checked.
	ApprovedCostCodes []string
}

// InScope reports whether a cost code is in the approved list.
func (t *Terms) InScope(code string) bool {
	for _, c := range t.ApprovedCostCodes {
		if c == code {
			return true
		}
	}
	return false
}

// AgreementStore provides agreement lookups for the auditor. Implementations
// live in graph (memory) and graph/neo4j.
type AgreementStore interface {
	// Agreement returns the terms for the given agreement, or
	// ledgerflow.ErrAgreementNotFound if the agreement does not exist.
	Agreement(ctx context.Context, agreementID id.AgreementID) (*Terms, error)

	// BilledTotal returns the sum of all previously recorded amounts
	// billed against the agreement.
	BilledTotal(ctx context.Context, agreementID id.AgreementID) (decimal.Decimal, error)
}
