package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
)

// retentionMarker is matched case-insensitively against line item
// descriptions to find retention lines.
const retentionMarker = "retention"

// Auditor validates records against their governing agreement's terms,
// checking retention, unit prices, cumulative billing, and scope.
type Auditor struct {
	agreements AgreementStore
	cfg        ledgerflow.Config
	logger     *slog.Logger
}

// NewAuditor creates an Auditor reading agreement terms from the given
// store.
func NewAuditor(agreements AgreementStore, cfg ledgerflow.Config, logger *slog.Logger) *Auditor {
	return &Auditor{
		agreements: agreements,
		cfg:        cfg,
		logger:     logger,
	}
}

// Audit runs the full compliance audit on a record.
//
// A record with no agreement reference yields exactly one missing_contract
// anomaly; an unknown agreement yields exactly one contract_not_found
// anomaly. Otherwise the retention, unit price, billing cap, and scope
// rules run independently and their findings accumulate.
//
// The returned error reflects store failures only; rule violations are
// reported as anomalies, never as errors.
func (a *Auditor) Audit(ctx context.Context, r *record.Record) ([]Anomaly, error) {
	a.logger.Info("compliance audit started",
		slog.String("record_id", r.ID.String()),
		slog.String("agreement_id", r.AgreementID.String()),
	)

	if r.AgreementID.IsNil() {
		return []Anomaly{a.newAnomaly(AnomalyMissingContract, ledgerflow.SeverityHigh, id.Nil,
			"record has no associated agreement for compliance validation")}, nil
	}

	terms, err := a.agreements.Agreement(ctx, r.AgreementID)
	if err != nil {
		if errors.Is(err, ledgerflow.ErrAgreementNotFound) {
			return []Anomaly{a.newAnomaly(AnomalyContractNotFound, ledgerflow.SeverityCritical, r.AgreementID,
				fmt.Sprintf("agreement %s not found in knowledge store", r.AgreementID))}, nil
		}
		return nil, fmt.Errorf("compliance: look up agreement %s: %w", r.AgreementID, err)
	}

	var anomalies []Anomaly
	anomalies = append(anomalies, a.checkRetention(r, terms)...)
	anomalies = append(anomalies, a.checkUnitPrices(r, terms)...)

	capAnomalies, err := a.checkBillingCap(ctx, r, terms)
	if err != nil {
		return nil, err
	}
	anomalies = append(anomalies, capAnomalies...)
	anomalies = append(anomalies, a.checkScope(r, terms)...)

	a.logger.Info("compliance audit completed",
		slog.String("record_id", r.ID.String()),
		slog.Int("anomalies", len(anomalies)),
	)

	return anomalies, nil
}

// checkRetention verifies that the record withholds the agreement's
// retention rate. The actual retention is the sum of line items whose
// description contains the retention marker; it may legitimately be zero.
func (a *Auditor) checkRetention(r *record.Record, terms *Terms) []Anomaly {
	expected := r.Amount.Mul(terms.RetentionRate)

	actual := decimal.Zero
	for _, li := range r.LineItems {
		if strings.Contains(strings.ToLower(li.Description), retentionMarker) {
			actual = actual.Add(li.Total)
		}
	}

	gap := expected.Sub(actual).Abs()
	tolerance := r.Amount.Mul(decimal.NewFromFloat(a.cfg.RetentionTolerance))
	if gap.LessThanOrEqual(tolerance) {
		return nil
	}

	severity := ledgerflow.SeverityMedium
	if gap.GreaterThan(expected.Mul(decimal.NewFromFloat(0.1))) {
		severity = ledgerflow.SeverityHigh
	}

	an := a.newAnomaly(AnomalyRetentionViolation, severity, terms.AgreementID,
		fmt.Sprintf("retention amount mismatch: expected %s (%s%% of %s), found %s",
			expected.StringFixed(2),
			terms.RetentionRate.Mul(decimal.NewFromInt(100)),
			r.Amount.StringFixed(2),
			actual.StringFixed(2)))
	an.Clause = "Retention Rate"
	an.Expected = expected.StringFixed(2)
	an.Actual = actual.StringFixed(2)

	return []Anomaly{an}
}

// checkUnitPrices compares each line item's unit price against the
// agreement's schedule, within the configured tolerance. Codes absent from
// the schedule are left to the scope rule.
func (a *Auditor) checkUnitPrices(r *record.Record, terms *Terms) []Anomaly {
	if len(terms.UnitPriceSchedule) == 0 {
		return nil
	}

	var anomalies []Anomaly
	tolerance := decimal.NewFromFloat(a.cfg.PriceTolerance)
	hundred := decimal.NewFromInt(100)

	for _, li := range r.LineItems {
		maxPrice, ok := terms.UnitPriceSchedule[li.CostCode]
		if !ok {
			continue
		}

		allowed := maxPrice.Mul(decimal.NewFromInt(1).Add(tolerance))
		if li.UnitPrice.LessThanOrEqual(allowed) {
			continue
		}

		overagePct := li.UnitPrice.Sub(maxPrice).Div(maxPrice).Mul(hundred)

		severity := ledgerflow.SeverityMedium
		switch {
		case overagePct.GreaterThan(decimal.NewFromInt(20)):
			severity = ledgerflow.SeverityCritical
		case overagePct.GreaterThan(decimal.NewFromInt(10)):
			severity = ledgerflow.SeverityHigh
		}

		an := a.newAnomaly(AnomalyPriceMismatch, severity, terms.AgreementID,
			fmt.Sprintf("unit price for %s exceeds agreement schedule: %s > %s (%s%% over limit)",
				li.CostCode,
				li.UnitPrice.StringFixed(2),
				maxPrice.StringFixed(2),
				overagePct.StringFixed(1)))
		an.Clause = "Unit Price Schedule"
		an.Expected = maxPrice.StringFixed(2)
		an.Actual = li.UnitPrice.StringFixed(2)
		an.LineItemID = li.ID
		an.CostCode = li.CostCode

		anomalies = append(anomalies, an)
	}

	return anomalies
}

// checkBillingCap verifies that the cumulative billed total including the
// current record stays under the agreement's cap. The prior total is
// re-aggregated on every audit; two concurrent submissions against the same
// agreement can both pass before either commits. That race is accepted:
// the cap is a detective control, not a hard financial one.
func (a *Auditor) checkBillingCap(ctx context.Context, r *record.Record, terms *Terms) ([]Anomaly, error) {
	if terms.BillingCap == nil {
		return nil, nil
	}

	billed, err := a.agreements.BilledTotal(ctx, terms.AgreementID)
	if err != nil {
		return nil, fmt.Errorf("compliance: aggregate billed total for %s: %w", terms.AgreementID, err)
	}

	total := billed.Add(r.Amount)
	if total.LessThanOrEqual(*terms.BillingCap) {
		return nil, nil
	}

	overage := total.Sub(*terms.BillingCap)
	overagePct := overage.Div(*terms.BillingCap).Mul(decimal.NewFromInt(100))

	severity := ledgerflow.SeverityHigh
	if overagePct.GreaterThan(decimal.NewFromInt(10)) {
		severity = ledgerflow.SeverityCritical
	}

	an := a.newAnomaly(AnomalyBillingCapExceeded, severity, terms.AgreementID,
		fmt.Sprintf("billing cap exceeded: total %s exceeds cap %s (overage %s, %s%%)",
			total.StringFixed(2),
			terms.BillingCap.StringFixed(2),
			overage.StringFixed(2),
			overagePct.StringFixed(1)))
	an.Clause = "Billing Cap"
	an.Expected = terms.BillingCap.StringFixed(2)
	an.Actual = total.StringFixed(2)

	return []Anomaly{an}, nil
}

// checkScope flags each line item whose cost code falls outside the
// agreement's approved list, one anomaly per offending item.
func (a *Auditor) checkScope(r *record.Record, terms *Terms) []Anomaly {
	if len(terms.ApprovedCostCodes) == 0 {
		return nil
	}

	var anomalies []Anomaly
	for _, li := range r.LineItems {
		if terms.InScope(li.CostCode) {
			continue
		}

		an := a.newAnomaly(AnomalyScopeViolation, ledgerflow.SeverityHigh, terms.AgreementID,
			fmt.Sprintf("cost code %q is not in the approved scope for this agreement: %s",
				li.CostCode, li.Description))
		an.Clause = "Approved Cost Codes"
		an.Expected = strings.Join(terms.ApprovedCostCodes, ", ")
		an.Actual = li.CostCode
		an.LineItemID = li.ID
		an.CostCode = li.CostCode

		anomalies = append(anomalies, an)
	}

	return anomalies
}

func (a *Auditor) newAnomaly(at AnomalyType, sev ledgerflow.Severity, agreementID id.AgreementID, msg string) Anomaly {
	return Anomaly{
		ID:          id.NewAnomalyID(),
		Type:        at,
		Severity:    sev,
		Message:     msg,
		AgreementID: agreementID,
		DetectedAt:  time.Now().UTC(),
	}
}
