package record

import (
	"fmt"
	"regexp"
	"time"

	"github.com/finshore/ledgerflow"
)

// numberPattern is the accepted record number charset: uppercase
// alphanumeric plus hyphens.
var numberPattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

// Validator runs structural checks on a candidate record and reports
// anomalies. It is stateless and safe for concurrent use.
type Validator struct {
	// Now returns the current time; overridable for tests.
	Now func() time.Time
}

// NewValidator creates a Validator using the real clock.
func NewValidator() *Validator {
	return &Validator{Now: time.Now}
}

// Validate runs all structural checks and returns the anomalies found.
// A clean record yields an empty slice. A nil record is a single
// missing-record anomaly, not a panic.
func (v *Validator) Validate(r *Record) []Anomaly {
	if r == nil {
		return []Anomaly{{
			Type:     AnomalyMissingField,
			Severity: ledgerflow.SeverityCritical,
			Message:  "no structured record was produced",
		}}
	}

	var anomalies []Anomaly

	anomalies = append(anomalies, v.checkRequiredFields(r)...)
	anomalies = append(anomalies, v.checkDates(r)...)
	anomalies = append(anomalies, v.checkNumber(r)...)
	anomalies = append(anomalies, v.checkLineItemMath(r)...)
	anomalies = append(anomalies, v.checkTotal(r)...)

	return anomalies
}

func (v *Validator) checkRequiredFields(r *Record) []Anomaly {
	var anomalies []Anomaly

	missing := func(field string) Anomaly {
		return Anomaly{
			Type:     AnomalyMissingField,
			Severity: ledgerflow.SeverityHigh,
			Message:  fmt.Sprintf("required field %q is missing or empty", field),
			Field:    field,
		}
	}

	if r.Number == "" {
		anomalies = append(anomalies, missing("number"))
	}
	if r.Date.IsZero() {
		anomalies = append(anomalies, missing("date"))
	}
	if r.ContractorID == "" {
		anomalies = append(anomalies, missing("contractor_id"))
	}
	if r.Amount.IsZero() {
		anomalies = append(anomalies, missing("amount"))
	}

	if len(r.LineItems) == 0 {
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyMissingLineItems,
			Severity: ledgerflow.SeverityHigh,
			Message:  "record has no line items",
		})
	}

	return anomalies
}

func (v *Validator) checkDates(r *Record) []Anomaly {
	var anomalies []Anomaly

	if r.Date.IsZero() {
		return nil
	}

	now := v.Now()
	if r.Date.After(now) {
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyFutureDate,
			Severity: ledgerflow.SeverityMedium,
			Message:  "record date is in the future",
			Field:    "date",
			Expected: "<= today",
			Actual:   r.Date.Format(time.DateOnly),
		})
	}

	if r.DueDate != nil && r.DueDate.Before(r.Date) {
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyInvalidDueDate,
			Severity: ledgerflow.SeverityMedium,
			Message:  "due date is before record date",
			Field:    "due_date",
			Expected: "> " + r.Date.Format(time.DateOnly),
			Actual:   r.DueDate.Format(time.DateOnly),
		})
	}

	return anomalies
}

func (v *Validator) checkNumber(r *Record) []Anomaly {
	if r.Number == "" || numberPattern.MatchString(r.Number) {
		return nil
	}

	return []Anomaly{{
		Type:     AnomalyInvalidNumber,
		Severity: ledgerflow.SeverityLow,
		Message:  "record number contains invalid characters",
		Field:    "number",
		Actual:   r.Number,
	}}
}

func (v *Validator) checkLineItemMath(r *Record) []Anomaly {
	var anomalies []Anomaly

	for _, li := range r.LineItems {
		if li.MathCorrect() {
			continue
		}
		expected := li.Quantity.Mul(li.UnitPrice)
		anomalies = append(anomalies, Anomaly{
			Type:       AnomalyMathError,
			Severity:   ledgerflow.SeverityHigh,
			Message:    fmt.Sprintf("line item total incorrect: %s × %s ≠ %s", li.Quantity, li.UnitPrice, li.Total),
			LineItemID: li.ID,
			Expected:   expected.StringFixed(2),
			Actual:     li.Total.StringFixed(2),
		})
	}

	return anomalies
}

func (v *Validator) checkTotal(r *Record) []Anomaly {
	if len(r.LineItems) == 0 {
		return nil
	}

	sum := r.LineItemTotal()
	if r.Amount.Sub(sum).Abs().LessThanOrEqual(totalTolerance) {
		return nil
	}

	return []Anomaly{{
		Type:     AnomalyTotalMismatch,
		Severity: ledgerflow.SeverityHigh,
		Message:  "record total does not match sum of line items",
		Field:    "amount",
		Expected: sum.StringFixed(2),
		Actual:   r.Amount.StringFixed(2),
	}}
}
