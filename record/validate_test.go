package record_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
)

// fixedNow is the reference clock for date validation tests.
var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestValidator() *record.Validator {
	v := record.NewValidator()
	v.Now = func() time.Time { return fixedNow }
	return v
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// cleanRecord returns a record that passes every structural check.
func cleanRecord() *record.Record {
	return &record.Record{
		ID:           id.NewRecordID(),
		DocumentID:   id.NewDocumentID(),
		Number:       "INV-2025-001",
		Type:         record.TypeInvoice,
		Date:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ContractorID: "ACME-CONSTRUCTION",
		AgreementID:  id.NewAgreementID(),
		Amount:       dec("1500.00"),
		LineItems: []record.LineItem{
			{
				ID:          id.NewLineItemID(),
				Description: "Concrete pouring",
				Quantity:    dec("10"),
				UnitPrice:   dec("100.00"),
				Total:       dec("1000.00"),
				CostCode:    "03-100",
			},
			{
				ID:          id.NewLineItemID(),
				Description: "Site cleanup",
				Quantity:    dec("5"),
				UnitPrice:   dec("100.00"),
				Total:       dec("500.00"),
				CostCode:    "01-740",
			},
		},
		ExtractedAt: fixedNow,
	}
}

func TestValidate_CleanRecord(t *testing.T) {
	v := newTestValidator()
	anomalies := v.Validate(cleanRecord())
	if len(anomalies) != 0 {
		t.Fatalf("expected no anomalies, got %d: %v", len(anomalies), anomalies)
	}
}

func TestValidate_NilRecord(t *testing.T) {
	v := newTestValidator()
	anomalies := v.Validate(nil)
	if len(anomalies) != 1 {
		t.Fatalf("expected one anomaly for a nil record, got %d: %v", len(anomalies), anomalies)
	}
	if anomalies[0].Type != record.AnomalyMissingField || anomalies[0].Severity != ledgerflow.SeverityCritical {
		t.Errorf("anomaly = %+v, want a critical missing-field finding", anomalies[0])
	}
}

func TestValidate_MissingFields(t *testing.T) {
	v := newTestValidator()

	r := cleanRecord()
	r.Number = ""
	r.ContractorID = ""

	anomalies := v.Validate(r)

	missing := 0
	for _, a := range anomalies {
		if a.Type == record.AnomalyMissingField {
			missing++
			if a.Severity != ledgerflow.SeverityHigh {
				t.Errorf("missing field severity = %q, want high", a.Severity)
			}
		}
	}
	if missing != 2 {
		t.Errorf("missing field anomalies = %d, want 2", missing)
	}
}

func TestValidate_NoLineItems(t *testing.T) {
	v := newTestValidator()

	r := cleanRecord()
	r.LineItems = nil
	r.Amount = dec("100.00")

	anomalies := v.Validate(r)

	found := false
	for _, a := range anomalies {
		if a.Type == record.AnomalyMissingLineItems {
			found = true
		}
		if a.Type == record.AnomalyTotalMismatch {
			t.Error("total mismatch should not fire with no line items")
		}
	}
	if !found {
		t.Error("expected missing_line_items anomaly")
	}
}

func TestValidate_FutureDate(t *testing.T) {
	v := newTestValidator()

	r := cleanRecord()
	r.Date = fixedNow.AddDate(0, 1, 0)

	anomalies := v.Validate(r)
	if !hasType(anomalies, record.AnomalyFutureDate) {
		t.Error("expected future_date anomaly")
	}
}

func TestValidate_DueDateBeforeDate(t *testing.T) {
	v := newTestValidator()

	r := cleanRecord()
	due := r.Date.AddDate(0, 0, -10)
	r.DueDate = &due

	anomalies := v.Validate(r)
	if !hasType(anomalies, record.AnomalyInvalidDueDate) {
		t.Error("expected invalid_due_date anomaly")
	}
}

func TestValidate_InvalidNumber(t *testing.T) {
	v := newTestValidator()

	r := cleanRecord()
	r.Number = "inv 001!"

	anomalies := v.Validate(r)

	for _, a := range anomalies {
		if a.Type == record.AnomalyInvalidNumber {
			if a.Severity != ledgerflow.SeverityLow {
				t.Errorf("invalid number severity = %q, want low", a.Severity)
			}
			return
		}
	}
	t.Error("expected invalid_number anomaly")
}

func TestValidate_LineItemMath(t *testing.T) {
	v := newTestValidator()

	r := cleanRecord()
	r.LineItems[0].Total = dec("999.00") // 10 × 100 ≠ 999
	r.Amount = dec("1499.00")            // keep the grand total consistent

	anomalies := v.Validate(r)

	mathErrors := 0
	for _, a := range anomalies {
		if a.Type == record.AnomalyMathError {
			mathErrors++
			if a.LineItemID != r.LineItems[0].ID {
				t.Errorf("math error attributed to wrong line item: %s", a.LineItemID)
			}
			if a.Expected != "1000.00" {
				t.Errorf("expected value = %q, want 1000.00", a.Expected)
			}
		}
	}
	if mathErrors != 1 {
		t.Errorf("math error anomalies = %d, want 1", mathErrors)
	}
}

func TestValidate_TotalMismatch(t *testing.T) {
	v := newTestValidator()

	r := cleanRecord()
	r.Amount = dec("2000.00") // line items sum to 1500

	anomalies := v.Validate(r)
	if !hasType(anomalies, record.AnomalyTotalMismatch) {
		t.Error("expected total_mismatch anomaly")
	}
}

func TestValidate_TotalWithinTolerance(t *testing.T) {
	v := newTestValidator()

	r := cleanRecord()
	r.Amount = dec("1500.01") // within the one-cent rounding tolerance

	anomalies := v.Validate(r)
	if hasType(anomalies, record.AnomalyTotalMismatch) {
		t.Error("total within tolerance should not be flagged")
	}
}

func hasType(anomalies []record.Anomaly, at record.AnomalyType) bool {
	for _, a := range anomalies {
		if a.Type == at {
			return true
		}
	}
	return false
}

func TestConfidence_CompleteRecord(t *testing.T) {
	got := record.Confidence(cleanRecord())
	if got != 1.0 {
		t.Errorf("confidence = %v, want 1.0", got)
	}
}

func TestConfidence_PartialRecord(t *testing.T) {
	r := cleanRecord()
	r.Number = ""
	r.ContractorID = ""

	// 3 of 5 required fields present, both items coded:
	// (0.6 + 1.0) / 2 = 0.8.
	got := record.Confidence(r)
	if got != 0.8 {
		t.Errorf("confidence = %v, want 0.8", got)
	}
}

func TestConfidence_UncodedLineItems(t *testing.T) {
	r := cleanRecord()
	r.LineItems[0].CostCode = "99-999"
	r.LineItems[1].CostCode = ""

	// All fields present, zero coded items: (1.0 + 0.0) / 2 = 0.5.
	got := record.Confidence(r)
	if got != 0.5 {
		t.Errorf("confidence = %v, want 0.5", got)
	}
}

func TestConfidence_NilRecord(t *testing.T) {
	if got := record.Confidence(nil); got != 0 {
		t.Errorf("confidence of nil record = %v, want 0", got)
	}
}
