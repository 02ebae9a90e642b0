package critic

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
)

func testController() *Controller {
	return NewController(ledgerflow.DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPermit(t *testing.T) {
	c := testController()

	// DefaultConfig allows three retries.
	count := 0
	for i := 0; i < 3; i++ {
		next, ok := c.Permit(count)
		if !ok {
			t.Fatalf("Permit(%d) denied, want allowed", count)
		}
		if next != count+1 {
			t.Fatalf("Permit(%d) = %d, want %d", count, next, count+1)
		}
		count = next
	}

	next, ok := c.Permit(count)
	if ok {
		t.Fatalf("Permit(%d) allowed past budget", count)
	}
	if next != 4 {
		t.Errorf("Permit(3) count = %d, want 4", next)
	}
}

func TestPermitIncrementsOncePerCall(t *testing.T) {
	c := testController()
	next, _ := c.Permit(1)
	if next != 2 {
		t.Errorf("Permit(1) = %d, want 2", next)
	}
	// The count advances even when the retry is denied.
	next, ok := c.Permit(99)
	if ok || next != 100 {
		t.Errorf("Permit(99) = (%d, %v), want (100, false)", next, ok)
	}
}

func TestExhausted(t *testing.T) {
	c := testController()
	for count, want := range map[int]bool{0: false, 2: false, 3: true, 5: true} {
		if got := c.Exhausted(count); got != want {
			t.Errorf("Exhausted(%d) = %v, want %v", count, got, want)
		}
	}
}

func TestCritiqueEmpty(t *testing.T) {
	c := testController()
	if got := c.Critique(nil, &record.Record{}); got != "" {
		t.Errorf("Critique(nil) = %q, want empty", got)
	}
}

func TestCritiqueCoversAnomalyTypes(t *testing.T) {
	c := testController()

	itemID := id.NewLineItemID()
	rec := &record.Record{
		Number: "inv_bad!",
		LineItems: []record.LineItem{
			{ID: itemID, Description: "Rebar", CostCode: record.UnknownCostCode},
		},
	}
	anomalies := []record.Anomaly{
		{Type: record.AnomalyMathError, LineItemID: itemID, Expected: "1000.00", Actual: "900.00"},
		{Type: record.AnomalyTotalMismatch, Expected: "1000.00", Actual: "1200.00"},
		{Type: record.AnomalyMissingField, Field: "contractor_id"},
		{Type: record.AnomalyInvalidNumber, Message: "document number is malformed"},
		{Type: record.AnomalyFutureDate, Message: "document date is in the future"},
	}

	got := c.Critique(anomalies, rec)

	for _, want := range []string{
		"failed validation",
		"quantity times unit price",
		"expected 1000.00, got 900.00",
		"does not match the sum of line items",
		`"contractor_id"`,
		`"inv_bad!"`,
		"document date is in the future",
		"fallback cost code",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("critique missing %q:\n%s", want, got)
		}
	}
}

func TestCritiqueDeterministic(t *testing.T) {
	c := testController()
	rec := &record.Record{Number: "INV-1"}
	anomalies := []record.Anomaly{
		{Type: record.AnomalyMissingLineItems},
		{Type: record.AnomalyMissingField, Field: "date"},
	}
	first := c.Critique(anomalies, rec)
	second := c.Critique(anomalies, rec)
	if first != second {
		t.Errorf("critique not deterministic:\n%s\nvs\n%s", first, second)
	}
	if !strings.Contains(first, "No line items were extracted") {
		t.Errorf("critique missing line item guidance:\n%s", first)
	}
}

func TestCritiqueUnknownTypeFallsBackToMessage(t *testing.T) {
	c := testController()
	anomalies := []record.Anomaly{
		{Type: record.AnomalyType("something_new"), Message: "unexpected condition"},
	}
	got := c.Critique(anomalies, &record.Record{
		LineItems: []record.LineItem{{Description: "x", CostCode: "03-100", Quantity: decimal.NewFromInt(1)}},
	})
	if !strings.Contains(got, "unexpected condition") {
		t.Errorf("critique missing fallback message:\n%s", got)
	}
	if strings.Contains(got, "fallback cost code") {
		t.Errorf("coded items should not trigger cost code guidance:\n%s", got)
	}
}
