// Package record defines the validated structured record schema produced
// from a financial document, plus the structural validator that detects
// anomalies in a candidate record before it is accepted.
package record

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/finshore/ledgerflow/id"
)

// DocumentType classifies the source document a record was extracted from.
type DocumentType string

const (
	TypeInvoice     DocumentType = "invoice"
	TypeContract    DocumentType = "contract"
	TypeBudget      DocumentType = "budget"
	TypeChangeOrder DocumentType = "change_order"
)

// totalTolerance is the rounding slack allowed when comparing monetary sums.
var totalTolerance = decimal.NewFromFloat(0.01)

// LineItem is a single billed line on a record.
type LineItem struct {
	ID          id.LineItemID   `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	CostCode    string          `json:"cost_code"`
}

// MathCorrect reports whether Quantity × UnitPrice equals Total within
// rounding tolerance.
func (li LineItem) MathCorrect() bool {
	expected := li.Quantity.Mul(li.UnitPrice)
	return expected.Sub(li.Total).Abs().LessThanOrEqual(totalTolerance)
}

// Record is a structured financial record extracted from a document.
// AgreementID links the record to the governing agreement; it is nil-valued
// when the source document carried no agreement reference.
type Record struct {
	ID           id.RecordID     `json:"id"`
	DocumentID   id.DocumentID   `json:"document_id"`
	Number       string          `json:"number"`
	Type         DocumentType    `json:"type"`
	Date         time.Time       `json:"date"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	ContractorID string          `json:"contractor_id"`
	AgreementID  id.AgreementID  `json:"agreement_id"`
	Amount       decimal.Decimal `json:"amount"`
	LineItems    []LineItem      `json:"line_items"`
	ExtractedAt  time.Time       `json:"extracted_at"`
	Confidence   float64         `json:"confidence"`
}

// LineItemTotal returns the sum of all line item totals.
func (r *Record) LineItemTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range r.LineItems {
		sum = sum.Add(li.Total)
	}
	return sum
}

// Identified reports whether the record carries the minimum identifying
// fields required to treat structuring as successful.
func (r *Record) Identified() bool {
	return r != nil && r.Number != ""
}

// UnknownCostCode marks line items the structurer could not classify.
const UnknownCostCode = "99-999"

// Confidence scores extraction completeness in [0, 1]: the fraction of
// required fields present, blended with the fraction of line items carrying
// a real cost code when any line items exist.
func Confidence(r *Record) float64 {
	if r == nil {
		return 0
	}

	present := 0
	if r.Number != "" {
		present++
	}
	if !r.Date.IsZero() {
		present++
	}
	if r.ContractorID != "" {
		present++
	}
	if !r.Amount.IsZero() {
		present++
	}
	if len(r.LineItems) > 0 {
		present++
	}
	confidence := float64(present) / 5

	if len(r.LineItems) > 0 {
		coded := 0
		for _, li := range r.LineItems {
			if li.CostCode != "" && li.CostCode != UnknownCostCode {
				coded++
			}
		}
		codeRatio := float64(coded) / float64(len(r.LineItems))
		confidence = (confidence + codeRatio) / 2
	}

	// Round to two decimal places.
	return float64(int(confidence*100+0.5)) / 100
}
