// Package critic turns structural validation failures into concrete
// revision guidance for the structuring step and gates how many times a
// record may be re-structured.
package critic

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/record"
)

// Controller produces revision guidance and enforces the retry budget.
type Controller struct {
	maxRetries int
	logger     *slog.Logger
}

// NewController creates a Controller with the retry budget from cfg.
func NewController(cfg ledgerflow.Config, logger *slog.Logger) *Controller {
	return &Controller{
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// Permit consumes one retry attempt. It returns the incremented retry
// count and whether another structuring attempt is allowed. The caller
// must persist the returned count whether or not the retry proceeds, so
// that a crash between decision and attempt never grants a free retry.
func (c *Controller) Permit(retryCount int) (int, bool) {
	next := retryCount + 1
	allowed := retryCount < c.maxRetries

	c.logger.Info("critic retry decision",
		slog.Int("retry_count", next),
		slog.Int("max_retries", c.maxRetries),
		slog.Bool("allowed", allowed),
	)

	return next, allowed
}

// Exhausted reports whether the retry budget is spent. Routing uses it to
// decide whether a failed attempt may enter the critic at all; keeping the
// check and the increment on one type keeps the two from drifting apart.
func (c *Controller) Exhausted(retryCount int) bool {
	return retryCount >= c.maxRetries
}

// Critique converts validation anomalies into instructions for the next
// structuring attempt. The output is deterministic for a given anomaly
// set. An empty anomaly slice yields an empty string.
func (c *Controller) Critique(anomalies []record.Anomaly, r *record.Record) string {
	if len(anomalies) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("The previous structuring attempt failed validation. Fix the following issues:\n")

	for _, an := range anomalies {
		switch an.Type {
		case record.AnomalyMathError:
			fmt.Fprintf(&b, "- Line item %s: quantity times unit price must equal the line total (expected %s, got %s). Recompute the arithmetic from the source text.\n",
				an.LineItemID, an.Expected, an.Actual)
		case record.AnomalyTotalMismatch:
			fmt.Fprintf(&b, "- The document total %s does not match the sum of line items %s. Re-read the total and every line amount.\n",
				an.Actual, an.Expected)
		case record.AnomalyMissingField:
			fmt.Fprintf(&b, "- Required field %q is empty. Search the source text again for it.\n", an.Field)
		case record.AnomalyMissingLineItems:
			b.WriteString("- No line items were extracted. The document body must contain at least one billed item.\n")
		case record.AnomalyFutureDate, record.AnomalyInvalidDueDate:
			fmt.Fprintf(&b, "- %s Check the date fields against the source text.\n", an.Message)
		case record.AnomalyInvalidNumber:
			fmt.Fprintf(&b, "- The document number %q is malformed. Use the identifier printed on the document, uppercase letters, digits, and hyphens only.\n",
				r.Number)
		default:
			fmt.Fprintf(&b, "- %s\n", an.Message)
		}
	}

	if uncoded := uncodedItems(r); uncoded > 0 {
		fmt.Fprintf(&b, "- %d line item(s) carry the fallback cost code. Match each item's description to a known cost code where possible.\n", uncoded)
	}

	guidance := b.String()
	c.logger.Debug("critique generated",
		slog.Int("anomalies", len(anomalies)),
		slog.Int("length", len(guidance)),
	)

	return guidance
}

func uncodedItems(r *record.Record) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, li := range r.LineItems {
		if li.CostCode == record.UnknownCostCode || li.CostCode == "" {
			n++
		}
	}
	return n
}
