package ledgerflow

import "time"

// Config holds tunables for the document processing pipeline.
type Config struct {
	// MaxRetries bounds the critic retry loop. Once a document has been
	// re-structured this many times it is quarantined instead of retried.
	MaxRetries int

	// PriceTolerance is the fraction by which a line item's unit price may
	// exceed the agreement's scheduled maximum before it is flagged.
	PriceTolerance float64

	// RetentionTolerance is the fraction of the record total within which
	// the retention amount may deviate from the expected value.
	RetentionTolerance float64

	// CriticalThreshold is the number of critical anomalies at which a
	// workflow is scored critical and quarantined after the audit.
	CriticalThreshold int

	// HighThreshold is the number of high-severity anomalies at which a
	// workflow is scored high and quarantined after the audit.
	HighThreshold int

	// RetryDelay is the base delay applied between critic feedback and the
	// next structuring attempt. Zero disables the delay.
	RetryDelay time.Duration

	// EnableComplianceAudit toggles the compliance audit node. When false
	// the audit is skipped and its routing always proceeds.
	EnableComplianceAudit bool

	// EnableVectorEmbedding toggles the best-effort vector index node.
	EnableVectorEmbedding bool

	// StateRetention is how long terminal (completed/failed) workflow
	// states are kept before the janitor removes them. Zero keeps forever.
	StateRetention time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:            3,
		PriceTolerance:        0.05,
		RetentionTolerance:    0.01,
		CriticalThreshold:     1,
		HighThreshold:         2,
		RetryDelay:            1 * time.Second,
		EnableComplianceAudit: true,
		EnableVectorEmbedding: true,
		StateRetention:        0,
	}
}
