package workflow

import (
	"context"

	"github.com/finshore/ledgerflow/compliance"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
)

// Extractor turns a raw document into text. Failures are fatal to the
// workflow: an unreadable document cannot be retried into readability.
type Extractor interface {
	ExtractText(ctx context.Context, doc Document) (string, error)
}

// Structurer produces a candidate structured record from document text.
// On retry attempts feedback carries the critic's guidance; it is empty on
// the first attempt.
type Structurer interface {
	Structure(ctx context.Context, text, feedback string) (*record.Record, error)
}

// Auditor runs the compliance rules against a structured record.
// *compliance.Auditor satisfies it.
type Auditor interface {
	Audit(ctx context.Context, r *record.Record) ([]compliance.Anomaly, error)
}

// GraphStore persists validated records into the knowledge store. Upsert
// failures degrade the run (skip embedding, still finalize).
type GraphStore interface {
	// UpsertRecord writes the record and returns the external record ID.
	UpsertRecord(ctx context.Context, r *record.Record) (string, error)
}

// VectorIndex is the best-effort semantic index. Index failures are logged
// and never affect routing.
type VectorIndex interface {
	Index(ctx context.Context, docID id.DocumentID, text string, meta map[string]string) error
}
