// Package structure turns extracted document text into candidate records.
// The production implementation calls a Groq-hosted model; Func adapts a
// plain function for tests and local development.
package structure

import (
	"context"

	"github.com/finshore/ledgerflow/record"
	"github.com/finshore/ledgerflow/workflow"
)

// Func adapts a function to workflow.Structurer.
type Func func(ctx context.Context, text, feedback string) (*record.Record, error)

var _ workflow.Structurer = (Func)(nil)

func (f Func) Structure(ctx context.Context, text, feedback string) (*record.Record, error) {
	return f(ctx, text, feedback)
}
