package workflow

import (
	"context"

	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/risk"
)

// ListOpts controls filtering and pagination for state list queries.
type ListOpts struct {
	// Status filters by workflow status. Empty means all statuses.
	Status Status
	// Paused filters by the paused flag when non-nil.
	Paused *bool
	// RiskLevel filters by risk level. Empty means all levels.
	RiskLevel risk.Level
	// Limit is the maximum number of states to return. Zero means no limit.
	Limit int
	// Offset is the number of states to skip.
	Offset int
}

// Match reports whether a state passes the option filters. Limit and
// Offset are the store's responsibility.
func (o ListOpts) Match(s *State) bool {
	if o.Status != "" && s.Status != o.Status {
		return false
	}
	if o.Paused != nil && s.Paused != *o.Paused {
		return false
	}
	if o.RiskLevel != "" && s.RiskLevel != o.RiskLevel {
		return false
	}
	return true
}

// Store defines the persistence contract for workflow state. Each
// checkpoint overwrites the full snapshot for the document; there are no
// partial updates at the storage layer.
type Store interface {
	// SaveState persists the complete state snapshot, creating or
	// replacing the row keyed by the state's document ID.
	SaveState(ctx context.Context, s *State) error

	// GetState retrieves a state by document ID. Returns
	// ledgerflow.ErrWorkflowNotFound if no workflow exists for the ID.
	GetState(ctx context.Context, docID id.DocumentID) (*State, error)

	// ListStates returns states matching the given options, most recently
	// updated first.
	ListStates(ctx context.Context, opts ListOpts) ([]*State, error)

	// DeleteState removes a state by document ID. Deleting a missing
	// state is not an error.
	DeleteState(ctx context.Context, docID id.DocumentID) error

	// Migrate creates or upgrades the backing schema.
	Migrate(ctx context.Context) error

	// Ping verifies connectivity to the backing storage.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
