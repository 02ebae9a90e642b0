package ledgerflow

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("ledgerflow: no store configured")
	ErrStoreClosed     = errors.New("ledgerflow: store closed")
	ErrMigrationFailed = errors.New("ledgerflow: migration failed")

	// Not found errors.
	ErrWorkflowNotFound  = errors.New("ledgerflow: workflow not found")
	ErrAgreementNotFound = errors.New("ledgerflow: agreement not found")
	ErrRecordNotFound    = errors.New("ledgerflow: record not found")

	// State errors.
	ErrInvalidState       = errors.New("ledgerflow: invalid state transition")
	ErrNotQuarantined     = errors.New("ledgerflow: workflow is not quarantined")
	ErrMaxRetriesExceeded = errors.New("ledgerflow: max retries exceeded")

	// Conflict errors.
	ErrWorkflowExists = errors.New("ledgerflow: workflow already exists")
)
