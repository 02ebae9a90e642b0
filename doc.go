// Package ledgerflow provides a durable, resumable processing pipeline that
// turns unstructured financial documents (invoices, contracts, budgets) into
// validated, compliance-checked structured records in a knowledge store.
//
// Ledgerflow is designed as a library, not a service. Import it, configure a
// workflow state store and collaborators, and submit documents through the
// manager façade.
//
// # Architecture
//
// Each document runs through a checkpointed state machine: text extraction,
// LLM-backed structuring, structural validation, compliance auditing against
// the governing agreement's terms, risk scoring, a bounded critic retry loop
// for correctable findings, and persistence into the knowledge graph and
// vector index. High-risk findings quarantine the workflow for human review;
// a reviewer's approval or corrections resume it from the last checkpoint.
//
// After every node the accumulated state is persisted as a full snapshot
// keyed by document ID, so a suspended workflow can be resumed without
// replaying completed work.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package ledgerflow
