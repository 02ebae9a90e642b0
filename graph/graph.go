// Package graph stores validated records and agreement terms in a
// knowledge graph. This package holds the in-memory implementation used in
// tests and single-process deployments; graph/neo4j backs the same
// interfaces with a Neo4j cluster.
package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/compliance"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
	"github.com/finshore/ledgerflow/workflow"
)

// Store is an in-memory graph. Records are keyed by their number so
// re-processing the same document upserts rather than duplicates.
type Store struct {
	mu         sync.RWMutex
	agreements map[id.AgreementID]*compliance.Terms
	records    map[string]*record.Record
	nodeIDs    map[string]string
}

var (
	_ workflow.GraphStore       = (*Store)(nil)
	_ compliance.AgreementStore = (*Store)(nil)
)

// New returns an empty graph store.
func New() *Store {
	return &Store{
		agreements: make(map[id.AgreementID]*compliance.Terms),
		records:    make(map[string]*record.Record),
		nodeIDs:    make(map[string]string),
	}
}

// PutAgreement stores or replaces the terms for an agreement.
func (s *Store) PutAgreement(terms *compliance.Terms) error {
	if terms == nil || terms.AgreementID.IsNil() {
		return fmt.Errorf("graph: agreement terms require an agreement id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agreements[terms.AgreementID] = cloneTerms(terms)
	return nil
}

// Agreement implements compliance.AgreementStore.
func (s *Store) Agreement(ctx context.Context, agreementID id.AgreementID) (*compliance.Terms, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	terms, ok := s.agreements[agreementID]
	if !ok {
		return nil, ledgerflow.ErrAgreementNotFound
	}
	return cloneTerms(terms), nil
}

// BilledTotal implements compliance.AgreementStore. It sums the amounts of
// every stored record billed against the agreement.
func (s *Store) BilledTotal(ctx context.Context, agreementID id.AgreementID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, r := range s.records {
		if r.AgreementID == agreementID {
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

// UpsertRecord implements workflow.GraphStore. The record number is the
// merge key: inserting the same number again replaces the stored record and
// returns the node ID minted on first insert.
func (s *Store) UpsertRecord(ctx context.Context, r *record.Record) (string, error) {
	if r == nil || r.Number == "" {
		return "", fmt.Errorf("graph: record requires a number")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	nodeID, ok := s.nodeIDs[r.Number]
	if !ok {
		nodeID = id.NewRecordID().String()
		s.nodeIDs[r.Number] = nodeID
	}
	clone := *r
	clone.LineItems = append([]record.LineItem(nil), r.LineItems...)
	s.records[r.Number] = &clone
	return nodeID, nil
}

// Record returns the stored record with the given number, or
// ledgerflow.ErrRecordNotFound.
func (s *Store) Record(ctx context.Context, number string) (*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[number]
	if !ok {
		return nil, ledgerflow.ErrRecordNotFound
	}
	clone := *r
	clone.LineItems = append([]record.LineItem(nil), r.LineItems...)
	return &clone, nil
}

func cloneTerms(t *compliance.Terms) *compliance.Terms {
	clone := &compliance.Terms{
		AgreementID:       t.AgreementID,
		RetentionRate:     t.RetentionRate,
		ApprovedCostCodes: append([]string(nil), t.ApprovedCostCodes...),
	}
	if t.BillingCap != nil {
		cap := *t.BillingCap
		clone.BillingCap = &cap
	}
	if t.UnitPriceSchedule != nil {
		clone.UnitPriceSchedule = make(map[string]decimal.Decimal, len(t.UnitPriceSchedule))
		for code, price := range t.UnitPriceSchedule {
			clone.UnitPriceSchedule[code] = price
		}
	}
	return clone
}
