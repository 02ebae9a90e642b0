// Package neo4j backs the knowledge graph with a Neo4j database. It
// implements workflow.GraphStore and compliance.AgreementStore over the
// same node shape the in-memory graph store models.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/shopspring/decimal"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/compliance"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
	"github.com/finshore/ledgerflow/workflow"
)

const dateLayout = "2006-01-02"

// Store persists records and agreements in Neo4j. Monetary values are
// stored as decimal strings and summed client-side so float drift never
// enters compliance math.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

var (
	_ workflow.GraphStore       = (*Store)(nil)
	_ compliance.AgreementStore = (*Store)(nil)
)

// Option customizes a Store.
type Option func(*Store)

// WithDatabase selects a database other than the server default.
func WithDatabase(name string) Option {
	return func(s *Store) { s.database = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New connects to Neo4j at uri with basic auth.
func New(ctx context.Context, uri, username, password string, opts ...Option) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph/neo4j: create driver: %w", err)
	}
	s := &Store{
		driver:   driver,
		database: "neo4j",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph/neo4j: verify connectivity: %w", err)
	}
	return s, nil
}

// Migrate creates the uniqueness constraints the merge keys rely on. It is
// idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	constraints := []string{
		`CREATE CONSTRAINT record_number IF NOT EXISTS FOR (r:Record) REQUIRE r.number IS UNIQUE`,
		`CREATE CONSTRAINT agreement_id IF NOT EXISTS FOR (a:Agreement) REQUIRE a.id IS UNIQUE`,
		`CREATE CONSTRAINT contractor_id IF NOT EXISTS FOR (c:Contractor) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT line_item_id IF NOT EXISTS FOR (li:LineItem) REQUIRE li.id IS UNIQUE`,
	}
	for _, stmt := range constraints {
		if _, err := s.run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("%w: %v", ledgerflow.ErrMigrationFailed, err)
		}
	}
	s.logger.Info("graph constraints ensured", slog.Int("count", len(constraints)))
	return nil
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph/neo4j: ping: %w", err)
	}
	return nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// UpsertRecord implements workflow.GraphStore. The record number is the
// merge key; re-inserting a number rewrites its properties and line items
// and returns the node ID minted on first insert.
func (s *Store) UpsertRecord(ctx context.Context, r *record.Record) (string, error) {
	if r == nil || r.Number == "" {
		return "", fmt.Errorf("graph/neo4j: record requires a number")
	}

	params := map[string]any{
		"number":        r.Number,
		"candidate_id":  id.NewRecordID().String(),
		"document_id":   r.DocumentID.String(),
		"type":          string(r.Type),
		"date":          r.Date.Format(dateLayout),
		"due_date":      nil,
		"contractor_id": r.ContractorID,
		"agreement_id":  nil,
		"amount":        r.Amount.String(),
	}
	if r.DueDate != nil {
		params["due_date"] = r.DueDate.Format(dateLayout)
	}
	if !r.AgreementID.IsNil() {
		params["agreement_id"] = r.AgreementID.String()
	}

	// FOREACH-over-conditional-list links the agreement only when its node
	// exists; MERGE against a missing node would fail the whole write.
	records, err := s.run(ctx, `
		MERGE (c:Contractor {id: $contractor_id})
		MERGE (r:Record {number: $number})
		ON CREATE SET r.node_id = $candidate_id, r.created_at = datetime()
		SET r.document_id = $document_id,
		    r.type = $type,
		    r.date = $date,
		    r.due_date = $due_date,
		    r.contractor_id = $contractor_id,
		    r.agreement_id = $agreement_id,
		    r.amount = $amount,
		    r.updated_at = datetime()
		MERGE (c)-[:ISSUED]->(r)
		WITH r
		OPTIONAL MATCH (a:Agreement {id: $agreement_id})
		FOREACH (_ IN CASE WHEN a IS NULL THEN [] ELSE [1] END |
			MERGE (r)-[:BILLED_AGAINST]->(a))
		RETURN r.node_id AS node_id`, params)
	if err != nil {
		return "", fmt.Errorf("graph/neo4j: upsert record %q: %w", r.Number, err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("graph/neo4j: upsert record %q: no node returned", r.Number)
	}
	nodeID, _, err := neo4j.GetRecordValue[string](records[0], "node_id")
	if err != nil {
		return "", fmt.Errorf("graph/neo4j: upsert record %q: %w", r.Number, err)
	}

	if err := s.replaceLineItems(ctx, r); err != nil {
		return "", err
	}

	s.logger.Debug("record upserted",
		slog.String("number", r.Number),
		slog.String("node_id", nodeID),
		slog.Int("line_items", len(r.LineItems)))
	return nodeID, nil
}

func (s *Store) replaceLineItems(ctx context.Context, r *record.Record) error {
	if _, err := s.run(ctx, `
		MATCH (r:Record {number: $number})-[rel:CONTAINS_ITEM]->(li:LineItem)
		DELETE rel, li`, map[string]any{"number": r.Number}); err != nil {
		return fmt.Errorf("graph/neo4j: clear line items for %q: %w", r.Number, err)
	}
	if len(r.LineItems) == 0 {
		return nil
	}

	items := make([]map[string]any, 0, len(r.LineItems))
	for _, li := range r.LineItems {
		itemID := li.ID
		if itemID.IsNil() {
			itemID = id.NewLineItemID()
		}
		items = append(items, map[string]any{
			"id":          itemID.String(),
			"cost_code":   li.CostCode,
			"description": li.Description,
			"quantity":    li.Quantity.String(),
			"unit_price":  li.UnitPrice.String(),
			"total":       li.Total.String(),
		})
	}
	if _, err := s.run(ctx, `
		MATCH (r:Record {number: $number})
		UNWIND $items AS item
		MERGE (li:LineItem {id: item.id})
		SET li.cost_code = item.cost_code,
		    li.description = item.description,
		    li.quantity = item.quantity,
		    li.unit_price = item.unit_price,
		    li.total = item.total
		MERGE (r)-[:CONTAINS_ITEM]->(li)`, map[string]any{
		"number": r.Number,
		"items":  items,
	}); err != nil {
		return fmt.Errorf("graph/neo4j: write line items for %q: %w", r.Number, err)
	}
	return nil
}

// PutAgreement stores or replaces an agreement's terms. The unit price
// schedule is serialized to JSON because Neo4j properties cannot hold maps.
func (s *Store) PutAgreement(ctx context.Context, terms *compliance.Terms) error {
	if terms == nil || terms.AgreementID.IsNil() {
		return fmt.Errorf("graph/neo4j: agreement terms require an agreement id")
	}

	schedule := make(map[string]string, len(terms.UnitPriceSchedule))
	for code, price := range terms.UnitPriceSchedule {
		schedule[code] = price.String()
	}
	scheduleJSON, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("graph/neo4j: encode price schedule: %w", err)
	}

	params := map[string]any{
		"id":                  terms.AgreementID.String(),
		"retention_rate":      terms.RetentionRate.String(),
		"billing_cap":         nil,
		"unit_price_schedule": string(scheduleJSON),
		"approved_cost_codes": terms.ApprovedCostCodes,
	}
	if terms.BillingCap != nil {
		params["billing_cap"] = terms.BillingCap.String()
	}

	if _, err := s.run(ctx, `
		MERGE (a:Agreement {id: $id})
		SET a.retention_rate = $retention_rate,
		    a.billing_cap = $billing_cap,
		    a.unit_price_schedule = $unit_price_schedule,
		    a.approved_cost_codes = $approved_cost_codes,
		    a.updated_at = datetime()`, params); err != nil {
		return fmt.Errorf("graph/neo4j: upsert agreement %s: %w", terms.AgreementID, err)
	}
	return nil
}

// Agreement implements compliance.AgreementStore.
func (s *Store) Agreement(ctx context.Context, agreementID id.AgreementID) (*compliance.Terms, error) {
	records, err := s.run(ctx, `
		MATCH (a:Agreement {id: $id})
		RETURN a.retention_rate AS retention_rate,
		       a.billing_cap AS billing_cap,
		       a.unit_price_schedule AS unit_price_schedule,
		       a.approved_cost_codes AS approved_cost_codes`,
		map[string]any{"id": agreementID.String()})
	if err != nil {
		return nil, fmt.Errorf("graph/neo4j: load agreement %s: %w", agreementID, err)
	}
	if len(records) == 0 {
		return nil, ledgerflow.ErrAgreementNotFound
	}
	rec := records[0]

	terms := &compliance.Terms{AgreementID: agreementID}

	rate, _, err := neo4j.GetRecordValue[string](rec, "retention_rate")
	if err != nil {
		return nil, fmt.Errorf("graph/neo4j: agreement %s retention rate: %w", agreementID, err)
	}
	if terms.RetentionRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("graph/neo4j: agreement %s retention rate %q: %w", agreementID, rate, err)
	}

	if capStr, isNil, err := neo4j.GetRecordValue[string](rec, "billing_cap"); err == nil && !isNil {
		cap, err := decimal.NewFromString(capStr)
		if err != nil {
			return nil, fmt.Errorf("graph/neo4j: agreement %s billing cap %q: %w", agreementID, capStr, err)
		}
		terms.BillingCap = &cap
	}

	scheduleJSON, isNil, err := neo4j.GetRecordValue[string](rec, "unit_price_schedule")
	if err == nil && !isNil && scheduleJSON != "" {
		var schedule map[string]string
		if err := json.Unmarshal([]byte(scheduleJSON), &schedule); err != nil {
			return nil, fmt.Errorf("graph/neo4j: agreement %s price schedule: %w", agreementID, err)
		}
		terms.UnitPriceSchedule = make(map[string]decimal.Decimal, len(schedule))
		for code, priceStr := range schedule {
			price, err := decimal.NewFromString(priceStr)
			if err != nil {
				return nil, fmt.Errorf("graph/neo4j: agreement %s price for %s: %w", agreementID, code, err)
			}
			terms.UnitPriceSchedule[code] = price
		}
	}

	if codes, isNil, err := neo4j.GetRecordValue[[]any](rec, "approved_cost_codes"); err == nil && !isNil {
		for _, code := range codes {
			if codeStr, ok := code.(string); ok {
				terms.ApprovedCostCodes = append(terms.ApprovedCostCodes, codeStr)
			}
		}
	}

	return terms, nil
}

// BilledTotal implements compliance.AgreementStore. Amounts come back as
// decimal strings and are summed here rather than in Cypher.
func (s *Store) BilledTotal(ctx context.Context, agreementID id.AgreementID) (decimal.Decimal, error) {
	records, err := s.run(ctx, `
		MATCH (a:Agreement {id: $id})<-[:BILLED_AGAINST]-(r:Record)
		RETURN collect(r.amount) AS amounts`,
		map[string]any{"id": agreementID.String()})
	if err != nil {
		return decimal.Zero, fmt.Errorf("graph/neo4j: billed total for %s: %w", agreementID, err)
	}
	if len(records) == 0 {
		return decimal.Zero, nil
	}

	amounts, _, err := neo4j.GetRecordValue[[]any](records[0], "amounts")
	if err != nil {
		return decimal.Zero, fmt.Errorf("graph/neo4j: billed total for %s: %w", agreementID, err)
	}
	total := decimal.Zero
	for _, raw := range amounts {
		amountStr, ok := raw.(string)
		if !ok {
			continue
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("graph/neo4j: billed amount %q: %w", amountStr, err)
		}
		total = total.Add(amount)
	}
	return total, nil
}

func (s *Store) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}
