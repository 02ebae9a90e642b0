package workflow

import "github.com/finshore/ledgerflow/risk"

// Node identifies one step of the document pipeline. The set is closed:
// routing switches over it exhaustively and panics on anything else, so a
// new node cannot be added without extending the transition table.
type Node string

const (
	NodeExtractText     Node = "extract_text"
	NodeStructureRecord Node = "structure_record"
	NodeValidate        Node = "validate"
	NodeComplianceAudit Node = "compliance_audit"
	NodeCritic          Node = "critic"
	NodeQuarantine      Node = "quarantine"
	NodeInsertGraph     Node = "insert_graph"
	NodeEmbed           Node = "embed"
	NodeFinalize        Node = "finalize"
	NodeErrorHandler    Node = "error_handler"

	// nodeStop is the routing sentinel returned after an absorbing node.
	// It never appears in persisted state.
	nodeStop Node = ""
)

// Valid reports whether n is a member of the pipeline.
func (n Node) Valid() bool {
	switch n {
	case NodeExtractText, NodeStructureRecord, NodeValidate, NodeComplianceAudit,
		NodeCritic, NodeQuarantine, NodeInsertGraph, NodeEmbed, NodeFinalize,
		NodeErrorHandler:
		return true
	}
	return false
}

// Absorbing reports whether the run stops after this node. Quarantine is
// absorbing for the current run but resumable externally.
func (n Node) Absorbing() bool {
	return n == NodeQuarantine || n == NodeFinalize || n == NodeErrorHandler
}

// route selects the next node after executing node n against state s.
// nodeErr is the error returned by n's node function, already appended to
// the error history by the time route runs.
//
// The transition table, one case per edge:
//
//	extract_text     -> structure_record | error_handler (any failure is fatal)
//	structure_record -> validate | critic | quarantine (budget exhausted)
//	critic           -> structure_record (unconditional loop)
//	validate         -> compliance_audit (low) | critic (medium, budget left) | quarantine
//	compliance_audit -> insert_graph | quarantine (audit findings reached the critical/high thresholds, or audit failed)
//	insert_graph     -> embed | finalize (graph failure degrades, never fails the run)
//	embed            -> finalize (unconditional)
//	quarantine, finalize, error_handler -> stop
func (e *Engine) route(s *State, n Node, nodeErr error) Node {
	switch n {
	case NodeExtractText:
		if nodeErr != nil {
			return NodeErrorHandler
		}
		return NodeStructureRecord

	case NodeStructureRecord:
		if nodeErr == nil && s.Record.Identified() {
			return NodeValidate
		}
		if !e.critic.Exhausted(s.RetryCount) {
			return NodeCritic
		}
		return NodeQuarantine

	case NodeCritic:
		return NodeStructureRecord

	case NodeValidate:
		switch {
		case s.RiskLevel == risk.LevelLow:
			return NodeComplianceAudit
		case s.RiskLevel == risk.LevelMedium && !e.critic.Exhausted(s.RetryCount):
			return NodeCritic
		default:
			return NodeQuarantine
		}

	case NodeComplianceAudit:
		if nodeErr != nil || e.complianceExceedsThresholds(s) {
			return NodeQuarantine
		}
		return NodeInsertGraph

	case NodeInsertGraph:
		if nodeErr != nil {
			return NodeFinalize
		}
		return NodeEmbed

	case NodeEmbed:
		return NodeFinalize

	case NodeQuarantine, NodeFinalize, NodeErrorHandler:
		return nodeStop
	}

	panic("workflow: route called with unknown node " + string(n))
}

// complianceExceedsThresholds counts only the audit's own findings against
// the critical/high thresholds. Structural history from earlier attempts
// raises the recorded risk level but does not quarantine a record the
// audit itself cleared.
func (e *Engine) complianceExceedsThresholds(s *State) bool {
	var t risk.Tally
	for _, a := range s.ComplianceAnomalies {
		t.Add(a.Severity)
	}
	return t.Critical >= e.cfg.CriticalThreshold || t.High >= e.cfg.HighThreshold
}
