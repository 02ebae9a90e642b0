// Package workflow contains the document pipeline: the state threaded
// through it, the node functions, the routing table, and the engine that
// checkpoints state after every node.
//
// A run is a single pass from extraction to an absorbing node. Quarantine
// suspends the run for human review; Resume re-enters it after feedback.
// Because every node checkpoint overwrites the full snapshot, a crashed
// process picks up from the last completed node with no replay.
//
// The engine owns no policy of its own: validation lives in record,
// compliance rules in compliance, scoring in risk, and retry bookkeeping
// in critic. Node functions wire those together and return partial
// updates, which keeps each node testable in isolation.
package workflow
