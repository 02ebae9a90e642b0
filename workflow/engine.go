package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/backoff"
	"github.com/finshore/ledgerflow/critic"
	"github.com/finshore/ledgerflow/record"
	"github.com/finshore/ledgerflow/risk"
)

// EngineOptions collects the engine's dependencies. Store, Extractor, and
// Structurer are required; the rest default sensibly.
type EngineOptions struct {
	Store      Store
	Extractor  Extractor
	Structurer Structurer

	// Auditor may be nil when Config.EnableComplianceAudit is false.
	Auditor Auditor

	// Graph may be nil; insert_graph then degrades as if the upsert failed.
	Graph GraphStore

	// Vector may be nil; embedding is skipped.
	Vector VectorIndex

	// Backoff delays re-structuring after a critic pass. Defaults to a
	// constant delay of Config.RetryDelay.
	Backoff backoff.Strategy

	Config ledgerflow.Config
	Logger *slog.Logger
}

// Engine executes the document pipeline: it runs node functions, merges
// their updates into state, checkpoints after every node, and routes to
// the next node until an absorbing node stops the run.
type Engine struct {
	store      Store
	extractor  Extractor
	structurer Structurer
	auditor    Auditor
	graph      GraphStore
	vector     VectorIndex

	validator *record.Validator
	scorer    *risk.Scorer
	critic    *critic.Controller
	backoff   backoff.Strategy

	cfg    ledgerflow.Config
	logger *slog.Logger
}

// NewEngine creates an Engine. It returns an error when a required
// dependency is missing.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Store == nil {
		return nil, ledgerflow.ErrNoStore
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("workflow: engine requires an extractor")
	}
	if opts.Structurer == nil {
		return nil, fmt.Errorf("workflow: engine requires a structurer")
	}
	if opts.Config == (ledgerflow.Config{}) {
		opts.Config = ledgerflow.DefaultConfig()
	}
	if opts.Config.EnableComplianceAudit && opts.Auditor == nil {
		return nil, fmt.Errorf("workflow: compliance audit enabled but no auditor provided")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Backoff == nil {
		opts.Backoff = backoff.NewConstant(opts.Config.RetryDelay)
	}

	return &Engine{
		store:      opts.Store,
		extractor:  opts.Extractor,
		structurer: opts.Structurer,
		auditor:    opts.Auditor,
		graph:      opts.Graph,
		vector:     opts.Vector,
		validator:  record.NewValidator(),
		scorer:     risk.NewScorer(opts.Config, opts.Logger),
		critic:     critic.NewController(opts.Config, opts.Logger),
		backoff:    opts.Backoff,
		cfg:        opts.Config,
		logger:     opts.Logger,
	}, nil
}

// Run drives the state from its current node until an absorbing node
// stops it. The state is checkpointed to the store after every node, so a
// crash mid-run resumes from the last completed node without replay.
//
// Run mutates s in place and leaves it matching the final checkpoint.
func (e *Engine) Run(ctx context.Context, s *State) error {
	node := s.CurrentNode
	if !node.Valid() {
		return fmt.Errorf("%w: unknown node %q", ledgerflow.ErrInvalidState, s.CurrentNode)
	}

	e.logger.Info("workflow run started",
		slog.String("document_id", s.DocumentID.String()),
		slog.String("node", string(node)),
	)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow: run %s: %w", s.DocumentID, err)
		}

		nodeErr := e.execute(ctx, s, node)

		// Advance CurrentNode before checkpointing so every persisted
		// snapshot names the node still to run. Reloading a mid-run
		// snapshot then continues without re-executing the completed
		// node; replaying critic would burn a retry, replaying
		// insert_graph would re-upsert.
		next := e.route(s, node, nodeErr)
		if next != nodeStop {
			s.CurrentNode = next
		}

		if err := s.CheckInvariants(e.cfg.MaxRetries); err != nil {
			return fmt.Errorf("workflow: after node %s: %w", node, err)
		}
		if err := e.checkpoint(ctx, s, node); err != nil {
			return err
		}

		if next == nodeStop {
			break
		}

		// Critic loops back into structuring; space the attempts out.
		if node == NodeCritic && next == NodeStructureRecord {
			if err := e.sleep(ctx, e.backoff.Delay(s.RetryCount)); err != nil {
				return fmt.Errorf("workflow: run %s: %w", s.DocumentID, err)
			}
		}

		node = next
	}

	e.logger.Info("workflow run stopped",
		slog.String("document_id", s.DocumentID.String()),
		slog.String("status", string(s.Status)),
		slog.String("risk_level", s.RiskLevel.String()),
		slog.Int("retry_count", s.RetryCount),
	)

	return nil
}

// Resume re-enters a quarantined workflow after human feedback has been
// applied to the state. Approval jumps straight to the graph insert since
// the reviewer has accepted the record as-is; corrections re-enter at
// validation so the amended record is checked again.
func (e *Engine) Resume(ctx context.Context, s *State) error {
	if s.Status != StatusQuarantined {
		return fmt.Errorf("%w: resume on status %q", ledgerflow.ErrNotQuarantined, s.Status)
	}
	if s.HumanFeedback == nil {
		return fmt.Errorf("%w: resume without feedback", ledgerflow.ErrInvalidState)
	}

	entry := NodeValidate
	if s.HumanFeedback.Approved {
		entry = NodeInsertGraph
	}

	s.Status = StatusProcessing
	s.Paused = false
	s.PauseReason = ""
	s.CurrentNode = entry

	e.logger.Info("workflow resumed",
		slog.String("document_id", s.DocumentID.String()),
		slog.Bool("approved", s.HumanFeedback.Approved),
		slog.String("entry", string(entry)),
	)

	return e.Run(ctx, s)
}

// execute runs one node function, folds its update and any error into the
// state, and returns the node error for routing.
func (e *Engine) execute(ctx context.Context, s *State, node Node) error {
	start := time.Now()
	upd, err := e.nodeFunc(node)(ctx, s)

	if err != nil {
		upd.AppendErrors = append(upd.AppendErrors, ErrorRecord{
			Node:  node,
			Error: err.Error(),
			At:    time.Now().UTC(),
		})
		e.logger.Error("node failed",
			slog.String("document_id", s.DocumentID.String()),
			slog.String("node", string(node)),
			slog.String("error", err.Error()),
		)
	} else {
		e.logger.Debug("node completed",
			slog.String("document_id", s.DocumentID.String()),
			slog.String("node", string(node)),
			slog.Duration("took", time.Since(start)),
		)
	}

	s.Apply(upd)
	return err
}

// nodeFunc maps a node to its implementation in nodes.go.
func (e *Engine) nodeFunc(n Node) func(context.Context, *State) (Update, error) {
	switch n {
	case NodeExtractText:
		return e.extractText
	case NodeStructureRecord:
		return e.structureRecord
	case NodeValidate:
		return e.validate
	case NodeComplianceAudit:
		return e.complianceAudit
	case NodeCritic:
		return e.runCritic
	case NodeQuarantine:
		return e.quarantine
	case NodeInsertGraph:
		return e.insertGraph
	case NodeEmbed:
		return e.embed
	case NodeFinalize:
		return e.finalize
	case NodeErrorHandler:
		return e.errorHandler
	}
	panic("workflow: no function for node " + string(n))
}

func (e *Engine) checkpoint(ctx context.Context, s *State, node Node) error {
	if err := e.store.SaveState(ctx, s); err != nil {
		return fmt.Errorf("workflow: checkpoint %s after node %s: %w", s.DocumentID, node, err)
	}
	return nil
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
