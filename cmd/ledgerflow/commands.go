package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/compliance"
	"github.com/finshore/ledgerflow/extract"
	"github.com/finshore/ledgerflow/graph"
	graphneo4j "github.com/finshore/ledgerflow/graph/neo4j"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/janitor"
	"github.com/finshore/ledgerflow/manager"
	"github.com/finshore/ledgerflow/store/memory"
	"github.com/finshore/ledgerflow/store/postgres"
	redisstore "github.com/finshore/ledgerflow/store/redis"
	"github.com/finshore/ledgerflow/structure"
	"github.com/finshore/ledgerflow/vector"
	"github.com/finshore/ledgerflow/workflow"
)

// rootOpts holds the global flags shared by all subcommands.
type rootOpts struct {
	storeBackend string
	postgresDSN  string
	redisAddr    string
	neo4jURI     string
	neo4jUser    string
	neo4jPass    string
	groqModel    string
	maxRetries   int
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}

	cmd := &cobra.Command{
		Use:           "ledgerflow",
		Short:         "Process financial documents through the compliance pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.storeBackend, "store", "memory", "state store backend: memory, postgres, redis")
	flags.StringVar(&opts.postgresDSN, "postgres-dsn", os.Getenv("LEDGERFLOW_POSTGRES_DSN"), "postgres connection string")
	flags.StringVar(&opts.redisAddr, "redis-addr", "localhost:6379", "redis address")
	flags.StringVar(&opts.neo4jURI, "neo4j-uri", os.Getenv("LEDGERFLOW_NEO4J_URI"), "neo4j URI; empty uses the in-memory graph")
	flags.StringVar(&opts.neo4jUser, "neo4j-user", "neo4j", "neo4j username")
	flags.StringVar(&opts.neo4jPass, "neo4j-pass", os.Getenv("LEDGERFLOW_NEO4J_PASSWORD"), "neo4j password")
	flags.StringVar(&opts.groqModel, "model", "", "override the extraction model")
	flags.IntVar(&opts.maxRetries, "max-retries", 3, "structuring retry budget before quarantine")
	flags.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	cmd.AddCommand(
		newSubmitCmd(opts),
		newStatusCmd(opts),
		newQuarantinedCmd(opts),
		newResumeCmd(opts),
		newSweepCmd(opts),
	)
	return cmd
}

func (o *rootOpts) logger() *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *rootOpts) openStore(ctx context.Context, logger *slog.Logger) (workflow.Store, error) {
	switch o.storeBackend {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if o.postgresDSN == "" {
			return nil, fmt.Errorf("postgres store requires --postgres-dsn")
		}
		store, err := postgres.New(ctx, o.postgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: o.redisAddr})
		return redisstore.New(client, redisstore.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", o.storeBackend)
	}
}

// buildManager assembles the full pipeline from the global flags. The
// returned cleanup closes whatever backends were opened.
func (o *rootOpts) buildManager(ctx context.Context) (*manager.Manager, func(), error) {
	logger := o.logger()

	store, err := o.openStore(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = store.Close() }

	var graphStore workflow.GraphStore
	var agreements compliance.AgreementStore
	if o.neo4jURI != "" {
		neo, err := graphneo4j.New(ctx, o.neo4jURI, o.neo4jUser, o.neo4jPass, graphneo4j.WithLogger(logger))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := neo.Migrate(ctx); err != nil {
			neo.Close(ctx)
			cleanup()
			return nil, nil, err
		}
		prev := cleanup
		cleanup = func() { _ = neo.Close(context.Background()); prev() }
		graphStore, agreements = neo, neo
	} else {
		mem := graph.New()
		graphStore, agreements = mem, mem
	}

	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		cleanup()
		return nil, nil, fmt.Errorf("GROQ_API_KEY is not set")
	}
	var groqOpts []structure.GroqOption
	if o.groqModel != "" {
		groqOpts = append(groqOpts, structure.WithModel(o.groqModel))
	}
	groqOpts = append(groqOpts, structure.WithLogger(logger))
	structurer, err := structure.NewGroqStructurer(apiKey, groqOpts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	cfg := ledgerflow.DefaultConfig()
	cfg.MaxRetries = o.maxRetries

	engine, err := workflow.NewEngine(workflow.EngineOptions{
		Store:      store,
		Extractor:  extract.NewFileExtractor(logger),
		Structurer: structurer,
		Auditor:    compliance.NewAuditor(agreements, cfg, logger),
		Graph:      graphStore,
		Vector:     vector.NewMemory(),
		Config:     cfg,
		Logger:     logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	mgr, err := manager.New(engine, store, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return mgr, cleanup, nil
}

func newSubmitCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <file>...",
		Short: "Submit documents for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr, cleanup, err := opts.buildManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			docs := make([]workflow.Document, 0, len(args))
			for _, path := range args {
				docs = append(docs, workflow.Document{
					Name: filepath.Base(path),
					Path: path,
				})
			}

			states, err := mgr.SubmitBatch(ctx, docs)
			for i, s := range states {
				if s == nil {
					color.Red("✗ %s: submission failed", docs[i].Name)
					continue
				}
				printState(s)
			}
			return err
		},
	}
}

func newStatusCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show the state of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID, err := id.ParseDocumentID(args[0])
			if err != nil {
				return err
			}
			mgr, cleanup, err := opts.buildManager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := mgr.Status(cmd.Context(), docID)
			if err != nil {
				return err
			}
			printState(s)
			return nil
		},
	}
}

func newQuarantinedCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "quarantined",
		Short: "List workflows awaiting human review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, cleanup, err := opts.buildManager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			states, err := mgr.ListQuarantined(cmd.Context())
			if err != nil {
				return err
			}
			if len(states) == 0 {
				color.Green("no workflows in quarantine")
				return nil
			}
			for _, s := range states {
				printState(s)
			}
			return nil
		},
	}
}

func newResumeCmd(opts *rootOpts) *cobra.Command {
	var approve bool
	var notes string
	var correctionsFile string

	cmd := &cobra.Command{
		Use:   "resume <document-id>",
		Short: "Resume a quarantined workflow with reviewer feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !approve && correctionsFile == "" {
				return fmt.Errorf("resume requires --approve or --corrections")
			}
			docID, err := id.ParseDocumentID(args[0])
			if err != nil {
				return err
			}

			fb := workflow.HumanFeedback{Approved: approve, Notes: notes}
			if correctionsFile != "" {
				data, err := os.ReadFile(correctionsFile)
				if err != nil {
					return fmt.Errorf("read corrections: %w", err)
				}
				var corrections workflow.Corrections
				if err := json.Unmarshal(data, &corrections); err != nil {
					return fmt.Errorf("parse corrections: %w", err)
				}
				fb.Corrections = &corrections
			}

			mgr, cleanup, err := opts.buildManager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := mgr.Resume(cmd.Context(), docID, fb)
			if err != nil {
				return err
			}
			printState(s)
			return nil
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "accept the record as-is")
	cmd.Flags().StringVar(&notes, "notes", "", "reviewer notes for the audit trail")
	cmd.Flags().StringVar(&correctionsFile, "corrections", "", "JSON file with record corrections")
	return cmd
}

func newSweepCmd(opts *rootOpts) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete terminal workflow states older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := opts.logger()
			store, err := opts.openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			j, err := janitor.New(store, "@every 1h", retention, janitor.WithLogger(logger))
			if err != nil {
				return err
			}
			removed, err := j.Sweep(ctx)
			if err != nil {
				return err
			}
			color.Green("✓ removed %d expired workflow states", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 30*24*time.Hour, "how long terminal states are kept")
	return cmd
}

func printState(s *workflow.State) {
	line := fmt.Sprintf("%s  %s  status=%s risk=%s retries=%d",
		s.DocumentID, s.DocumentName, s.Status, s.RiskLevel, s.RetryCount)
	switch s.Status {
	case workflow.StatusCompleted:
		color.Green("✓ %s", line)
	case workflow.StatusQuarantined:
		color.Yellow("⚠ %s", line)
	case workflow.StatusFailed:
		color.Red("✗ %s", line)
	default:
		color.White("  %s", line)
	}

	if s.PauseReason != "" {
		color.Yellow("  reason: %s", s.PauseReason)
	}
	if s.Report != nil {
		color.White("  anomalies: %d structural, %d compliance; graph written: %t; elapsed: %s",
			s.Report.StructuralCount, s.Report.ComplianceCount, s.Report.GraphWritten, s.Report.Elapsed.Round(time.Millisecond))
	}
	for _, e := range s.ErrorHistory {
		color.Red("  error at %s: %s", e.Node, e.Error)
	}
}
