// Package janitor removes terminal workflow states once they age past the
// configured retention window. Quarantined and in-flight workflows are
// never touched; only completed and failed runs expire.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/workflow"
)

// cronParser supports standard 5-field cron and descriptors like "@every 1h".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Janitor sweeps expired terminal states on a cron schedule.
type Janitor struct {
	store     workflow.Store
	retention time.Duration
	schedule  cronlib.Schedule
	logger    *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) { j.logger = logger }
}

// New returns a janitor sweeping store on the given cron schedule.
// retention must be positive; a workflow is removed once it is terminal
// and has not been updated within the window.
func New(store workflow.Store, schedule string, retention time.Duration, opts ...Option) (*Janitor, error) {
	if store == nil {
		return nil, ledgerflow.ErrNoStore
	}
	if retention <= 0 {
		return nil, fmt.Errorf("janitor: retention must be positive, got %s", retention)
	}
	parsed, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("janitor: parse schedule %q: %w", schedule, err)
	}

	j := &Janitor{
		store:     store,
		retention: retention,
		schedule:  parsed,
		logger:    slog.Default(),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start launches the sweep loop.
func (j *Janitor) Start(_ context.Context) error {
	j.wg.Add(1)
	go j.loop()
	j.logger.Info("janitor started", slog.Duration("retention", j.retention))
	return nil
}

// Stop signals the loop to stop and waits for it to finish.
func (j *Janitor) Stop(_ context.Context) error {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info("janitor stopped")
	return nil
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-j.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if _, err := j.Sweep(context.Background()); err != nil {
				j.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep deletes terminal states older than the retention window and
// returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-j.retention)
	removed := 0

	for _, status := range []workflow.Status{workflow.StatusCompleted, workflow.StatusFailed} {
		states, err := j.store.ListStates(ctx, workflow.ListOpts{Status: status})
		if err != nil {
			return removed, fmt.Errorf("janitor: list %s states: %w", status, err)
		}
		for _, s := range states {
			if s.UpdatedAt.After(cutoff) {
				continue
			}
			if err := j.store.DeleteState(ctx, s.DocumentID); err != nil {
				return removed, fmt.Errorf("janitor: delete state %s: %w", s.DocumentID, err)
			}
			removed++
			j.logger.Debug("expired state removed",
				slog.String("document_id", s.DocumentID.String()),
				slog.String("status", string(s.Status)),
				slog.Time("updated_at", s.UpdatedAt))
		}
	}

	if removed > 0 {
		j.logger.Info("sweep complete", slog.Int("removed", removed))
	}
	return removed, nil
}
