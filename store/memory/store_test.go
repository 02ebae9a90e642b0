package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/risk"
	"github.com/finshore/ledgerflow/workflow"
)

func newState(status workflow.Status, level risk.Level, paused bool) *workflow.State {
	s := workflow.NewState(id.NewDocumentID(), workflow.Document{Name: "test.pdf"})
	s.Status = status
	s.RiskLevel = level
	s.Paused = paused
	return s
}

func TestSaveAndGetState(t *testing.T) {
	ctx := context.Background()
	m := New()

	s := newState(workflow.StatusProcessing, risk.LevelLow, false)
	s.RetryCount = 2
	if err := m.SaveState(ctx, s); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	got, err := m.GetState(ctx, s.DocumentID)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if got.DocumentID != s.DocumentID || got.Status != s.Status || got.RetryCount != 2 {
		t.Errorf("round trip mismatch: got %+v", got)
	}

	// Mutating the returned copy must not leak into the store.
	got.Status = workflow.StatusFailed
	again, _ := m.GetState(ctx, s.DocumentID)
	if again.Status != workflow.StatusProcessing {
		t.Errorf("stored snapshot mutated through returned copy")
	}
}

func TestGetStateNotFound(t *testing.T) {
	m := New()
	_, err := m.GetState(context.Background(), id.NewDocumentID())
	if !errors.Is(err, ledgerflow.ErrWorkflowNotFound) {
		t.Errorf("GetState() error = %v, want ErrWorkflowNotFound", err)
	}
}

func TestSaveStateOverwrites(t *testing.T) {
	ctx := context.Background()
	m := New()

	s := newState(workflow.StatusProcessing, risk.LevelLow, false)
	if err := m.SaveState(ctx, s); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	s.Status = workflow.StatusQuarantined
	s.Paused = true
	if err := m.SaveState(ctx, s); err != nil {
		t.Fatalf("SaveState() second error = %v", err)
	}

	got, _ := m.GetState(ctx, s.DocumentID)
	if got.Status != workflow.StatusQuarantined || !got.Paused {
		t.Errorf("overwrite not applied: %+v", got)
	}
}

func TestListStatesFilters(t *testing.T) {
	ctx := context.Background()
	m := New()

	quarantined := newState(workflow.StatusQuarantined, risk.LevelHigh, true)
	completed := newState(workflow.StatusCompleted, risk.LevelLow, false)
	failed := newState(workflow.StatusFailed, risk.LevelCritical, false)
	for _, s := range []*workflow.State{quarantined, completed, failed} {
		if err := m.SaveState(ctx, s); err != nil {
			t.Fatalf("SaveState() error = %v", err)
		}
	}

	byStatus, err := m.ListStates(ctx, workflow.ListOpts{Status: workflow.StatusQuarantined})
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].DocumentID != quarantined.DocumentID {
		t.Errorf("status filter returned %d states", len(byStatus))
	}

	paused := true
	byPaused, err := m.ListStates(ctx, workflow.ListOpts{Paused: &paused})
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(byPaused) != 1 || byPaused[0].DocumentID != quarantined.DocumentID {
		t.Errorf("paused filter returned %d states", len(byPaused))
	}

	byRisk, err := m.ListStates(ctx, workflow.ListOpts{RiskLevel: risk.LevelCritical})
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(byRisk) != 1 || byRisk[0].DocumentID != failed.DocumentID {
		t.Errorf("risk filter returned %d states", len(byRisk))
	}

	all, err := m.ListStates(ctx, workflow.ListOpts{})
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered list returned %d states, want 3", len(all))
	}
}

func TestListStatesOrderAndPagination(t *testing.T) {
	ctx := context.Background()
	m := New()

	var ids []id.DocumentID
	for i := 0; i < 3; i++ {
		s := newState(workflow.StatusCompleted, risk.LevelLow, false)
		s.UpdatedAt = time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC)
		ids = append(ids, s.DocumentID)
		if err := m.SaveState(ctx, s); err != nil {
			t.Fatalf("SaveState() error = %v", err)
		}
	}

	out, err := m.ListStates(ctx, workflow.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Limit 2 returned %d states", len(out))
	}
	// Most recently updated first.
	if out[0].DocumentID != ids[2] || out[1].DocumentID != ids[1] {
		t.Errorf("wrong order: %v then %v", out[0].DocumentID, out[1].DocumentID)
	}

	rest, err := m.ListStates(ctx, workflow.ListOpts{Offset: 2})
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(rest) != 1 || rest[0].DocumentID != ids[0] {
		t.Errorf("Offset 2 returned %d states", len(rest))
	}

	none, err := m.ListStates(ctx, workflow.ListOpts{Offset: 10})
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Offset past end returned %d states", len(none))
	}
}

func TestDeleteState(t *testing.T) {
	ctx := context.Background()
	m := New()

	s := newState(workflow.StatusCompleted, risk.LevelLow, false)
	if err := m.SaveState(ctx, s); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	if err := m.DeleteState(ctx, s.DocumentID); err != nil {
		t.Fatalf("DeleteState() error = %v", err)
	}
	if _, err := m.GetState(ctx, s.DocumentID); !errors.Is(err, ledgerflow.ErrWorkflowNotFound) {
		t.Errorf("GetState() after delete error = %v, want ErrWorkflowNotFound", err)
	}

	// Deleting a missing state is not an error.
	if err := m.DeleteState(ctx, id.NewDocumentID()); err != nil {
		t.Errorf("DeleteState(missing) error = %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	m := New()
	if err := m.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := m.Ping(ctx); !errors.Is(err, ledgerflow.ErrStoreClosed) {
		t.Errorf("Ping() after close error = %v, want ErrStoreClosed", err)
	}
	if err := m.SaveState(ctx, newState(workflow.StatusProcessing, risk.LevelLow, false)); !errors.Is(err, ledgerflow.ErrStoreClosed) {
		t.Errorf("SaveState() after close error = %v, want ErrStoreClosed", err)
	}
}
