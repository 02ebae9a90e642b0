package janitor_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/janitor"
	"github.com/finshore/ledgerflow/store/memory"
	"github.com/finshore/ledgerflow/workflow"
)

func newJanitor(t *testing.T, store workflow.Store, retention time.Duration) *janitor.Janitor {
	t.Helper()
	j, err := janitor.New(store, "@every 1h", retention,
		janitor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j
}

func seedState(t *testing.T, store workflow.Store, status workflow.Status, age time.Duration) id.DocumentID {
	t.Helper()
	docID := id.NewDocumentID()
	s := workflow.NewState(docID, workflow.Document{Name: "doc"})
	s.Status = status
	s.UpdatedAt = time.Now().UTC().Add(-age)
	if err := store.SaveState(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	return docID
}

func TestSweepRemovesExpiredTerminalStates(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	expiredCompleted := seedState(t, store, workflow.StatusCompleted, 48*time.Hour)
	expiredFailed := seedState(t, store, workflow.StatusFailed, 48*time.Hour)
	freshCompleted := seedState(t, store, workflow.StatusCompleted, time.Minute)
	oldQuarantined := seedState(t, store, workflow.StatusQuarantined, 48*time.Hour)
	oldProcessing := seedState(t, store, workflow.StatusProcessing, 48*time.Hour)

	j := newJanitor(t, store, 24*time.Hour)
	removed, err := j.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	for _, docID := range []id.DocumentID{expiredCompleted, expiredFailed} {
		if _, err := store.GetState(ctx, docID); err == nil {
			t.Errorf("state %s should have been removed", docID)
		}
	}
	for _, docID := range []id.DocumentID{freshCompleted, oldQuarantined, oldProcessing} {
		if _, err := store.GetState(ctx, docID); err != nil {
			t.Errorf("state %s should have survived: %v", docID, err)
		}
	}
}

func TestSweepEmptyStore(t *testing.T) {
	j := newJanitor(t, memory.New(), time.Hour)
	removed, err := j.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestNewValidation(t *testing.T) {
	store := memory.New()

	if _, err := janitor.New(nil, "@every 1h", time.Hour); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := janitor.New(store, "@every 1h", 0); err == nil {
		t.Error("expected error for zero retention")
	}
	if _, err := janitor.New(store, "not a schedule", time.Hour); err == nil {
		t.Error("expected error for bad schedule")
	}
}

func TestStartStop(t *testing.T) {
	j := newJanitor(t, memory.New(), time.Hour)
	ctx := context.Background()
	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := j.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
