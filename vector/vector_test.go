package vector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/vector"
)

func TestMemoryIndexAndGet(t *testing.T) {
	m := vector.NewMemory()
	ctx := context.Background()
	docID := id.NewDocumentID()

	meta := map[string]string{"number": "INV-1", "risk_level": "low"}
	if err := m.Index(ctx, docID, "invoice text", meta); err != nil {
		t.Fatalf("Index: %v", err)
	}

	entry, err := m.Get(docID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Text != "invoice text" {
		t.Errorf("Text = %q", entry.Text)
	}
	if entry.Meta["number"] != "INV-1" {
		t.Errorf("Meta = %v", entry.Meta)
	}

	// The stored copy must not alias the caller's map.
	meta["number"] = "mutated"
	entry, _ = m.Get(docID)
	if entry.Meta["number"] != "INV-1" {
		t.Error("stored metadata aliases caller map")
	}
}

func TestMemoryReindexReplaces(t *testing.T) {
	m := vector.NewMemory()
	ctx := context.Background()
	docID := id.NewDocumentID()

	if err := m.Index(ctx, docID, "first", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Index(ctx, docID, "second", nil); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
	entry, err := m.Get(docID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Text != "second" {
		t.Errorf("Text = %q, want second", entry.Text)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	m := vector.NewMemory()
	if _, err := m.Get(id.NewDocumentID()); !errors.Is(err, ledgerflow.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestMemoryIndexValidation(t *testing.T) {
	m := vector.NewMemory()
	ctx := context.Background()

	if err := m.Index(ctx, id.Nil, "text", nil); err == nil {
		t.Error("expected error for nil document id")
	}
	if err := m.Index(ctx, id.NewDocumentID(), "", nil); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestNoop(t *testing.T) {
	var n vector.Noop
	if err := n.Index(context.Background(), id.Nil, "", nil); err != nil {
		t.Fatalf("Noop.Index: %v", err)
	}
}
