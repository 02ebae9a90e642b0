package extract_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/finshore/ledgerflow/extract"
	"github.com/finshore/ledgerflow/workflow"
)

func newExtractor() *extract.FileExtractor {
	return extract.NewFileExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtractInlineText(t *testing.T) {
	e := newExtractor()

	text, err := e.ExtractText(context.Background(), workflow.Document{
		Name:    "invoice.txt",
		Content: []byte("  INVOICE INV-2025-100\nTotal: $1,500.00\n"),
	})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(text, "INV-2025-100") {
		t.Errorf("text missing invoice number: %q", text)
	}
	if strings.HasPrefix(text, " ") || strings.HasSuffix(text, "\n") {
		t.Errorf("text not trimmed: %q", text)
	}
}

func TestExtractFromPath(t *testing.T) {
	e := newExtractor()

	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("contractor: ACME Builders"), 0o600); err != nil {
		t.Fatal(err)
	}

	text, err := e.ExtractText(context.Background(), workflow.Document{Name: "doc.txt", Path: path})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "contractor: ACME Builders" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractInlineContentWinsOverPath(t *testing.T) {
	e := newExtractor()

	text, err := e.ExtractText(context.Background(), workflow.Document{
		Name:    "doc.txt",
		Path:    filepath.Join(t.TempDir(), "does-not-exist.txt"),
		Content: []byte("inline wins"),
	})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "inline wins" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractErrors(t *testing.T) {
	e := newExtractor()
	ctx := context.Background()

	tests := []struct {
		name string
		doc  workflow.Document
	}{
		{"no content or path", workflow.Document{Name: "empty"}},
		{"missing file", workflow.Document{Name: "gone", Path: filepath.Join(t.TempDir(), "gone.txt")}},
		{"empty content", workflow.Document{Name: "blank", Content: []byte{}}},
		{"whitespace only", workflow.Document{Name: "ws", Content: []byte("   \n\t ")}},
		{"not utf-8", workflow.Document{Name: "bin", Content: []byte{0xff, 0xfe, 0x00, 0x01}}},
		{"truncated pdf", workflow.Document{Name: "bad.pdf", Content: []byte("%PDF-1.7 garbage")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.ExtractText(ctx, tt.doc); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestExtractCancelledContext(t *testing.T) {
	e := newExtractor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ExtractText(ctx, workflow.Document{Name: "doc", Content: []byte("text")})
	if err == nil {
		t.Fatal("expected context error")
	}
}
