// Package extract reads raw documents and produces the text fed into
// structuring. PDF handling is built on pdfcpu; anything else is treated
// as plain UTF-8 text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/finshore/ledgerflow/workflow"
)

// pdfMagic is the header every PDF file starts with.
const pdfMagic = "%PDF-"

// FileExtractor implements workflow.Extractor for documents supplied either
// inline (Document.Content) or by path (Document.Path).
type FileExtractor struct {
	logger *slog.Logger
}

var _ workflow.Extractor = (*FileExtractor)(nil)

// NewFileExtractor returns an extractor logging through logger. A nil
// logger falls back to slog.Default.
func NewFileExtractor(logger *slog.Logger) *FileExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileExtractor{logger: logger}
}

// ExtractText returns the text content of doc. Inline content wins over
// the path. PDFs are detected by header regardless of the declared type.
func (e *FileExtractor) ExtractText(ctx context.Context, doc workflow.Document) (string, error) {
	data := doc.Content
	if len(data) == 0 {
		if doc.Path == "" {
			return "", fmt.Errorf("extract: document %q has no content and no path", doc.Name)
		}
		var err error
		data, err = os.ReadFile(doc.Path)
		if err != nil {
			return "", fmt.Errorf("extract: read %q: %w", doc.Path, err)
		}
	}
	if len(data) == 0 {
		return "", fmt.Errorf("extract: document %q is empty", doc.Name)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if isPDF(data) {
		text, err := e.extractPDF(doc, data)
		if err != nil {
			return "", err
		}
		e.logger.Debug("extracted pdf text",
			slog.String("document", doc.Name),
			slog.Int("bytes", len(text)))
		return text, nil
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("extract: document %q is neither a PDF nor valid UTF-8 text", doc.Name)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("extract: document %q contains no text", doc.Name)
	}
	return text, nil
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte(pdfMagic))
}

// extractPDF validates the file and concatenates the content of every page
// in order. Extraction happens through a scratch directory because pdfcpu
// writes one output file per page.
func (e *FileExtractor) extractPDF(doc workflow.Document, data []byte) (string, error) {
	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return "", fmt.Errorf("extract: unreadable pdf %q: %w", doc.Name, err)
	}
	if pages == 0 {
		return "", fmt.Errorf("extract: pdf %q has no pages", doc.Name)
	}

	tmp, err := os.MkdirTemp("", "ledgerflow-extract-*")
	if err != nil {
		return "", fmt.Errorf("extract: scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	in := filepath.Join(tmp, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", fmt.Errorf("extract: stage pdf: %w", err)
	}
	outDir := filepath.Join(tmp, "out")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return "", fmt.Errorf("extract: scratch dir: %w", err)
	}

	if err := api.ExtractContentFile(in, outDir, nil, nil); err != nil {
		return "", fmt.Errorf("extract: pdf content %q: %w", doc.Name, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("extract: read scratch dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	// Page output files sort by name in page order.
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			return "", fmt.Errorf("extract: read page content: %w", err)
		}
		b.Write(content)
		b.WriteByte('\n')
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("extract: pdf %q yielded no text", doc.Name)
	}
	return text, nil
}
