// Package pdf extracts plain text from PDF files.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/phrazzld/lector/internal/task"
)

// ErrNotPDF is returned for input that does not carry a PDF header.
var ErrNotPDF = errors.New("file is not a PDF")

var magic = []byte("%PDF-")

// IsPDF reports whether data starts with a PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Extractor implements task.TextExtractor page by page. Pages that fail to
// decode are skipped and logged.
type Extractor struct {
	logger *slog.Logger
}

var _ task.TextExtractor = (*Extractor)(nil)

// NewExtractor creates an Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger.With(slog.String("component", "pdf_extractor"))}
}

// Extract returns the text of every page, one page per line.
func (e *Extractor) Extract(ctx context.Context, data []byte) (text string, err error) {
	if !IsPDF(data) {
		return "", ErrNotPDF
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()
	fonts := make(map[string]*pdf.Font)

	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}

		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			e.logger.Warn("failed to extract text from page",
				slog.Int("page", i),
				slog.String("error", err.Error()))
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), nil
}
