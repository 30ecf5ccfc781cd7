// Package document turns uploaded policy files into plain text.
package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

var (
	// ErrNoText is returned for documents without an extractable text layer
	ErrNoText = errors.New("document contains no extractable text")

	// ErrNotUTF8 is returned for text uploads in another encoding
	ErrNotUTF8 = errors.New("text file is not valid UTF-8")
)

// DefaultMaxPages bounds how many PDF pages are read
const DefaultMaxPages = 50

// Reader implements port.DocumentReader. Markdown, text and CSV pass through;
// PDF text is extracted page by page with MuPDF.
type Reader struct {
	maxPages int
	logger   *zap.Logger
}

// NewReader creates a new Reader. maxPages <= 0 selects DefaultMaxPages.
func NewReader(maxPages int, logger *zap.Logger) *Reader {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{maxPages: maxPages, logger: logger}
}

// ReadText returns the text of content, choosing the decoder by file name
func (r *Reader) ReadText(ctx context.Context, name string, content []byte) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".pdf":
		return r.readPDF(ctx, name, content)
	case ".md", ".txt", ".csv":
		if !utf8.Valid(content) {
			return "", fmt.Errorf("%w: %s", ErrNotUTF8, name)
		}
		return string(content), nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", ext)
	}
}

func (r *Reader) readPDF(ctx context.Context, name string, content []byte) (string, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > r.maxPages {
		r.logger.Warn("PDF truncated",
			zap.String("name", name),
			zap.Int("pages", pages),
			zap.Int("max_pages", r.maxPages))
		pages = r.maxPages
	}

	texts := make([]string, 0, pages)
	for n := 0; n < pages; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", n+1, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}

	if len(texts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoText, name)
	}

	r.logger.Debug("PDF text extracted",
		zap.String("name", name),
		zap.Int("pages", pages))

	return strings.Join(texts, "\n\n"), nil
}

// Verify interface compliance
var _ port.DocumentReader = (*Reader)(nil)
