package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/nikhilbhutani/pdfchat/pkg/textextract"
)

// Page is the final text of one page, ready for chunking.
type Page struct {
	Number int
	Text   string
}

type TextExtractor interface {
	Extract(ctx context.Context, data []byte) ([]Page, error)
}

type pageReader func(data []byte) ([]textextract.Page, error)

type extractor struct {
	read        pageReader
	ocr         OCR
	ocrMinChars int
}

// NewTextExtractor returns an extractor that appends table rows to each
// page and falls back to OCR when a page yields fewer than ocrMinChars
// characters.
func NewTextExtractor(ocr OCR, ocrMinChars int) TextExtractor {
	return &extractor{
		read:        textextract.ExtractPDF,
		ocr:         ocr,
		ocrMinChars: ocrMinChars,
	}
}

func (e *extractor) Extract(ctx context.Context, data []byte) ([]Page, error) {
	raw, err := e.read(data)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	var (
		pdfPath string
		cleanup = func() {}
	)
	defer func() { cleanup() }()

	pages := make([]Page, 0, len(raw))
	for _, rp := range raw {
		text := rp.WithTables()

		if e.needsOCR(text) {
			if pdfPath == "" {
				pdfPath, cleanup, err = writeTemp(data)
				if err != nil {
					slog.Warn("ocr skipped", "page", rp.Number, "error", err)
				}
			}
			if pdfPath != "" {
				if ocrText, err := e.ocr.RecognizePage(ctx, pdfPath, rp.Number); err != nil {
					slog.Warn("ocr failed", "page", rp.Number, "error", err)
				} else {
					text = ocrText
				}
			}
		}

		pages = append(pages, Page{Number: rp.Number, Text: text})
	}
	return pages, nil
}

func (e *extractor) needsOCR(text string) bool {
	if e.ocr == nil {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)) < e.ocrMinChars && e.ocr.IsAvailable()
}

func writeTemp(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "pdfchat-*.pdf")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp pdf: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write temp pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp pdf: %w", err)
	}
	return f.Name(), cleanup, nil
}
