package document

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// OCR recognises the text of a single rendered PDF page.
type OCR interface {
	IsAvailable() bool
	RecognizePage(ctx context.Context, pdfPath string, page int) (string, error)
}

// OCRService renders a page with pdftoppm and reads it with tesseract.
type OCRService struct {
	tesseractPath string
	pdftoppmPath  string
	dpi           int

	once      sync.Once
	available bool
}

func NewOCRService() *OCRService {
	return &OCRService{
		tesseractPath: lookPath("tesseract"),
		pdftoppmPath:  lookPath("pdftoppm"),
		dpi:           300,
	}
}

func lookPath(name string) string {
	path, _ := exec.LookPath(name)
	if path == "" {
		return name
	}
	return path
}

// IsAvailable reports whether both binaries run. The probe happens once.
func (o *OCRService) IsAvailable() bool {
	o.once.Do(func() {
		o.available = exec.Command(o.tesseractPath, "--version").Run() == nil &&
			exec.Command(o.pdftoppmPath, "-v").Run() == nil
	})
	return o.available
}

func (o *OCRService) RecognizePage(ctx context.Context, pdfPath string, page int) (string, error) {
	dir, err := os.MkdirTemp("", "pdfchat-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	render := exec.CommandContext(ctx, o.pdftoppmPath,
		"-f", n, "-l", n, "-r", strconv.Itoa(o.dpi), "-png", "-singlefile", pdfPath, prefix)
	if out, err := render.CombinedOutput(); err != nil {
		return "", fmt.Errorf("render page %d: %w: %s", page, err, strings.TrimSpace(string(out)))
	}

	return o.ExtractText(ctx, prefix+".png")
}

func (o *OCRService) ExtractText(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, o.tesseractPath, imagePath, "stdout", "-l", "eng")

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}
