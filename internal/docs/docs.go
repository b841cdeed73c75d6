// Package docs turns uploaded Statement-of-Facts documents into plain text,
// one semantic line per line break, in human reading order.
//
// Supported formats:
//   - .pdf: page text via MuPDF (go-fitz), structure pre-checked with pdfcpu
//   - .docx: body paragraphs, then table rows rendered as "cell | cell"
package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/sof-events/constants"
	"github.com/joseph-ayodele/sof-events/internal/common"
)

var (
	// ErrUnsupportedFormat is returned for anything other than .pdf or .docx.
	ErrUnsupportedFormat = fmt.Errorf("%w: upload a .pdf or .docx", common.ErrInvalidInput)
	// ErrTooLarge is returned when a file exceeds Config.MaxFileSize.
	ErrTooLarge = fmt.Errorf("%w: document exceeds size limit", common.ErrTooLarge)
	// ErrDecode wraps every failure to read a document's content.
	ErrDecode = fmt.Errorf("%w: cannot decode document", common.ErrUnprocessable)
)

type Config struct {
	MaxFileSize int64 // bytes; 0 -> 50 MB
	MaxPages    int   // PDF pages to read; 0 = no limit
}

// Result is the text of one document plus how it was obtained.
type Result struct {
	Text     string
	Pages    int
	Format   string // constants.PDF | constants.DOCX
	Method   string // "pdf-text" | "docx-xml"
	Duration time.Duration
	Warnings []string
}

type Extractor struct {
	cfg    Config
	pdf    pageReader
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 50 << 20
	}
	return &Extractor{cfg: cfg, pdf: fitzReader{}, logger: logger}
}

// Detect returns the document format based on file extension.
func (e *Extractor) Detect(path string) (string, error) {
	format := constants.MapExtToFormat(filepath.Ext(path))
	if format == "" {
		return "", ErrUnsupportedFormat
	}
	return format, nil
}

// Extract picks a decoder based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	format, err := e.Detect(path)
	if err != nil {
		e.logger.Warn("unsupported document extension", "path", path, "ext", filepath.Ext(path))
		return Result{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{Format: format}, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return Result{Format: format}, fmt.Errorf("%w: %s is a directory", common.ErrInvalidInput, filepath.Base(path))
	}
	if info.Size() > e.cfg.MaxFileSize {
		return Result{Format: format}, fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, info.Size(), e.cfg.MaxFileSize)
	}

	e.logger.Debug("starting document extraction", "path", path, "format", format, "bytes", info.Size())

	var res Result
	switch format {
	case constants.PDF:
		res, err = e.extractPDF(ctx, path)
	default:
		res, err = extractDocx(path)
	}
	res.Format = format
	res.Duration = time.Since(start)
	if err != nil {
		if !errors.Is(err, ErrDecode) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", ErrDecode, err)
		}
		e.logger.Error("document extraction failed", "path", path, "format", format, "error", err)
		return res, err
	}

	e.logger.Debug("document extraction ok",
		"path", path,
		"format", format,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
