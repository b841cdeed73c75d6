// Package pipeline runs one document through text extraction and the event
// engine, keeping an extract_job row and metrics in step.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/sof-events/constants"
	"github.com/joseph-ayodele/sof-events/internal/common"
	"github.com/joseph-ayodele/sof-events/internal/docs"
	"github.com/joseph-ayodele/sof-events/internal/events"
	"github.com/joseph-ayodele/sof-events/internal/metrics"
	"github.com/joseph-ayodele/sof-events/internal/repository"
)

// TextExtractor turns a document on disk into plain text.
type TextExtractor interface {
	Detect(path string) (string, error)
	Extract(ctx context.Context, path string) (docs.Result, error)
}

// Result describes one processed document.
type Result struct {
	JobID    uuid.UUID // uuid.Nil without a job store
	Filename string
	Format   string
	Pages    int
	Events   []events.Record
	Warnings []string
	Duration time.Duration
}

// Processor is safe for concurrent use.
type Processor struct {
	extractor TextExtractor
	jobs      repository.ExtractJobRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tempDir   string
	maxUpload int64
}

type Option func(*Processor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithTempDir sets where uploads are spooled; "" means os.TempDir().
func WithTempDir(dir string) Option {
	return func(p *Processor) { p.tempDir = dir }
}

// WithMaxUploadBytes caps ProcessUpload bodies; 0 disables the cap.
func WithMaxUploadBytes(n int64) Option {
	return func(p *Processor) { p.maxUpload = n }
}

// NewProcessor wires an extractor and an optional job store. jobs may be nil,
// in which case no bookkeeping happens.
func NewProcessor(extractor TextExtractor, jobs repository.ExtractJobRepository, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{extractor: extractor, jobs: jobs, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessFile extracts events from a document already on disk.
func (p *Processor) ProcessFile(ctx context.Context, path string) (Result, error) {
	if _, err := p.extractor.Detect(path); err != nil {
		return Result{Filename: filepath.Base(path)}, err
	}
	sum, err := hashFile(path)
	if err != nil {
		return Result{Filename: filepath.Base(path)}, fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}
	return p.process(ctx, path, filepath.Base(path), sum)
}

// ProcessUpload spools r to a temp file named after filename's extension,
// processes it, and removes the temp file on every path. Names other than
// .pdf or .docx are rejected before anything is written.
func (p *Processor) ProcessUpload(ctx context.Context, filename string, r io.Reader) (Result, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	ext := strings.ToLower(filepath.Ext(name))
	if !constants.AllowedExt(ext) {
		return Result{Filename: name}, docs.ErrUnsupportedFormat
	}
	logger := common.LoggerFromContext(ctx, p.logger)

	tmp, err := os.CreateTemp(p.tempDir, "sof-upload-*"+ext)
	if err != nil {
		return Result{Filename: name}, fmt.Errorf("%w: create temp file: %v", common.ErrInternal, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("processor.tempfile.remove_failed", "path", tmpPath, "err", err)
		}
	}()

	h := sha256.New()
	if err := spool(tmp, h, r, p.maxUpload); err != nil {
		_ = tmp.Close()
		return Result{Filename: name}, err
	}
	if err := tmp.Close(); err != nil {
		return Result{Filename: name}, fmt.Errorf("%w: close temp file: %v", common.ErrInternal, err)
	}
	logger.Debug("processor.upload.spooled", "filename", name, "path", tmpPath)

	return p.process(ctx, tmpPath, name, hex.EncodeToString(h.Sum(nil)))
}

func spool(dst io.Writer, h hash.Hash, src io.Reader, limit int64) error {
	w := io.MultiWriter(dst, h)
	if limit <= 0 {
		if _, err := io.Copy(w, src); err != nil {
			return fmt.Errorf("read upload: %w", err)
		}
		return nil
	}
	n, err := io.Copy(w, io.LimitReader(src, limit+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if n > limit {
		return fmt.Errorf("%w (limit %d bytes)", docs.ErrTooLarge, limit)
	}
	return nil
}

func (p *Processor) process(ctx context.Context, path, filename, contentHash string) (Result, error) {
	start := time.Now()
	logger := common.LoggerFromContext(ctx, p.logger)
	out := Result{Filename: filename}

	format, err := p.extractor.Detect(path)
	if err != nil {
		return out, err
	}
	out.Format = format

	if p.jobs != nil {
		job, err := p.jobs.Start(ctx, filename, format, contentHash)
		if err != nil {
			return out, err
		}
		out.JobID = job.ID
	}

	doc, err := p.extractor.Extract(ctx, path)
	out.Pages = doc.Pages
	out.Warnings = doc.Warnings
	if err != nil {
		out.Duration = time.Since(start)
		p.fail(ctx, logger, out, err)
		return out, err
	}

	out.Events = events.Extract(doc.Text)
	out.Duration = time.Since(start)

	if p.jobs != nil {
		if err := p.jobs.FinishSuccess(context.WithoutCancel(ctx), out.JobID, len(out.Events)); err != nil {
			logger.Warn("processor.job.finish_failed", "job_id", out.JobID, "err", err)
		}
	}
	p.metrics.ObserveDocument(format, string(constants.JobStatusOK), out.Duration)
	p.metrics.ObserveEvents(out.Events)

	logger.Info("processor.ok",
		"job_id", out.JobID,
		"filename", filename,
		"format", format,
		"method", doc.Method,
		"pages", doc.Pages,
		"chars", len(doc.Text),
		"events", len(out.Events),
		"warnings", len(doc.Warnings),
		"elapsed_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, out Result, cause error) {
	logger.Error("processor.extract.failed",
		"job_id", out.JobID,
		"filename", out.Filename,
		"format", out.Format,
		"err", cause,
	)
	p.metrics.ObserveDocument(out.Format, string(constants.JobStatusFailed), out.Duration)
	if p.jobs == nil {
		return
	}
	// Record the failure even when the caller's ctx is what failed.
	if err := p.jobs.FinishFailure(context.WithoutCancel(ctx), out.JobID, cause.Error()); err != nil {
		logger.Warn("processor.job.finish_failed", "job_id", out.JobID, "err", err)
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
