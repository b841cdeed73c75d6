package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/sof-events/internal/common"
	"github.com/joseph-ayodele/sof-events/internal/export"
	"github.com/joseph-ayodele/sof-events/internal/metrics"
	"github.com/joseph-ayodele/sof-events/internal/pipeline"
	"github.com/joseph-ayodele/sof-events/internal/repository"
)

// Uploader is satisfied by *pipeline.Processor.
type Uploader interface {
	ProcessUpload(ctx context.Context, filename string, r io.Reader) (pipeline.Result, error)
}

// Pinger is satisfied by *repository.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPConfig struct {
	CORSOrigins    []string
	MaxUploadBytes int64
	ProcessTimeout time.Duration
}

// multipartSlack covers boundaries and part headers on top of the file itself.
const multipartSlack = 1 << 20

// HTTPHandler serves the REST surface. jobs, db and metrics may be nil.
type HTTPHandler struct {
	cfg     HTTPConfig
	proc    Uploader
	jobs    repository.ExtractJobRepository
	db      Pinger
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHTTPHandler(cfg HTTPConfig, proc Uploader, jobs repository.ExtractJobRepository, db Pinger, m *metrics.Metrics, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	return &HTTPHandler{cfg: cfg, proc: proc, jobs: jobs, db: db, metrics: m, logger: logger}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Job-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", h.root)
	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Post("/extract", h.extract(export.FormatJSON))
	r.Post("/extract/csv", h.extract(export.FormatCSV))
	r.Post("/extract/xlsx", h.extract(export.FormatXLSX))

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Get("/{id}", h.getJob)
	})
	return r
}

// requestLogger attaches a request-scoped logger and logs one line per request.
func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := chimiddleware.GetReqID(r.Context())
		logger := h.logger.With("request_id", reqID)
		ctx := common.WithLogger(common.WithRequestID(r.Context(), reqID), logger)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"remote", r.RemoteAddr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *HTTPHandler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "SoF Extractor API running"})
}

func (h *HTTPHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "detail": "database unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) extract(format export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := common.LoggerFromContext(r.Context(), h.logger)
		if h.cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+multipartSlack)
		}

		part, err := filePart(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		defer part.Close()

		ctx := r.Context()
		if h.cfg.ProcessTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = common.WithTimeout(ctx, h.cfg.ProcessTimeout)
			defer cancel()
		}

		res, err := h.proc.ProcessUpload(ctx, part.FileName(), part)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				err = fmt.Errorf("%w: request body over %d bytes", common.ErrTooLarge, mbe.Limit)
			}
			h.writeError(w, r, err)
			return
		}
		if res.JobID != uuid.Nil {
			w.Header().Set("X-Job-ID", res.JobID.String())
		}

		if format == export.FormatJSON {
			writeJSON(w, http.StatusOK, export.NewPayload(res.Events))
			return
		}

		var buf bytes.Buffer
		if err := export.Write(&buf, format, res.Events); err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", format.Filename()))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			logger.Warn("http.extract.write_failed", "format", format, "err", err)
		}
	}
}

// filePart returns the multipart part named "file" without buffering the
// whole form.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expected multipart/form-data with a file field", common.ErrInvalidInput)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing file field", common.ErrInvalidInput)
		}
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, fmt.Errorf("%w: request body over %d bytes", common.ErrTooLarge, mbe.Limit)
			}
			return nil, fmt.Errorf("%w: malformed multipart body: %v", common.ErrInvalidInput, err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
		_ = part.Close()
	}
}

func (h *HTTPHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeError(w, r, fmt.Errorf("%w: job store not configured", common.ErrUnavailable))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		v := common.NewValidator().Check(err == nil && n > 0 && n <= 500, "limit", raw, "must be an integer between 1 and 500")
		if err := v.Error(); err != nil {
			h.writeError(w, r, err)
			return
		}
		limit = n
	}
	jobs, err := h.jobs.ListRecent(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(jobs), "jobs": jobs})
}

func (h *HTTPHandler) getJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeError(w, r, fmt.Errorf("%w: job store not configured", common.ErrUnavailable))
		return
	}
	id, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := common.HTTPStatus(err)
	logger := common.LoggerFromContext(r.Context(), h.logger)
	if code >= http.StatusInternalServerError {
		logger.Error("http.error", "path", r.URL.Path, "status", code, "err", err)
	} else {
		logger.Warn("http.error", "path", r.URL.Path, "status", code, "err", err)
	}
	detail := err.Error()
	if code == http.StatusInternalServerError {
		detail = "internal error"
	}
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
