package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/sof-events/constants"
	"github.com/joseph-ayodele/sof-events/internal/common"
	"github.com/joseph-ayodele/sof-events/internal/entity"
)

type ExtractJobRepository interface {
	Start(ctx context.Context, filename, format, contentHash string) (*entity.ExtractJob, error)
	FinishSuccess(ctx context.Context, jobID uuid.UUID, eventCount int) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.ExtractJob, error)
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExtractJobRepository(d *DB, log *slog.Logger) ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractJobRepo{db: d, log: log}
}

const jobColumns = `id, filename, format, content_hash, status, started_at, finished_at, event_count, error_message`

func (r *extractJobRepo) Start(ctx context.Context, filename, format, contentHash string) (*entity.ExtractJob, error) {
	job := &entity.ExtractJob{
		ID:          uuid.New(),
		Filename:    filename,
		Format:      format,
		ContentHash: contentHash,
		Status:      string(constants.JobStatusRunning),
		StartedAt:   time.Now().UTC(),
	}
	_, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`INSERT INTO extract_job (id, filename, format, content_hash, status, started_at, event_count)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`),
		job.ID.String(), job.Filename, job.Format, job.ContentHash, job.Status, job.StartedAt,
	)
	if err != nil {
		r.log.Error("extract_job start failed", "filename", filename, "err", err)
		return nil, fmt.Errorf("%w: insert extract_job: %v", common.ErrDatabase, err)
	}
	r.log.Info("extract_job started", "job_id", job.ID, "filename", filename, "format", format)
	return job, nil
}

func (r *extractJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, eventCount int) error {
	if err := r.finish(ctx, jobID, constants.JobStatusOK, eventCount, nil); err != nil {
		r.log.Error("extract_job finish(OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extract_job finished (OK)", "job_id", jobID, "events", eventCount)
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	if err := r.finish(ctx, jobID, constants.JobStatusFailed, 0, &message); err != nil {
		r.log.Error("extract_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Warn("extract_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *extractJobRepo) finish(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, eventCount int, message *string) error {
	var msg sql.NullString
	if message != nil {
		msg = sql.NullString{String: *message, Valid: true}
	}
	res, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`UPDATE extract_job SET status = ?, finished_at = ?, event_count = ?, error_message = ? WHERE id = ?`),
		string(status), time.Now().UTC(), eventCount, msg, jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: update extract_job: %v", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("extract_job %s: %w", jobID, common.ErrNotFound)
	}
	return nil
}

func (r *extractJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.rebind(
		`SELECT `+jobColumns+` FROM extract_job WHERE id = ?`), jobID.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("extract_job %s: %w", jobID, common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("extract_job get failed", "job_id", jobID, "err", err)
		return nil, fmt.Errorf("%w: select extract_job: %v", common.ErrDatabase, err)
	}
	return job, nil
}

func (r *extractJobRepo) ListRecent(ctx context.Context, limit int) ([]*entity.ExtractJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.SQL.QueryContext(ctx, r.db.rebind(
		`SELECT `+jobColumns+` FROM extract_job ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		r.log.Error("extract_job list failed", "err", err)
		return nil, fmt.Errorf("%w: list extract_job: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	out := make([]*entity.ExtractJob, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan extract_job: %v", common.ErrDatabase, err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate extract_job: %v", common.ErrDatabase, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (*entity.ExtractJob, error) {
	var (
		id       string
		job      entity.ExtractJob
		finished sql.NullTime
		msg      sql.NullString
	)
	if err := s.Scan(&id, &job.Filename, &job.Format, &job.ContentHash, &job.Status,
		&job.StartedAt, &finished, &job.EventCount, &msg); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad job id %q: %w", id, err)
	}
	job.ID = parsed
	job.StartedAt = job.StartedAt.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		job.FinishedAt = &t
	}
	if msg.Valid {
		job.ErrorMessage = &msg.String
	}
	return &job, nil
}
