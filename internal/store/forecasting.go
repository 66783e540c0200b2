package store

import (
	"context"
	"fmt"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ForecastingJobStore struct {
	db *pgxpool.Pool
}

func NewForecastingJobStore(db *pgxpool.Pool) *ForecastingJobStore {
	return &ForecastingJobStore{db: db}
}

const jobColumns = `id, sensor_id, asset_id, horizon, start, "end", model_search_term, status, in_progress_since, error, created_at`

func (s *ForecastingJobStore) Create(ctx context.Context, jobs []domain.ForecastingJob) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range jobs {
		j := &jobs[i]
		if j.Status == "" {
			j.Status = domain.JobPending
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO forecasting_jobs (sensor_id, asset_id, horizon, start, "end", model_search_term, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at`,
			j.SensorID, j.AssetID, j.Horizon, j.Start, j.End, j.ModelSearchTerm, string(j.Status),
		).Scan(&j.ID, &j.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert forecasting job: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ClaimPending locks the oldest pending jobs, skipping jobs claimed by other
// workers, and marks them in progress.
func (s *ForecastingJobStore) ClaimPending(ctx context.Context, limit int) ([]domain.ForecastingJob, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE forecasting_jobs SET status = 'in_progress', in_progress_since = now()
		 WHERE id IN (
		     SELECT id FROM forecasting_jobs
		     WHERE status = 'pending'
		     ORDER BY created_at, id
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim forecasting jobs: %w", err)
	}
	return scanJobs(rows)
}

func (s *ForecastingJobStore) MarkFinished(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, domain.JobFinished, "")
}

func (s *ForecastingJobStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.setStatus(ctx, id, domain.JobFailed, reason)
}

func (s *ForecastingJobStore) setStatus(ctx context.Context, id int64, status domain.ForecastingJobStatus, reason string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE forecasting_jobs SET status = $2, error = $3 WHERE id = $1`,
		id, string(status), reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ForecastingJobStore) ListBySensor(ctx context.Context, sensorID int64) ([]domain.ForecastingJob, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM forecasting_jobs WHERE sensor_id = $1 ORDER BY created_at, id`,
		sensorID,
	)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

func scanJobs(rows pgx.Rows) ([]domain.ForecastingJob, error) {
	defer rows.Close()

	var jobs []domain.ForecastingJob
	for rows.Next() {
		var j domain.ForecastingJob
		if err := rows.Scan(&j.ID, &j.SensorID, &j.AssetID, &j.Horizon, &j.Start, &j.End,
			&j.ModelSearchTerm, &j.Status, &j.InProgressSince, &j.Error, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan forecasting job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
