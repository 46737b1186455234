package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Hunselvm/genai/internal/domain"
	"github.com/Hunselvm/genai/internal/id"
	_ "github.com/lib/pq"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS automation_jobs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	current_step TEXT NOT NULL DEFAULT '',
	items JSONB NOT NULL,
	results JSONB NOT NULL,
	settings JSONB NOT NULL,
	completed_count INT NOT NULL DEFAULT 0,
	failed_count INT NOT NULL DEFAULT 0,
	last_updated TIMESTAMPTZ NOT NULL
);
`

// PostgresStore keeps job records in a shared database, for teams where
// several operators watch and resume each other's batches. Same contract as
// FileStore; the record is still one JSON-shaped row per job.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if _, err := db.ExecContext(ctx, jobSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure automation_jobs schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Create(mode string, items []domain.ProcessingItem, settings map[string]string) (*domain.AutomationJob, error) {
	job := &domain.AutomationJob{
		JobID:       id.New(),
		Mode:        mode,
		Items:       items,
		Results:     make(map[string]domain.ProcessingResult),
		Status:      domain.JobStatusPending,
		Settings:    settings,
		LastUpdated: time.Now().UTC(),
	}
	if err := s.Save(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) Save(job *domain.AutomationJob) error {
	itemsJSON, err := json.Marshal(job.Items)
	if err != nil {
		return fmt.Errorf("marshal job items: %w", err)
	}
	resultsJSON, err := json.Marshal(job.Results)
	if err != nil {
		return fmt.Errorf("marshal job results: %w", err)
	}
	settingsJSON, err := json.Marshal(job.Settings)
	if err != nil {
		return fmt.Errorf("marshal job settings: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO automation_jobs
			(id, mode, status, current_step, items, results, settings, completed_count, failed_count, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			items = EXCLUDED.items,
			results = EXCLUDED.results,
			settings = EXCLUDED.settings,
			completed_count = EXCLUDED.completed_count,
			failed_count = EXCLUDED.failed_count,
			last_updated = EXCLUDED.last_updated`,
		job.JobID,
		job.Mode,
		job.Status,
		job.CurrentStep,
		itemsJSON,
		resultsJSON,
		settingsJSON,
		job.CompletedCount,
		job.FailedCount,
		job.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *PostgresStore) Load(jobID string) (*domain.AutomationJob, error) {
	row := s.db.QueryRow(
		`SELECT id, mode, status, current_step, items, results, settings, completed_count, failed_count, last_updated
		 FROM automation_jobs WHERE id = $1`,
		jobID,
	)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *PostgresStore) ListResumable() ([]Summary, error) {
	rows, err := s.db.Query(
		`SELECT id, mode, status, current_step, items, results, settings, completed_count, failed_count, last_updated
		 FROM automation_jobs
		 WHERE status IN ($1, $2)
		 ORDER BY last_updated DESC`,
		domain.JobStatusRunning,
		domain.JobStatusPaused,
	)
	if err != nil {
		return nil, fmt.Errorf("query resumable jobs: %w", err)
	}
	defer rows.Close()

	var resumable []Summary
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			// A row with undecodable JSON payloads is skipped, matching the
			// file store's tolerance for corrupt records.
			continue
		}
		if job.IsResumable() {
			resumable = append(resumable, summarize(job))
		}
	}
	return resumable, rows.Err()
}

func (s *PostgresStore) Delete(jobID string) error {
	result, err := s.db.Exec(`DELETE FROM automation_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) CleanupOlderThan(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.db.Exec(`DELETE FROM automation_jobs WHERE last_updated < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.AutomationJob, error) {
	var (
		job          domain.AutomationJob
		itemsJSON    []byte
		resultsJSON  []byte
		settingsJSON []byte
	)
	if err := row.Scan(
		&job.JobID,
		&job.Mode,
		&job.Status,
		&job.CurrentStep,
		&itemsJSON,
		&resultsJSON,
		&settingsJSON,
		&job.CompletedCount,
		&job.FailedCount,
		&job.LastUpdated,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &job.Items); err != nil {
		return nil, fmt.Errorf("unmarshal job items: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &job.Results); err != nil {
		return nil, fmt.Errorf("unmarshal job results: %w", err)
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &job.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal job settings: %w", err)
		}
	}
	if job.Results == nil {
		job.Results = make(map[string]domain.ProcessingResult)
	}
	return &job, nil
}
