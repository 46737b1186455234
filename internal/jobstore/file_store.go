package jobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Hunselvm/genai/internal/domain"
	"github.com/Hunselvm/genai/internal/id"
)

// FileStore keeps one JSON record per job in a local directory. It is the
// default backend: a single operator resuming their own batches needs
// nothing more than a directory that survives the process.
type FileStore struct {
	dir string
	now func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("job directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) Create(mode string, items []domain.ProcessingItem, settings map[string]string) (*domain.AutomationJob, error) {
	job := &domain.AutomationJob{
		JobID:       id.New(),
		Mode:        mode,
		Items:       items,
		Results:     make(map[string]domain.ProcessingResult),
		Status:      domain.JobStatusPending,
		Settings:    settings,
		LastUpdated: s.now().UTC(),
	}
	if err := s.Save(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Save overwrites the job's record atomically (temp file + rename), so a
// crash mid-write leaves either the old record or the new one, never a
// truncated mix.
func (s *FileStore) Save(job *domain.AutomationJob) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}
	data = append(data, '\n')

	path := s.path(job.JobID)
	tmp, err := os.CreateTemp(s.dir, ".job-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for job %s: %w", job.JobID, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write job %s: %w", job.JobID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file for job %s: %w", job.JobID, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename job record %s: %w", job.JobID, err)
	}
	return nil
}

func (s *FileStore) Load(jobID string) (*domain.AutomationJob, error) {
	data, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("read job %s: %w", jobID, err)
	}

	var job domain.AutomationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", jobID, err)
	}
	if job.Results == nil {
		job.Results = make(map[string]domain.ProcessingResult)
	}
	return &job, nil
}

// ListResumable scans every record, skipping ones that fail to decode, and
// returns resumable jobs newest-first.
func (s *FileStore) ListResumable() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read job directory %s: %w", s.dir, err)
	}

	var resumable []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var job domain.AutomationJob
		if err := json.Unmarshal(data, &job); err != nil || job.JobID == "" {
			continue
		}
		if job.IsResumable() {
			resumable = append(resumable, summarize(&job))
		}
	}

	sort.Slice(resumable, func(i, j int) bool {
		return resumable[i].LastUpdated.After(resumable[j].LastUpdated)
	})
	return resumable, nil
}

func (s *FileStore) Delete(jobID string) error {
	if err := os.Remove(s.path(jobID)); err != nil {
		if os.IsNotExist(err) {
			return ErrJobNotFound
		}
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}

// CleanupOlderThan removes records whose file has not been touched within
// maxAge and reports how many were deleted.
func (s *FileStore) CleanupOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read job directory %s: %w", s.dir, err)
	}

	cutoff := s.now().Add(-maxAge)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}
