package jobstore

import (
	"sort"
	"sync"
	"time"

	"github.com/Hunselvm/genai/internal/domain"
	"github.com/Hunselvm/genai/internal/id"
)

// MemoryStore keeps jobs in process memory. Checkpoints do not survive a
// restart, so it suits tests and one-shot runs where resumability does not
// matter.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.AutomationJob
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]domain.AutomationJob),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(mode string, items []domain.ProcessingItem, settings map[string]string) (*domain.AutomationJob, error) {
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

func (s *MemoryStore) Save(job *domain.AutomationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Load(jobID string) (*domain.AutomationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := cloneJob(&job)
	return &out, nil
}

func (s *MemoryStore) ListResumable() ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaries []Summary
	for i := range s.jobs {
		job := s.jobs[i]
		if job.IsResumable() {
			summaries = append(summaries, summarize(&job))
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastUpdated.After(summaries[j].LastUpdated)
	})
	return summaries, nil
}

func (s *MemoryStore) Delete(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryStore) CleanupOlderThan(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for jobID, job := range s.jobs {
		if job.LastUpdated.Before(cutoff) {
			delete(s.jobs, jobID)
			removed++
		}
	}
	return removed, nil
}

// cloneJob deep-copies the mutable parts so callers keep mutating their own
// job without reaching into the store's copy.
func cloneJob(job *domain.AutomationJob) domain.AutomationJob {
	out := *job
	out.Items = append([]domain.ProcessingItem(nil), job.Items...)
	out.Results = make(map[string]domain.ProcessingResult, len(job.Results))
	for k, v := range job.Results {
		out.Results[k] = v
	}
	if job.Settings != nil {
		out.Settings = make(map[string]string, len(job.Settings))
		for k, v := range job.Settings {
			out.Settings[k] = v
		}
	}
	return out
}
