package service

import (
	"sort"
	"sync"
	"time"

	"github.com/iago/market-analysis-back/internal/domain"
)

// jobTable is the single guarded map of jobs. The mutex is held only for
// the individual read or write.
type jobTable struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*domain.Job)}
}

func (t *jobTable) insert(job *domain.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[job.ID] = job
}

func (t *jobTable) get(id string) (domain.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return job.Clone(), true
}

// update applies fn to the stored job and returns the resulting snapshot.
// fn must not block.
func (t *jobTable) update(id string, fn func(*domain.Job) error) (domain.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	if err := fn(job); err != nil {
		return job.Clone(), err
	}
	return job.Clone(), nil
}

func (t *jobTable) snapshot() []domain.Job {
	t.mu.Lock()
	jobs := make([]domain.Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		jobs = append(jobs, job.Clone())
	}
	t.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

func (t *jobTable) pruneTerminal(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, job := range t.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}
