package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/VGachet/tapedit-server/internal/models"
)

var (
	// ErrNotFound is returned for ids that are unknown or already removed.
	ErrNotFound = errors.New("conversion not found")
	// ErrDuplicateID is returned when creating a job whose id was already used.
	ErrDuplicateID = errors.New("job id already in use")
)

// Registry is the concurrency-safe store of live job state. Every method
// returns immediately; readers always get either a snapshot or ErrNotFound.
type Registry struct {
	mu       sync.RWMutex
	jobs     map[string]*models.Job
	used     map[string]struct{}
	watchers map[string]map[chan models.ProgressEvent]struct{}
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		jobs:     make(map[string]*models.Job),
		used:     make(map[string]struct{}),
		watchers: make(map[string]map[chan models.ProgressEvent]struct{}),
		now:      time.Now,
	}
}

// Create initializes a job at 0% processing. An id is accepted once per
// registry lifetime, even after the job has been removed.
func (r *Registry) Create(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.used[id]; ok {
		return ErrDuplicateID
	}
	r.used[id] = struct{}{}
	now := r.now()
	r.jobs[id] = &models.Job{
		ID:        id,
		Status:    models.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// Update overwrites progress and status. It reports false for unknown ids.
func (r *Registry) Update(id string, progress float64, status models.JobStatus) bool {
	return r.Modify(id, func(j *models.Job) {
		j.Progress = progress
		j.Status = status
	})
}

// Modify applies fn to the stored job under the write lock and notifies watchers.
func (r *Registry) Modify(id string, fn func(*models.Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	job.ID = id
	job.UpdatedAt = r.now()
	r.notifyLocked(id, job.Event())
	return true
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return *job, nil
}

// Remove deletes the job and closes its watch channels. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs, id)
	for ch := range r.watchers[id] {
		close(ch)
	}
	delete(r.watchers, id)
}

// RemoveAfter removes the job once d has elapsed; d <= 0 removes it now.
func (r *Registry) RemoveAfter(id string, d time.Duration) {
	if d <= 0 {
		r.Remove(id)
		return
	}
	time.AfterFunc(d, func() { r.Remove(id) })
}

// Len returns the number of live jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Watch subscribes to state changes of a job. The channel always holds the
// most recent event only and is closed when the job is removed. The returned
// func unsubscribes.
func (r *Registry) Watch(id string) (<-chan models.ProgressEvent, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, nil, ErrNotFound
	}

	ch := make(chan models.ProgressEvent, 1)
	ch <- job.Event()
	if r.watchers[id] == nil {
		r.watchers[id] = make(map[chan models.ProgressEvent]struct{})
	}
	r.watchers[id][ch] = struct{}{}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if _, ok := r.watchers[id][ch]; ok {
				delete(r.watchers[id], ch)
				close(ch)
			}
		})
	}
	return ch, unsubscribe, nil
}

// notifyLocked replaces any undelivered event with evt so senders never block.
func (r *Registry) notifyLocked(id string, evt models.ProgressEvent) {
	for ch := range r.watchers[id] {
		select {
		case <-ch:
		default:
		}
		ch <- evt
	}
}
