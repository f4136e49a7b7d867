package orchestrator

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrJobNotFound is returned for an unknown job name.
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateJob is returned when a name is registered twice.
	ErrDuplicateJob = errors.New("job already registered")
)

// Entry is a registered job and its cron cadence.
type Entry struct {
	Job      Job
	Schedule string
}

// Registry holds jobs in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds job with a cron schedule. An empty schedule registers an
// on-demand-only job.
func (r *Registry) Register(job Job, schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := job.Name()
	if schedule != "" {
		if _, err := ParseSchedule(schedule); err != nil {
			return fmt.Errorf("job %s: %w", name, err)
		}
	}
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	r.entries[name] = Entry{Job: job, Schedule: schedule}
	r.order = append(r.order, name)
	return nil
}

// Get returns a registered job.
func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e, nil
}

// List returns every entry in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}
