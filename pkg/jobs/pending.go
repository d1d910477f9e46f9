package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Pending is a job whose local wait timed out while the remote job kept
// running. It carries what is needed to save the result later.
type Pending struct {
	JobID     string
	Operation string
	Prompt    string
	Model     string
	Filename  string
	StartTime time.Time
	LastState string
	// Metadata is attached to the record saved on completion
	Metadata map[string]interface{}
}

// PendingJobs remembers timed-out jobs for continue_job. Entries expire
// after ttl.
type PendingJobs struct {
	jobs  map[string]*Pending
	ttl   time.Duration
	clock Clock
	mu    sync.RWMutex
}

// NewPendingJobs creates an empty registry
func NewPendingJobs(ttl time.Duration, clock Clock) *PendingJobs {
	if clock == nil {
		clock = systemClock{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PendingJobs{jobs: make(map[string]*Pending), ttl: ttl, clock: clock}
}

// Add stores a pending job
func (p *PendingJobs) Add(job *Pending) {
	if job.StartTime.IsZero() {
		job.StartTime = p.clock.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs[job.JobID] = job
}

// Get returns a pending job that has not expired
func (p *PendingJobs) Get(jobID string) (*Pending, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	job, ok := p.jobs[jobID]
	if !ok || p.expired(job) {
		return nil, false
	}
	return job, true
}

// Remove deletes a pending job
func (p *PendingJobs) Remove(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.jobs, jobID)
}

// Len returns the number of stored entries, expired ones included
func (p *PendingJobs) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.jobs)
}

// Sweep drops expired entries and returns how many were removed
func (p *PendingJobs) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for id, job := range p.jobs {
		if p.expired(job) {
			delete(p.jobs, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done
func (p *PendingJobs) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

func (p *PendingJobs) expired(job *Pending) bool {
	return p.clock.Now().Sub(job.StartTime) > p.ttl
}

// PendingError wraps a Timeout error with what continue_job needs to finish
// the job later.
type PendingError struct {
	Pending *Pending
	Err     error
}

func (e *PendingError) Error() string { return e.Err.Error() }

func (e *PendingError) Unwrap() error { return e.Err }

// AsPending attaches p to err when err is a polling Timeout that names its
// job. Other errors are returned unchanged.
func AsPending(err error, p Pending) error {
	var typed *types.Error
	if !errors.As(err, &typed) || typed.Kind != types.KindTimeout {
		return err
	}
	jobID, _ := typed.Details["job_id"].(string)
	if jobID == "" {
		return err
	}
	p.JobID = jobID
	p.LastState, _ = typed.Details["last_status"].(string)
	return &PendingError{Pending: &p, Err: err}
}
