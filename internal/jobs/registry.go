// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jobs tracks the lifecycle of submitted print jobs: a
// registry of every job in the process lifetime, and a tracker that
// polls the spooler until a job reaches a terminal state so temporary
// artifacts are not destroyed while the device is still reading them.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mailprint/service/internal/spool"
)

// DefaultRegistryCap bounds the registry when no cap is configured.
const DefaultRegistryCap = 1000

// Job is one print job's registry record.
type Job struct {
	Handle       string      `json:"handle"`
	Title        string      `json:"title"`
	State        spool.State `json:"-"`
	StateName    string      `json:"state"`
	SubmittedAt  time.Time   `json:"submitted_at"`
	LastPolledAt time.Time   `json:"last_polled_at"`
}

// Stats are the service counters exposed on the control surface.
type Stats struct {
	MessagesProcessed int64 `json:"messages_processed"`
	JobsSucceeded     int64 `json:"jobs_succeeded"`
	JobsFailed        int64 `json:"jobs_failed"`
}

// Registry is a thread-safe table of all jobs submitted in the process
// lifetime, shared by the ingestion loop and the HTTP control surface.
// Completed jobs remain queryable until the size cap evicts them. All
// mutations go through the registry's single mutex.
type Registry struct {
	mu      sync.Mutex
	cap     int
	order   []string
	jobs    map[string]*Job
	stats   Stats
	spooler spool.Spooler

	// onTerminal, if set, is called after a job first reaches a
	// terminal state. Used for the optional history archive.
	onTerminal func(job Job)
}

// NewRegistry creates a registry bounded to cap entries, using spooler
// for cancellation requests.
func NewRegistry(cap int, spooler spool.Spooler) *Registry {
	if cap <= 0 {
		cap = DefaultRegistryCap
	}
	return &Registry{
		cap:     cap,
		jobs:    make(map[string]*Job),
		spooler: spooler,
	}
}

// OnTerminal registers a callback invoked once per job on its first
// transition into a terminal state. Must be set before jobs flow.
func (r *Registry) OnTerminal(fn func(job Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTerminal = fn
}

// Register records a freshly submitted job. At the size cap the oldest
// record is evicted.
func (r *Registry) Register(handle, title string) {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[handle]; ok {
		return
	}
	if len(r.order) >= r.cap {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.jobs, oldest)
	}
	r.order = append(r.order, handle)
	r.jobs[handle] = &Job{
		Handle:       handle,
		Title:        title,
		State:        spool.StateSubmitted,
		StateName:    spool.StateSubmitted.String(),
		SubmittedAt:  now,
		LastPolledAt: now,
	}
}

// UpdateState records a newly observed state for a job. Terminal states
// are sticky: once a job is terminal its state never regresses, and the
// success/failure counter ticks exactly once.
func (r *Registry) UpdateState(handle string, state spool.State) {
	var terminalCopy *Job

	r.mu.Lock()
	job, ok := r.jobs[handle]
	if ok {
		job.LastPolledAt = time.Now().UTC()
		if !job.State.Terminal() && state != job.State {
			job.State = state
			job.StateName = state.String()
			if state.Terminal() {
				if state.Failed() {
					r.stats.JobsFailed++
				} else {
					r.stats.JobsSucceeded++
				}
				c := *job
				terminalCopy = &c
			}
		}
	}
	fn := r.onTerminal
	r.mu.Unlock()

	if terminalCopy != nil && fn != nil {
		fn(*terminalCopy)
	}
}

// Get returns a copy of the job record.
func (r *Registry) Get(handle string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[handle]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns a snapshot of all registered jobs, oldest first.
func (r *Registry) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, 0, len(r.order))
	for _, handle := range r.order {
		out = append(out, *r.jobs[handle])
	}
	return out
}

// Cancel asks the spooler to cancel the job and records the request.
// Cancellation is cooperative: a tracker blocked in its poll loop
// observes the terminal state on its next poll.
func (r *Registry) Cancel(ctx context.Context, handle string) bool {
	r.mu.Lock()
	_, ok := r.jobs[handle]
	r.mu.Unlock()
	if !ok {
		return false
	}

	if err := r.spooler.Cancel(ctx, handle); err != nil {
		slog.Error("cancel request failed", "handle", handle, "error", err)
		return false
	}

	r.UpdateState(handle, spool.StateCanceled)
	return true
}

// Stats returns a snapshot of the counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// NoteMessageProcessed ticks the processed-message counter.
func (r *Registry) NoteMessageProcessed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.MessagesProcessed++
}

// NoteSubmissionFailure counts a job the spooler rejected outright.
// Such jobs have no handle and are never registered.
func (r *Registry) NoteSubmissionFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.JobsFailed++
}
