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

package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mailprint/service/internal/render"
	"github.com/mailprint/service/internal/spool"
)

// ErrPollTimeout reports a job that never reached a terminal state
// within the deadline. The job stays in the registry at its last
// observed state for inspection or cancellation; the failure is
// non-fatal to the service.
var ErrPollTimeout = errors.New("print job did not reach a terminal state before the deadline")

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	// WaitForCompletion polls the spooler until the job is terminal.
	// Disabling it returns right after submission — an explicit opt-out,
	// not the default.
	WaitForCompletion bool

	// Timeout bounds the whole poll loop. Default 300s.
	Timeout time.Duration

	// PollInterval is the sleep between spooler queries. Default 2s.
	PollInterval time.Duration
}

// Tracker submits documents to the spooler and follows each job to a
// terminal state. It is the only component that blocks for a long
// duration; it runs on the ingestion loop's goroutine, never on the
// control surface's.
type Tracker struct {
	spooler  spool.Spooler
	registry *Registry
	opts     TrackerOptions
}

// NewTracker creates a tracker.
func NewTracker(spooler spool.Spooler, registry *Registry, opts TrackerOptions) *Tracker {
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Tracker{spooler: spooler, registry: registry, opts: opts}
}

// SubmitAndAwait submits the document and polls the spooler until the
// job reaches a terminal state or the deadline fires. The document's
// Release fires exactly once, only after a terminal state, the timeout,
// or a submission rejection — never while the spooler may still read
// the backing file. Premature deletion stalls some printers mid-job.
func (t *Tracker) SubmitAndAwait(ctx context.Context, doc *render.Document) (string, spool.State, error) {
	handle, err := t.spooler.Submit(ctx, spool.SubmitRequest{
		Path:        doc.Path,
		Title:       doc.Title,
		MIMEType:    doc.MIMEType,
		Orientation: string(doc.Orientation),
	})
	if err != nil {
		// The spooler never accepted the file, nothing holds it.
		doc.Release()
		t.registry.NoteSubmissionFailure()
		return "", spool.StateUnknown, err
	}

	t.registry.Register(handle, doc.Title)

	if !t.opts.WaitForCompletion {
		// Nothing will ever poll this job, so no later release point
		// exists; the opt-out waives completion signaling.
		doc.Release()
		return handle, spool.StateSubmitted, nil
	}

	defer doc.Release()

	state, err := t.await(ctx, handle)
	return handle, state, err
}

// await runs the poll loop: sleep, query, update registry, until a
// terminal state or the deadline. Transient query errors are logged and
// retried on the next tick.
func (t *Tracker) await(ctx context.Context, handle string) (spool.State, error) {
	deadline := time.Now().Add(t.opts.Timeout)
	last := spool.StateSubmitted

	timer := time.NewTimer(t.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
		}

		state, err := t.spooler.QueryState(ctx, handle)
		switch {
		case errors.Is(err, spool.ErrNotFound):
			// Some spoolers prune finished jobs immediately; a handle
			// that vanished from the listing finished printing — unless
			// the registry already recorded a terminal state, e.g. a
			// cancellation through the control surface, which also
			// removes the job from the listing.
			if job, ok := t.registry.Get(handle); ok && job.State.Terminal() {
				state = job.State
			} else {
				state = spool.StateCompleted
			}
		case err != nil:
			slog.Warn("spooler query failed", "handle", handle, "error", err)
			state = last
		}

		if state != last {
			t.registry.UpdateState(handle, state)
			last = state
		}

		if state.Terminal() {
			slog.Info("print job finished", "handle", handle, "state", state.String())
			return state, nil
		}

		if !time.Now().Before(deadline) {
			slog.Warn("print job tracking timed out",
				"handle", handle,
				"last_state", state.String(),
				"timeout", t.opts.Timeout,
			)
			return state, ErrPollTimeout
		}

		timer.Reset(t.opts.PollInterval)
	}
}
