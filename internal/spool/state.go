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

// Package spool talks to the print spooler. The production
// implementation drives CUPS through its command line tools; raw
// spooler job-state codes are mapped to the closed State enum here and
// never cross this boundary.
package spool

import (
	"context"
	"errors"
	"fmt"
)

// State is a print job's lifecycle state. Raw spooler reports (lpstat
// listings, printer status lines) are mapped onto this closed set at
// the spool boundary; nothing past it sees spooler-specific output.
type State int

const (
	StateUnknown State = iota
	StateSubmitted
	StatePending
	StateHeld
	StateProcessing
	StateCompleted
	StateCanceled
	StateAborted
	StateStopped
)

var stateNames = map[State]string{
	StateUnknown:    "unknown",
	StateSubmitted:  "submitted",
	StatePending:    "pending",
	StateHeld:       "held",
	StateProcessing: "processing",
	StateCompleted:  "completed",
	StateCanceled:   "canceled",
	StateAborted:    "aborted",
	StateStopped:    "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition can occur from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCanceled, StateAborted, StateStopped:
		return true
	}
	return false
}

// Failed reports whether s is a terminal failure.
func (s State) Failed() bool {
	switch s {
	case StateCanceled, StateAborted, StateStopped:
		return true
	}
	return false
}

// ErrNotFound reports a job handle absent from the spooler's active-job
// listing. Some spoolers prune finished jobs immediately, so callers
// treat this as completion-by-disappearance.
var ErrNotFound = errors.New("job not found in spooler listing")

// SubmissionError reports a job the spooler rejected outright, e.g. the
// printer is offline or the format is unsupported.
type SubmissionError struct {
	Printer string
	Output  string
	Cause   error
}

func (e *SubmissionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("spooler rejected job for printer %s: %v: %s", e.Printer, e.Cause, e.Output)
	}
	return fmt.Sprintf("spooler rejected job for printer %s: %v", e.Printer, e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// SubmitRequest describes one document handed to the spooler.
type SubmitRequest struct {
	Path        string
	Title       string
	MIMEType    string
	Orientation string
}

// Spooler is the print-queue collaborator.
type Spooler interface {
	// Submit hands a document to the spooler and returns its job handle.
	Submit(ctx context.Context, req SubmitRequest) (string, error)

	// QueryState returns the job's current state, or ErrNotFound when
	// the handle is absent from the active-job listing.
	QueryState(ctx context.Context, handle string) (State, error)

	// Cancel asks the spooler to cancel the job.
	Cancel(ctx context.Context, handle string) error

	// Printers lists the available print destinations.
	Printers(ctx context.Context) ([]string, error)
}
