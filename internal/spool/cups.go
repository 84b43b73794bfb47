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

package spool

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CUPSOptions configures the CUPS spooler client.
type CUPSOptions struct {
	// Printer is the destination queue. Empty or "default" submits to
	// the system default destination.
	Printer   string
	PaperSize string
	Duplex    bool
	Color     bool
}

// CUPS drives the local CUPS spooler through lp, lpstat and cancel.
type CUPS struct {
	opts CUPSOptions

	// run executes a spooler command; replaced in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCUPS creates a CUPS spooler client.
func NewCUPS(opts CUPSOptions) *CUPS {
	return &CUPS{
		opts: opts,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Submit hands the document to lp and parses the assigned request ID.
func (c *CUPS) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	args := []string{"-t", req.Title}
	if p := c.printerName(); p != "" {
		args = append(args, "-d", p)
	}
	args = append(args, "-o", "media="+c.opts.PaperSize)
	if c.opts.Duplex {
		args = append(args, "-o", "sides=two-sided-long-edge")
	} else {
		args = append(args, "-o", "sides=one-sided")
	}
	if c.opts.Color {
		args = append(args, "-o", "print-color-mode=color")
	} else {
		args = append(args, "-o", "print-color-mode=monochrome")
	}
	if req.Orientation == "landscape" {
		args = append(args, "-o", "orientation-requested=4")
	}
	args = append(args, req.Path)

	out, err := c.run(ctx, "lp", args...)
	if err != nil {
		return "", &SubmissionError{
			Printer: c.printerName(),
			Output:  strings.TrimSpace(string(out)),
			Cause:   err,
		}
	}

	handle, ok := parseRequestID(string(out))
	if !ok {
		return "", &SubmissionError{
			Printer: c.printerName(),
			Output:  strings.TrimSpace(string(out)),
			Cause:   fmt.Errorf("no request id in lp output"),
		}
	}

	slog.Info("print job submitted", "handle", handle, "title", req.Title)
	return handle, nil
}

// QueryState checks the not-completed job listing for the handle.
// An absent handle yields ErrNotFound; CUPS prunes finished jobs from
// this listing, so the caller treats absence as completion. A present
// job is reported as processing when its printer is actively printing
// it, pending otherwise.
func (c *CUPS) QueryState(ctx context.Context, handle string) (State, error) {
	out, err := c.run(ctx, "lpstat", "-W", "not-completed", "-o")
	if err != nil {
		return StateUnknown, fmt.Errorf("list active jobs: %w: %s", err, strings.TrimSpace(string(out)))
	}

	if !jobListed(string(out), handle) {
		return StateUnknown, ErrNotFound
	}

	pout, err := c.run(ctx, "lpstat", "-p")
	if err == nil && strings.Contains(string(pout), "printing "+handle) {
		return StateProcessing, nil
	}
	return StatePending, nil
}

// Cancel asks CUPS to cancel the job.
func (c *CUPS) Cancel(ctx context.Context, handle string) error {
	out, err := c.run(ctx, "cancel", handle)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w: %s", handle, err, strings.TrimSpace(string(out)))
	}
	slog.Info("print job cancel requested", "handle", handle)
	return nil
}

// Printers lists the destinations known to CUPS.
func (c *CUPS) Printers(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "lpstat", "-p")
	if err != nil {
		return nil, fmt.Errorf("list printers: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return parsePrinters(string(out)), nil
}

// DefaultPrinter returns the system default destination, or empty when
// none is configured.
func (c *CUPS) DefaultPrinter(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "lpstat", "-d")
	if err != nil {
		return "", fmt.Errorf("query default printer: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return parseDefaultDestination(string(out)), nil
}

func (c *CUPS) printerName() string {
	if c.opts.Printer == "default" {
		return ""
	}
	return c.opts.Printer
}

// parseRequestID extracts the job handle from lp output of the form
// "request id is Office-142 (1 file(s))".
func parseRequestID(out string) (string, bool) {
	const marker = "request id is "
	idx := strings.Index(out, marker)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimSpace(out[idx+len(marker):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// jobListed reports whether a handle appears as a job line in lpstat -o
// output. Job lines start with the handle followed by whitespace.
func jobListed(out, handle string) bool {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == handle {
			return true
		}
	}
	return false
}

// parsePrinters extracts destination names from lpstat -p output, whose
// lines look like "printer Office is idle.  enabled since ...".
func parsePrinters(out string) []string {
	var printers []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "printer" {
			printers = append(printers, fields[1])
		}
	}
	return printers
}

// parseDefaultDestination extracts the name from lpstat -d output:
// "system default destination: Office".
func parseDefaultDestination(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if _, name, ok := strings.Cut(line, "system default destination:"); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}
