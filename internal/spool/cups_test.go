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
	"errors"
	"fmt"
	"testing"
)

// TestStateTerminal verifies terminal classification.
func TestStateTerminal(t *testing.T) {
	terminal := []State{StateCompleted, StateCanceled, StateAborted, StateStopped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateSubmitted, StatePending, StateHeld, StateProcessing, StateUnknown} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if StateCompleted.Failed() {
		t.Error("completed is a success, not a failure")
	}
	if !StateAborted.Failed() {
		t.Error("aborted is a terminal failure")
	}
}

// TestParseRequestID covers lp output parsing.
func TestParseRequestID(t *testing.T) {
	tests := []struct {
		out    string
		want   string
		wantOK bool
	}{
		{"request id is Office-142 (1 file(s))\n", "Office-142", true},
		{"request id is HP_LaserJet-7 (1 file(s))", "HP_LaserJet-7", true},
		{"lp: Error - no default destination available.\n", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := parseRequestID(tt.out)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("parseRequestID(%q) = (%q, %v), want (%q, %v)", tt.out, got, ok, tt.want, tt.wantOK)
		}
	}
}

// TestParsePrinters covers lpstat -p output parsing.
func TestParsePrinters(t *testing.T) {
	out := "printer Office is idle.  enabled since Mon 01 Jan 2026\n" +
		"printer Basement disabled since Mon 01 Jan 2026 -\n" +
		"\treason unknown\n"
	got := parsePrinters(out)
	if len(got) != 2 || got[0] != "Office" || got[1] != "Basement" {
		t.Errorf("parsePrinters = %v, want [Office Basement]", got)
	}
}

// TestParseDefaultDestination covers lpstat -d output parsing.
func TestParseDefaultDestination(t *testing.T) {
	if got := parseDefaultDestination("system default destination: Office\n"); got != "Office" {
		t.Errorf("default destination = %q, want Office", got)
	}
	if got := parseDefaultDestination("no system default destination\n"); got != "" {
		t.Errorf("default destination = %q, want empty", got)
	}
}

// TestQueryStateDisappearance verifies an absent handle maps to
// ErrNotFound (completion-by-disappearance for the tracker).
func TestQueryStateDisappearance(t *testing.T) {
	c := NewCUPS(CUPSOptions{Printer: "Office", PaperSize: "A4"})
	c.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		return []byte("Office-7  alice  1024  Mon 01 Jan 2026\n"), nil
	}

	if _, err := c.QueryState(context.Background(), "Office-9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("QueryState for absent job = %v, want ErrNotFound", err)
	}

	state, err := c.QueryState(context.Background(), "Office-7")
	if err != nil {
		t.Fatalf("QueryState: %v", err)
	}
	if state.Terminal() {
		t.Errorf("listed job reported terminal state %s", state)
	}
}

// TestSubmitRejection verifies lp failures surface as SubmissionError.
func TestSubmitRejection(t *testing.T) {
	c := NewCUPS(CUPSOptions{Printer: "Office", PaperSize: "A4"})
	c.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		return []byte("lp: Error - destination Office not accepting jobs"), fmt.Errorf("exit status 1")
	}

	_, err := c.Submit(context.Background(), SubmitRequest{Path: "/tmp/doc.pdf", Title: "doc"})
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Submit error = %T, want *SubmissionError", err)
	}
	if subErr.Printer != "Office" {
		t.Errorf("SubmissionError.Printer = %q, want Office", subErr.Printer)
	}
}
