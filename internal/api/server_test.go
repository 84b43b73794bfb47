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

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mailprint/service/internal/jobs"
	"github.com/mailprint/service/internal/ledger"
	"github.com/mailprint/service/internal/spool"
)

type stubSpooler struct {
	canceled []string
}

func (s *stubSpooler) Submit(context.Context, spool.SubmitRequest) (string, error) {
	return "Office-1", nil
}

func (s *stubSpooler) QueryState(context.Context, string) (spool.State, error) {
	return spool.StatePending, nil
}

func (s *stubSpooler) Cancel(_ context.Context, handle string) error {
	s.canceled = append(s.canceled, handle)
	return nil
}

func (s *stubSpooler) Printers(context.Context) ([]string, error) {
	return []string{"Office", "Lab"}, nil
}

func newTestHandler(t *testing.T, apiKey string) (*Handler, *jobs.Registry, *stubSpooler) {
	t.Helper()
	led, err := ledger.New(context.Background(), 10, nil)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	spooler := &stubSpooler{}
	registry := jobs.NewRegistry(10, spooler)
	return NewHandler(registry, spooler, led, nil, apiKey), registry, spooler
}

func TestHealthIsUnauthenticated(t *testing.T) {
	h, _, _ := newTestHandler(t, "secret")
	srv := httptest.NewServer(h.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", resp.StatusCode)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	h, _, _ := newTestHandler(t, "secret")
	srv := httptest.NewServer(h.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("GET /api/status without key = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/status", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/status with key: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /api/status with key = %d, want 200", resp.StatusCode)
	}

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status["status"] != "running" {
		t.Errorf("status = %v, want running", status["status"])
	}
}

func TestEmptyKeyLeavesEndpointsOpen(t *testing.T) {
	h, _, _ := newTestHandler(t, "")
	srv := httptest.NewServer(h.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /api/stats with no configured key = %d, want 200", resp.StatusCode)
	}
}

func TestListJobs(t *testing.T) {
	h, registry, _ := newTestHandler(t, "")
	registry.Register("Office-7", "quarterly report")
	srv := httptest.NewServer(h.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs")
	if err != nil {
		t.Fatalf("GET /api/jobs: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding jobs: %v", err)
	}
	if len(body.Jobs) != 1 || body.Jobs[0].Handle != "Office-7" {
		t.Errorf("jobs = %+v, want one job Office-7", body.Jobs)
	}
}

func TestCancelJob(t *testing.T) {
	h, registry, spooler := newTestHandler(t, "")
	registry.Register("Office-9", "poster")
	srv := httptest.NewServer(h.Mux())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/jobs/Office-9/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("cancel known job = %d, want 200", resp.StatusCode)
	}
	if len(spooler.canceled) != 1 || spooler.canceled[0] != "Office-9" {
		t.Errorf("spooler cancellations = %v, want [Office-9]", spooler.canceled)
	}

	resp, err = http.Post(srv.URL+"/api/jobs/no-such-job/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel unknown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel unknown job = %d, want 404", resp.StatusCode)
	}
}

func TestListPrinters(t *testing.T) {
	h, _, _ := newTestHandler(t, "")
	srv := httptest.NewServer(h.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/printers")
	if err != nil {
		t.Fatalf("GET /api/printers: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Printers []string `json:"printers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding printers: %v", err)
	}
	if len(body.Printers) != 2 {
		t.Errorf("printers = %v, want 2 entries", body.Printers)
	}
}

func TestHistoryNotConfigured(t *testing.T) {
	h, _, _ := newTestHandler(t, "")
	srv := httptest.NewServer(h.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatalf("GET /api/history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /api/history without archive = %d, want 404", resp.StatusCode)
	}
}
