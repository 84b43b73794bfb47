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

// Package api exposes the read-mostly HTTP control surface: health,
// runtime status, the job registry, and job cancellation. It never
// drives the ingestion pipeline.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mailprint/service/internal/history"
	"github.com/mailprint/service/internal/jobs"
	"github.com/mailprint/service/internal/ledger"
	"github.com/mailprint/service/internal/spool"
)

// Handler serves the control endpoints.
type Handler struct {
	registry *jobs.Registry
	spooler  spool.Spooler
	ledger   *ledger.Ledger
	history  *history.Store // optional
	apiKey   string
	started  time.Time
}

// NewHandler creates a control surface handler. history may be nil.
func NewHandler(registry *jobs.Registry, spooler spool.Spooler, led *ledger.Ledger, hist *history.Store, apiKey string) *Handler {
	return &Handler{
		registry: registry,
		spooler:  spooler,
		ledger:   led,
		history:  hist,
		apiKey:   apiKey,
		started:  time.Now(),
	}
}

// requireKey wraps a handler with X-API-Key authentication. An empty
// configured key leaves the endpoint open.
func (h *Handler) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" && r.Header.Get("X-API-Key") != h.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing API key"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// ServeHealth is the unauthenticated liveness probe.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}

// ServeStatus reports service uptime and counters.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "running",
		"uptime_seconds":     int(time.Since(h.started).Seconds()),
		"dedup_entries":      h.ledger.Len(),
		"messages_processed": stats.MessagesProcessed,
		"jobs_succeeded":     stats.JobsSucceeded,
		"jobs_failed":        stats.JobsFailed,
	})
}

// ServeStats reports the registry counters alone.
func (h *Handler) ServeStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Stats())
}

// ServeJobs lists the tracked print jobs.
func (h *Handler) ServeJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.registry.List()})
}

// ServeCancel cancels one tracked job by handle.
func (h *Handler) ServeCancel(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	if handle == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing job handle"})
		return
	}
	if !h.registry.Cancel(r.Context(), handle) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job handle"})
		return
	}
	slog.Info("print job cancelled via control surface", "handle", handle)
	writeJSON(w, http.StatusOK, map[string]string{"handle": handle, "state": "canceled"})
}

// ServePrinters lists the spooler's available destinations.
func (h *Handler) ServePrinters(w http.ResponseWriter, r *http.Request) {
	printers, err := h.spooler.Printers(r.Context())
	if err != nil {
		slog.Error("failed to list printers", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "spooler unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"printers": printers})
}

// ServeHistory lists recently archived jobs. 404 when no archive is
// configured.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "print history is not configured"})
		return
	}
	records, err := h.history.Recent(r.Context(), 50)
	if err != nil {
		slog.Error("failed to read print history", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

// Mux builds the route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.ServeHealth)
	mux.HandleFunc("GET /api/status", h.requireKey(h.ServeStatus))
	mux.HandleFunc("GET /api/stats", h.requireKey(h.ServeStats))
	mux.HandleFunc("GET /api/jobs", h.requireKey(h.ServeJobs))
	mux.HandleFunc("POST /api/jobs/{handle}/cancel", h.requireKey(h.ServeCancel))
	mux.HandleFunc("GET /api/printers", h.requireKey(h.ServePrinters))
	mux.HandleFunc("GET /api/history", h.requireKey(h.ServeHistory))
	return mux
}

// Serve starts the control HTTP server on the given port. It binds the
// port immediately and signals readiness via the returned channel
// before accepting connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:      handler.Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind control port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("control server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("control server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("control server error", "error", err)
		}
	}()

	return ready, nil
}
