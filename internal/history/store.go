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

// Package history provides an optional Postgres archive of completed
// print jobs. The archive is an audit trail only: the live job registry
// never reads from it, and archive failures never block printing.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one archived print job in its terminal state.
type Record struct {
	ID          int64
	JobHandle   string
	Title       string
	State       string
	SubmittedAt time.Time
	FinishedAt  time.Time
}

// Store archives terminal print jobs in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a print history store backed by the given Postgres
// pool. It ensures the print_history table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure print history schema: %w", err)
	}
	slog.Info("print history store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS print_history (
			id           BIGSERIAL PRIMARY KEY,
			job_handle   TEXT NOT NULL,
			title        TEXT DEFAULT '',
			state        TEXT NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL,
			finished_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_history_finished ON print_history(finished_at);
		CREATE INDEX IF NOT EXISTS idx_history_state ON print_history(state);
	`)
	return err
}

// Archive inserts one terminal job into the history table.
func (s *Store) Archive(ctx context.Context, r Record) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO print_history (job_handle, title, state, submitted_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.JobHandle, r.Title, r.State, r.SubmittedAt, r.FinishedAt)
	return err
}

// Recent returns the most recently finished jobs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_handle, title, state, submitted_at, finished_at
		FROM print_history
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.JobHandle, &r.Title, &r.State, &r.SubmittedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get retrieves one archived job by handle. Returns (nil, nil) when the
// handle was never archived.
func (s *Store) Get(ctx context.Context, jobHandle string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, job_handle, title, state, submitted_at, finished_at
		FROM print_history
		WHERE job_handle = $1
		ORDER BY finished_at DESC
		LIMIT 1
	`, jobHandle)

	var r Record
	if err := row.Scan(&r.ID, &r.JobHandle, &r.Title, &r.State, &r.SubmittedAt, &r.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}
