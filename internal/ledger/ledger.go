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

// Package ledger records which inbound message identifiers have already
// been dispatched for printing, so a message is never printed twice even
// across restarts. The record set is bounded: at capacity the oldest
// entry is evicted on insert, so a sufficiently old identifier may in
// principle be reprocessed — an accepted trade-off, not a guarantee of
// permanent dedup.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity bounds the ledger when no capacity is configured.
const DefaultCapacity = 500

// Entry is one dispatched message identifier and when it was recorded.
type Entry struct {
	MessageID    string    `json:"message_id"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// Store persists the ledger's entry set across process restarts. The
// in-memory ledger is authoritative; a store failure degrades crash
// tolerance but never blocks dispatch.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// Ledger is a bounded FIFO set of dispatched message identifiers.
// Safe for concurrent use; the check-and-record step is a single
// atomic operation under one mutex.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]time.Time
	store    Store
}

// New creates a ledger bounded to capacity, restoring any persisted
// entries from store. A nil store yields a memory-only ledger. If the
// persisted set exceeds capacity, only the most recent entries survive.
func New(ctx context.Context, capacity int, store Store) (*Ledger, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	l := &Ledger{
		capacity: capacity,
		seen:     make(map[string]time.Time),
		store:    store,
	}

	if store != nil {
		entries, err := store.Load(ctx)
		if err != nil {
			return nil, err
		}
		if len(entries) > capacity {
			entries = entries[len(entries)-capacity:]
		}
		for _, e := range entries {
			if _, dup := l.seen[e.MessageID]; dup {
				continue
			}
			l.order = append(l.order, e.MessageID)
			l.seen[e.MessageID] = e.DispatchedAt
		}
		slog.Info("dedup ledger restored", "entries", len(l.order), "capacity", capacity)
	}

	return l, nil
}

// ShouldDispatch returns true and records the identifier atomically if
// it has not been seen before; false otherwise. It must be called
// before any side effect that marks the source message as consumed —
// the ledger gates printing, not read-marking.
func (l *Ledger) ShouldDispatch(ctx context.Context, messageID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[messageID]; ok {
		return false
	}

	if len(l.order) >= l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.seen, oldest)
	}

	l.order = append(l.order, messageID)
	l.seen[messageID] = time.Now().UTC()

	l.persistLocked(ctx)
	return true
}

// Forget removes a recorded identifier so the message becomes eligible
// for dispatch again. Used when a dispatch was recorded optimistically
// but no part of the message could be submitted, so a later redelivery
// should be retried rather than skipped.
func (l *Ledger) Forget(ctx context.Context, messageID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[messageID]; !ok {
		return
	}
	delete(l.seen, messageID)
	for i, id := range l.order {
		if id == messageID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}

	l.persistLocked(ctx)
}

// Seen reports whether the identifier is currently recorded, without
// recording it.
func (l *Ledger) Seen(messageID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[messageID]
	return ok
}

// Len returns the number of recorded identifiers.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Entries returns a snapshot of the record set in insertion order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entriesLocked()
}

func (l *Ledger) entriesLocked() []Entry {
	entries := make([]Entry, 0, len(l.order))
	for _, id := range l.order {
		entries = append(entries, Entry{MessageID: id, DispatchedAt: l.seen[id]})
	}
	return entries
}

// persistLocked writes the current entry set to the store. Persistence
// is best-effort: an I/O failure is logged and the dispatch proceeds.
func (l *Ledger) persistLocked(ctx context.Context) {
	if l.store == nil {
		return
	}
	if err := l.store.Save(ctx, l.entriesLocked()); err != nil {
		slog.Error("failed to persist dedup ledger", "error", err)
	}
}
