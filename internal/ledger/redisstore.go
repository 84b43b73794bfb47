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

package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKey namespaces the ledger entry set in Redis.
const redisKey = "mailprint:ledger"

// RedisStore mirrors the ledger entry set to a Redis hash so the record
// set survives restarts of hosts without durable local disk. The hash
// maps message ID to dispatch timestamp; insertion order is recovered
// from the timestamps on load.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed ledger store and verifies the
// connection.
func NewRedisStore(ctx context.Context, rdb *redis.Client) (*RedisStore, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Load reads the persisted entry set, ordered oldest first.
func (s *RedisStore) Load(ctx context.Context) ([]Entry, error) {
	fields, err := s.rdb.HGetAll(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load ledger from redis: %w", err)
	}

	entries := make([]Entry, 0, len(fields))
	for id, stamp := range fields {
		ts, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{MessageID: id, DispatchedAt: ts})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DispatchedAt.Before(entries[j].DispatchedAt)
	})
	return entries, nil
}

// Save replaces the persisted entry set with the given one.
func (s *RedisStore) Save(ctx context.Context, entries []Entry) error {
	fields := make(map[string]string, len(entries))
	for _, e := range entries {
		fields[e.MessageID] = e.DispatchedAt.Format(time.RFC3339Nano)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, redisKey)
	if len(fields) > 0 {
		pipe.HSet(ctx, redisKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save ledger to redis: %w", err)
	}
	return nil
}
