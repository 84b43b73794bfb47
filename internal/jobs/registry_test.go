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
	"fmt"
	"sync"
	"testing"

	"github.com/mailprint/service/internal/spool"
)

// TestStateMonotonicity verifies a terminal state never regresses.
func TestStateMonotonicity(t *testing.T) {
	reg := NewRegistry(10, &stubSpooler{})
	reg.Register("J-1", "doc")

	reg.UpdateState("J-1", spool.StateProcessing)
	reg.UpdateState("J-1", spool.StateCanceled)
	reg.UpdateState("J-1", spool.StateProcessing)
	reg.UpdateState("J-1", spool.StateCompleted)

	job, _ := reg.Get("J-1")
	if job.State != spool.StateCanceled {
		t.Errorf("state = %s, want canceled to stick", job.State)
	}

	stats := reg.Stats()
	if stats.JobsFailed != 1 || stats.JobsSucceeded != 0 {
		t.Errorf("stats = %+v, want exactly one failure and no success", stats)
	}
}

// TestRegistryEviction verifies the size cap drops the oldest records.
func TestRegistryEviction(t *testing.T) {
	reg := NewRegistry(3, &stubSpooler{})
	for i := 0; i < 5; i++ {
		reg.Register(fmt.Sprintf("J-%d", i), "doc")
	}

	jobs := reg.List()
	if len(jobs) != 3 {
		t.Fatalf("registry holds %d jobs, want 3", len(jobs))
	}
	if jobs[0].Handle != "J-2" || jobs[2].Handle != "J-4" {
		t.Errorf("retained handles = %v, want J-2..J-4", jobs)
	}
	if _, ok := reg.Get("J-0"); ok {
		t.Error("J-0 should have been evicted")
	}
}

// TestCancel verifies cancellation reaches the spooler and marks the
// registry record.
func TestCancel(t *testing.T) {
	s := &stubSpooler{}
	reg := NewRegistry(10, s)
	reg.Register("J-1", "doc")

	if !reg.Cancel(context.Background(), "J-1") {
		t.Fatal("Cancel returned false for a registered job")
	}
	if len(s.canceled) != 1 || s.canceled[0] != "J-1" {
		t.Errorf("spooler cancel calls = %v, want [J-1]", s.canceled)
	}
	job, _ := reg.Get("J-1")
	if job.State != spool.StateCanceled {
		t.Errorf("state = %s, want canceled", job.State)
	}

	if reg.Cancel(context.Background(), "J-404") {
		t.Error("Cancel of unknown handle should return false")
	}
}

// TestOnTerminalFiresOnce verifies the terminal callback fires exactly
// once per job.
func TestOnTerminalFiresOnce(t *testing.T) {
	reg := NewRegistry(10, &stubSpooler{})
	var fired []string
	reg.OnTerminal(func(job Job) { fired = append(fired, job.Handle+":"+job.StateName) })

	reg.Register("J-1", "doc")
	reg.UpdateState("J-1", spool.StateProcessing)
	reg.UpdateState("J-1", spool.StateCompleted)
	reg.UpdateState("J-1", spool.StateCompleted)
	reg.UpdateState("J-1", spool.StateAborted)

	if len(fired) != 1 || fired[0] != "J-1:completed" {
		t.Errorf("terminal callbacks = %v, want exactly [J-1:completed]", fired)
	}
}

// TestConcurrentAccess exercises the registry from an ingestion-like
// writer and a control-surface-like reader at once.
func TestConcurrentAccess(t *testing.T) {
	reg := NewRegistry(100, &stubSpooler{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h := fmt.Sprintf("J-%d", i)
			reg.Register(h, "doc")
			reg.UpdateState(h, spool.StateProcessing)
			reg.UpdateState(h, spool.StateCompleted)
			reg.NoteMessageProcessed()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			reg.List()
			reg.Stats()
		}
	}()
	wg.Wait()

	if got := reg.Stats().JobsSucceeded; got != 200 {
		t.Errorf("jobs succeeded = %d, want 200", got)
	}
}
