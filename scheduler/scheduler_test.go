/*
 * kernelsim - Scheduler test set.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"kernelsim/backingstore"
	"kernelsim/config"
	"kernelsim/interpreter"
	"kernelsim/isa"
	"kernelsim/memory"
	"kernelsim/process"
	"kernelsim/stats"
)

func newTestScheduler(t *testing.T, cfg config.Config) *Scheduler {
	t.Helper()
	store, err := backingstore.Open(filepath.Join(t.TempDir(), "swap.store"), cfg.MemPerFrame)
	if err != nil {
		t.Fatalf("backingstore.Open: %v", err)
	}
	mm := memory.New(cfg.MaxOverallMem, cfg.MemPerFrame, store)
	interp := interpreter.New(mm, time.Millisecond)
	counters := stats.NewCounters(cfg.NumCPU)
	s := New(cfg, mm, interp, counters, time.Millisecond)
	s.accepting.Store(true)
	return s
}

func baseConfig() config.Config {
	return config.Config{
		NumCPU:        1,
		Scheduler:     config.FCFS,
		QuantumCycles: 2,
		BatchFreq:     1000000,
		MinIns:        1,
		MaxIns:        1,
		DelayPerExec:  0,
		MaxOverallMem: 64,
		MemPerFrame:   8,
		MinMemPerProc: 8,
		MaxMemPerProc: 8,
	}
}

func TestCreateNamedProcessAdmitsToReadyQueue(t *testing.T) {
	s := newTestScheduler(t, baseConfig())
	if err := s.CreateNamedProcess("p1"); err != nil {
		t.Fatalf("CreateNamedProcess: %v", err)
	}
	if got := s.ReadyQueueLen(); got != 1 {
		t.Fatalf("ReadyQueueLen: got %d, want 1", got)
	}
	running := s.GetRunningProcesses()
	if len(running) != 1 || running[0] != "p1" {
		t.Fatalf("GetRunningProcesses: got %v, want [p1]", running)
	}
}

func TestCreateNamedProcessDuplicateRejected(t *testing.T) {
	s := newTestScheduler(t, baseConfig())
	if err := s.CreateNamedProcess("p1"); err != nil {
		t.Fatalf("CreateNamedProcess: %v", err)
	}
	if err := s.CreateNamedProcess("p1"); err == nil {
		t.Fatal("CreateNamedProcess: expected error for duplicate name")
	}
}

func TestCreateNamedProcessRejectedWhenNotAccepting(t *testing.T) {
	s := newTestScheduler(t, baseConfig())
	s.accepting.Store(false)
	if err := s.CreateNamedProcess("p1"); err == nil {
		t.Fatal("CreateNamedProcess: expected error when not accepting")
	}
}

func TestCreateNamedProcessWithInstructionsLengthValidation(t *testing.T) {
	s := newTestScheduler(t, baseConfig())

	if err := s.CreateNamedProcessWithInstructions("empty", nil); err == nil {
		t.Fatal("expected error for zero-length program")
	}

	tooLong := make([]isa.Instruction, process.MaxUserInstructions+1)
	for i := range tooLong {
		tooLong[i] = isa.Instruction{Kind: isa.SLEEP, Operands: []isa.Operand{isa.Lit(1)}}
	}
	if err := s.CreateNamedProcessWithInstructions("toolong", tooLong); err == nil {
		t.Fatal("expected error for over-length program")
	}

	ok := []isa.Instruction{{Kind: isa.SLEEP, Operands: []isa.Operand{isa.Lit(1)}}}
	if err := s.CreateNamedProcessWithInstructions("ok", ok); err != nil {
		t.Fatalf("CreateNamedProcessWithInstructions: unexpected error: %v", err)
	}
}

func TestCreateNamedProcessWithInstructionsRejectsInvalidInstruction(t *testing.T) {
	s := newTestScheduler(t, baseConfig())
	bad := []isa.Instruction{{Kind: isa.WRITE, Operands: []isa.Operand{isa.Lit(1)}}} // wrong arity
	if err := s.CreateNamedProcessWithInstructions("bad", bad); err == nil {
		t.Fatal("expected error for invalid instruction")
	}
}

// TestAdmitOverBudgetGoesToRetryQueue checks admission against physical
// frame occupancy, not declared process size: a process whose pages are
// never touched occupies no frames, so it is the occupant's resident
// page — not its declared footprint — that pushes the next admission
// over budget.
func TestAdmitOverBudgetGoesToRetryQueue(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxOverallMem = 8
	cfg.MemPerFrame = 8
	cfg.MinMemPerProc = 8
	cfg.MaxMemPerProc = 8
	s := newTestScheduler(t, cfg)

	if err := s.CreateNamedProcess("occupant"); err != nil {
		t.Fatalf("CreateNamedProcess(occupant): %v", err)
	}
	if err := s.mm.ServicePageFault("occupant", 0); err != nil {
		t.Fatalf("ServicePageFault: %v", err)
	}

	if err := s.CreateNamedProcess("p2"); err != nil {
		t.Fatalf("CreateNamedProcess(p2): %v", err)
	}
	if got := s.ReadyQueueLen(); got != 1 {
		t.Fatalf("ReadyQueueLen: got %d, want 1 (occupant admitted)", got)
	}
	if got := s.RetryQueueLen(); got != 1 {
		t.Fatalf("RetryQueueLen: got %d, want 1 (p2 waiting on the occupied frame)", got)
	}
}

func TestRetryAdmissionsHeadOfLineBlocking(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxOverallMem = 10
	cfg.MemPerFrame = 2
	s := newTestScheduler(t, cfg)

	s.processTable["B"] = process.New("B", time.Now())
	s.processTable["C"] = process.New("C", time.Now())
	s.retryQueue = []string{"B", "C"}
	s.retrySize = map[string]int{"B": 5, "C": 1}

	// Occupy 3 of the 5 frames (6 of 10 bytes) so the physical budget
	// has only 4 bytes free, same as the old totalAllocated=6 fixture.
	if _, err := s.mm.Allocate("dummy", 6); err != nil {
		t.Fatalf("Allocate(dummy): %v", err)
	}
	for _, addr := range []uint32{0, 2, 4} {
		if err := s.mm.ServicePageFault("dummy", addr); err != nil {
			t.Fatalf("ServicePageFault(dummy, %d): %v", addr, err)
		}
	}

	s.retryAdmissions()
	if got := s.RetryQueueLen(); got != 2 {
		t.Fatalf("RetryQueueLen: got %d, want 2 (B still doesn't fit, blocks C)", got)
	}
	if got := s.ReadyQueueLen(); got != 0 {
		t.Fatalf("ReadyQueueLen: got %d, want 0", got)
	}

	s.mm.Free("dummy")
	s.retryAdmissions()
	if got := s.RetryQueueLen(); got != 0 {
		t.Fatalf("RetryQueueLen: got %d, want 0 (both now fit in FIFO order)", got)
	}
	if got := s.ReadyQueueLen(); got != 2 {
		t.Fatalf("ReadyQueueLen: got %d, want 2", got)
	}
}

func TestEndToEndFCFSRunToCompletion(t *testing.T) {
	cfg := baseConfig()
	s := newTestScheduler(t, cfg)
	s.Start()

	program := []isa.Instruction{
		{Kind: isa.DECLARE, Operands: []isa.Operand{isa.Sym("x"), isa.Lit(1)}},
		{Kind: isa.PRINT, Operands: []isa.Operand{isa.Sym("done")}},
	}
	if err := s.CreateNamedProcessWithInstructions("e2e", program); err != nil {
		t.Fatalf("CreateNamedProcessWithInstructions: %v", err)
	}
	s.StopProcessGeneration()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		finished := s.GetFinishedProcesses()
		if len(finished) == 1 && finished[0] == "e2e" {
			s.Stop()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	t.Fatal("process did not reach the finished list within the deadline")
}

func TestEndToEndRoundRobinQuantumOneRunToCompletion(t *testing.T) {
	cfg := baseConfig()
	cfg.Scheduler = config.RR
	cfg.QuantumCycles = 1
	s := newTestScheduler(t, cfg)
	s.Start()

	program := []isa.Instruction{
		{Kind: isa.DECLARE, Operands: []isa.Operand{isa.Sym("x"), isa.Lit(1)}},
		{Kind: isa.DECLARE, Operands: []isa.Operand{isa.Sym("y"), isa.Lit(2)}},
		{Kind: isa.DECLARE, Operands: []isa.Operand{isa.Sym("z"), isa.Lit(3)}},
	}
	if err := s.CreateNamedProcessWithInstructions("rr1", program); err != nil {
		t.Fatalf("CreateNamedProcessWithInstructions: %v", err)
	}
	s.StopProcessGeneration()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		finished := s.GetFinishedProcesses()
		if len(finished) == 1 {
			s.Stop()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	t.Fatal("round-robin process did not finish within the deadline")
}
