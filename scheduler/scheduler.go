/*
 * kernelsim - Multi-core process scheduler
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

// Package scheduler dispatches processes across a fixed number of worker
// goroutines under an FCFS or round-robin policy, admitting new processes
// against the memory manager's physical frame occupancy and retrying
// admissions that didn't fit on a fixed interval. Admission checks the
// manager's resident-page footprint rather than declared process size,
// so demand paging can overcommit: a process is admitted so long as its
// touched pages fit, even if its declared size would not. The scheduler
// owns a mutex entirely separate from the memory manager's: the two
// guard disjoint state, so no call sequence needs a reentrant lock.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"kernelsim/config"
	"kernelsim/interpreter"
	"kernelsim/isa"
	"kernelsim/memory"
	"kernelsim/process"
	"kernelsim/stats"
)

// Scheduler owns the process table, the ready and admission-retry queues,
// and the worker/generator/retry goroutines that drive them.
type Scheduler struct {
	cfg      config.Config
	mm       *memory.Manager
	interp   *interpreter.Interpreter
	counters *stats.Counters
	tickUnit time.Duration

	mu             sync.Mutex
	processTable   map[string]*process.PCB
	readyQueue     []string
	retryQueue     []string
	retrySize      map[string]int
	finished       []string
	totalAllocated int
	nextID         int

	running   atomic.Bool
	accepting atomic.Bool

	quit     chan struct{}
	genQuit  chan struct{}
	quitOnce sync.Once
	genOnce  sync.Once
	wg       sync.WaitGroup

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a scheduler. tickUnit scales one abstract scheduling tick
// (a quantum slice, a generator period) into a real delay.
func New(cfg config.Config, mm *memory.Manager, interp *interpreter.Interpreter, counters *stats.Counters, tickUnit time.Duration) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		mm:           mm,
		interp:       interp,
		counters:     counters,
		tickUnit:     tickUnit,
		processTable: make(map[string]*process.PCB),
		retrySize:    make(map[string]int),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start launches the worker pool, the process generator, and the
// admission-retry loop. A no-op if already running.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.accepting.Store(true)
	s.quit = make(chan struct{})
	s.genQuit = make(chan struct{})
	s.quitOnce = sync.Once{}
	s.genOnce = sync.Once{}

	for i := 0; i < s.cfg.NumCPU; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
	s.wg.Add(1)
	go s.generatorLoop()
	s.wg.Add(1)
	go s.retryLoop()
}

// StopProcessGeneration halts the automatic generator without touching
// the worker pool: in-flight and queued processes still run to
// completion. Safe to call multiple times and before Stop.
func (s *Scheduler) StopProcessGeneration() {
	s.accepting.Store(false)
	s.genOnce.Do(func() {
		close(s.genQuit)
	})
}

// Stop halts process generation and the worker pool, joining every
// goroutine or giving up after a bounded timeout.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.StopProcessGeneration()
	s.quitOnce.Do(func() {
		close(s.quit)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("scheduler: timed out waiting for workers to stop")
	}
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool { return s.running.Load() }

// IsAccepting reports whether new processes are currently admitted.
func (s *Scheduler) IsAccepting() bool { return s.accepting.Load() }

func (s *Scheduler) workerLoop(core int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		name, pcb, ok := s.popReady()
		if !ok {
			if s.sleepOrQuit(s.tickUnit) {
				return
			}
			s.counters.IncTick()
			continue
		}

		if !pcb.Acquire() {
			// A name only ever sits in one queue at a time; this would
			// mean two workers popped the same process concurrently.
			slog.Error("scheduler: process already running on another core", "name", name)
			s.mu.Lock()
			s.readyQueue = append(s.readyQueue, name)
			s.mu.Unlock()
			continue
		}

		s.counters.IncActiveCores()
		s.runSlice(pcb, core)
		s.counters.DecActiveCores()
		pcb.Release()

		s.mu.Lock()
		if pcb.IsFinished {
			s.mm.Free(name)
			s.totalAllocated -= pcb.AllocatedBytes
			s.finished = append(s.finished, name)
		} else {
			s.readyQueue = append(s.readyQueue, name)
		}
		s.mu.Unlock()

		if s.sleepOrQuit(s.pacingDelay()) {
			return
		}
		s.counters.IncTick()
	}
}

// runSlice executes pcb for one scheduling slice: a single quantum of
// Advanced steps under round robin (a Retry is re-attempted immediately
// and does not count against the quantum), or to completion under FCFS.
func (s *Scheduler) runSlice(pcb *process.PCB, core int) {
	switch s.cfg.Scheduler {
	case config.RR:
		executed := 0
		for executed < s.cfg.QuantumCycles && !pcb.IsFinished {
			outcome, _ := s.interp.StepOnce(pcb, core)
			if outcome == interpreter.Retry {
				continue
			}
			executed++
		}
	default: // config.FCFS
		for !pcb.IsFinished {
			s.interp.StepOnce(pcb, core)
		}
	}
}

func (s *Scheduler) pacingDelay() time.Duration {
	return s.tickUnit * time.Duration(s.cfg.DelayPerExec)
}

// sleepOrQuit waits for d or for the scheduler-wide quit signal,
// whichever comes first, reporting whether quit fired.
func (s *Scheduler) sleepOrQuit(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.quit:
			return true
		default:
			return false
		}
	}
	select {
	case <-s.quit:
		return true
	case <-time.After(d):
		return false
	}
}

func (s *Scheduler) sleepOrGenQuit(d time.Duration) bool {
	select {
	case <-s.genQuit:
		return true
	case <-time.After(d):
		return false
	}
}

func (s *Scheduler) popReady() (string, *process.PCB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.readyQueue) == 0 {
		return "", nil, false
	}
	name := s.readyQueue[0]
	s.readyQueue = s.readyQueue[1:]
	pcb, ok := s.processTable[name]
	return name, pcb, ok
}

// generatorLoop spawns one auto-named process every batchFreq ticks,
// stopping when StopProcessGeneration (or Stop) closes genQuit.
func (s *Scheduler) generatorLoop() {
	defer s.wg.Done()
	ticks := 0
	for {
		if s.sleepOrGenQuit(s.tickUnit) {
			return
		}
		ticks++
		if ticks < s.cfg.BatchFreq {
			continue
		}
		ticks = 0
		name := s.nextGeneratedName()
		if err := s.CreateNamedProcess(name); err != nil {
			slog.Debug("scheduler: generator could not admit process", "name", name, "err", err)
		}
	}
}

func (s *Scheduler) nextGeneratedName() string {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	return fmt.Sprintf("p%d", id)
}

// retryLoop re-attempts admission for the retry queue on a fixed period.
func (s *Scheduler) retryLoop() {
	defer s.wg.Done()
	const period = 100 * time.Millisecond
	for {
		if s.sleepOrQuit(period) {
			return
		}
		s.retryAdmissions()
	}
}

// retryAdmissions admits from the front of the retry queue for as long
// as entries fit against physical frame occupancy. The queue is strict
// FIFO head-of-line: a process that doesn't fit blocks everything queued
// behind it, even processes that would otherwise fit in the remaining
// budget.
func (s *Scheduler) retryAdmissions() {
	for {
		s.mu.Lock()
		if len(s.retryQueue) == 0 {
			s.mu.Unlock()
			return
		}
		name := s.retryQueue[0]
		size := s.retrySize[name]
		if s.mm.UsedBytes()+size > s.cfg.MaxOverallMem {
			s.mu.Unlock()
			return
		}
		s.retryQueue = s.retryQueue[1:]
		delete(s.retrySize, name)
		s.totalAllocated += size
		pcb := s.processTable[name]
		s.readyQueue = append(s.readyQueue, name)
		s.mu.Unlock()

		if pcb != nil {
			if _, err := s.mm.Allocate(name, size); err != nil {
				slog.Error("scheduler: late allocation failed", "name", name, "err", err)
			}
			pcb.AllocatedBytes = size
		}
	}
}

// CreateNamedProcess admits a process with a randomly generated program
// and memory footprint, sized within the configured bounds.
func (s *Scheduler) CreateNamedProcess(name string) error {
	progLen := s.randRange(s.cfg.MinIns, s.cfg.MaxIns)
	memSize := s.randRange(s.cfg.MinMemPerProc, s.cfg.MaxMemPerProc)

	pcb := process.New(name, time.Now())
	s.generateProgram(pcb, progLen, memSize)
	return s.admit(name, pcb, memSize)
}

// CreateNamedProcessWithInstructions admits a process with a caller-
// supplied program, validated instruction by instruction, and a randomly
// sized memory footprint within the configured bounds.
func (s *Scheduler) CreateNamedProcessWithInstructions(name string, instrs []isa.Instruction) error {
	if len(instrs) < 1 || len(instrs) > process.MaxUserInstructions {
		return fmt.Errorf("scheduler: program length must be in [1,%d], got %d", process.MaxUserInstructions, len(instrs))
	}
	for _, ins := range instrs {
		if err := isa.Validate(ins); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	memSize := s.randRange(s.cfg.MinMemPerProc, s.cfg.MaxMemPerProc)
	pcb := process.New(name, time.Now())
	for _, ins := range instrs {
		pcb.AddInstruction(ins)
	}
	return s.admit(name, pcb, memSize)
}

func (s *Scheduler) admit(name string, pcb *process.PCB, memSize int) error {
	s.mu.Lock()
	if !s.accepting.Load() {
		s.mu.Unlock()
		return errors.New("scheduler: not accepting new processes")
	}
	if _, exists := s.processTable[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: process %q already exists", name)
	}
	s.processTable[name] = pcb

	if s.mm.UsedBytes()+memSize <= s.cfg.MaxOverallMem {
		s.totalAllocated += memSize
		pcb.AllocatedBytes = memSize
		s.readyQueue = append(s.readyQueue, name)
		s.mu.Unlock()
		_, err := s.mm.Allocate(name, memSize)
		return err
	}

	s.retryQueue = append(s.retryQueue, name)
	s.retrySize[name] = memSize
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) generateProgram(pcb *process.PCB, count, addrSpace int) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	pcb.GenerateInstructions(count, addrSpace, s.rng)
}

func (s *Scheduler) randRange(min, max int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if max <= min {
		return min
	}
	return min + s.rng.Intn(max-min+1)
}

// GetProcess returns the PCB named name, if it exists.
func (s *Scheduler) GetProcess(name string) (*process.PCB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pcb, ok := s.processTable[name]
	return pcb, ok
}

// GetRunningProcesses returns the names of every process that has not
// yet terminated, sorted for deterministic reporting.
func (s *Scheduler) GetRunningProcesses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.processTable))
	for name, pcb := range s.processTable {
		if !pcb.IsFinished {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// GetFinishedProcesses returns the names of terminated processes in
// completion order.
func (s *Scheduler) GetFinishedProcesses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.finished))
	copy(out, s.finished)
	return out
}

// ReadyQueueLen reports how many processes are currently dispatchable.
func (s *Scheduler) ReadyQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readyQueue)
}

// RetryQueueLen reports how many processes are waiting on the admission
// budget.
func (s *Scheduler) RetryQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retryQueue)
}

// TotalAllocatedBytes reports the sum of declared (virtual) memory
// footprints currently admitted (running, ready, or mid-quantum). Not
// the admission gate: admission is checked against the memory manager's
// physical UsedBytes, since demand paging allows a process's declared
// size to exceed its currently resident pages.
func (s *Scheduler) TotalAllocatedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalAllocated
}
