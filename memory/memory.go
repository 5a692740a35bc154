/*
 * kernelsim - Demand-paged memory manager
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

// Package memory implements the paged virtual memory subsystem: frame
// table, per-process page tables, fault handling, FIFO eviction, and
// bounds-checked word reads/writes over a backing store.
//
// The physical memory pool is a contiguous []uint16 of totalFrames *
// (memPerFrame/2) words, addressed as frameIndex*memPerFrame/2 + wordOffset.
//
// The manager owns its own mutex, independent of the scheduler's: the
// interpreter calls into the manager without the scheduler's lock held,
// and the scheduler's own calls into the manager never lead back into the
// scheduler, so no reentrant mutex is needed (Go's sync.Mutex is not one).
package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"kernelsim/backingstore"
	"kernelsim/isa"
)

// PageTableEntry is one entry in a process's page table.
type PageTableEntry struct {
	FrameIndex int // -1 if not resident
	Valid      bool
	Dirty      bool
}

// frame is one physical frame slot.
type frame struct {
	occupied bool
	owner    string
	page     int
}

// PageFaultError is raised when an access touches a page that is not
// resident. Recoverable: the caller services it and retries the access.
type PageFaultError struct {
	Proc string
	Addr uint32
}

func (e *PageFaultError) Error() string {
	return fmt.Sprintf("page fault: process %s address 0x%X", e.Proc, e.Addr)
}

// AccessViolationError is raised when an access is outside a process's
// allocated range, or the process is unknown. Terminal for the process.
type AccessViolationError struct {
	Proc string
	Addr uint32
}

func (e *AccessViolationError) Error() string {
	return fmt.Sprintf("access violation: process %s address 0x%X", e.Proc, e.Addr)
}

// Manager is the paged memory subsystem for one run. It is a standalone,
// owned object: it never references the scheduler.
type Manager struct {
	mu sync.Mutex

	frameSize int // bytes per frame
	wordsPer  int // frameSize / 2
	totalMem  int // bytes

	frames  []frame
	physMem []uint16

	pageTables     map[string][]PageTableEntry
	allocatedBytes map[string]int

	store *backingstore.Store

	pageFaults      atomic.Int64
	pagesSwappedIn  atomic.Int64
	pagesSwappedOut atomic.Int64
}

// New creates a memory manager with totalMem/frameSize frames, backed by
// store for evicted pages.
func New(totalMem, frameSize int, store *backingstore.Store) *Manager {
	totalFrames := totalMem / frameSize
	wordsPer := frameSize / 2
	return &Manager{
		frameSize:      frameSize,
		wordsPer:       wordsPer,
		totalMem:       totalMem,
		frames:         make([]frame, totalFrames),
		physMem:        make([]uint16, totalFrames*wordsPer),
		pageTables:     make(map[string][]PageTableEntry),
		allocatedBytes: make(map[string]int),
		store:          store,
	}
}

// Allocate creates size bytes of virtual memory for proc: a page table of
// ceil(size/frameSize) invalid entries, seeded with a zero backing-store
// record per page so future reads deterministically return zero. No
// frames are assigned at allocation time — allocation is lazy.
func (m *Manager) Allocate(proc string, size int) (numPages int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	numPages = (size + m.frameSize - 1) / m.frameSize
	table := make([]PageTableEntry, numPages)
	for i := range table {
		table[i].FrameIndex = -1
	}
	m.pageTables[proc] = table
	m.allocatedBytes[proc] = size

	zero := make([]uint16, m.wordsPer)
	for page := 0; page < numPages; page++ {
		if err := m.store.Write(proc, page, zero); err != nil {
			return numPages, err
		}
	}
	return numPages, nil
}

// Free releases every frame owned by proc and drops its page table.
func (m *Manager) Free(proc string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.frames {
		if m.frames[i].occupied && m.frames[i].owner == proc {
			m.frames[i] = frame{}
		}
	}
	delete(m.pageTables, proc)
	delete(m.allocatedBytes, proc)
}

// Read returns the uint16 word at addr in proc's address space.
func (m *Manager) Read(proc string, addr uint32) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.resolve(proc, addr)
	if err != nil {
		return 0, err
	}
	return m.physMem[idx], nil
}

// Write stores value at addr in proc's address space, marking the page
// dirty.
func (m *Manager) Write(proc string, addr uint32, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.resolve(proc, addr)
	if err != nil {
		return err
	}
	m.physMem[idx] = value
	page := int(addr) / m.frameSize
	table := m.pageTables[proc]
	table[page].Dirty = true
	return nil
}

// resolve validates addr against proc's allocation, returning the
// physical word index or PageFaultError/AccessViolationError. Caller
// holds m.mu.
func (m *Manager) resolve(proc string, addr uint32) (int, error) {
	size, ok := m.allocatedBytes[proc]
	if !ok || addr >= uint32(size) {
		return 0, &AccessViolationError{Proc: proc, Addr: addr}
	}

	page := int(addr) / m.frameSize
	wordOffset := (int(addr) % m.frameSize) / 2

	table := m.pageTables[proc]
	entry := table[page]
	if !entry.Valid {
		return 0, &PageFaultError{Proc: proc, Addr: addr}
	}
	return entry.FrameIndex*m.wordsPer + wordOffset, nil
}

// SymbolTableAddr is the fixed address of the per-process symbol table
// page. Hard-coded to 0 in the original source; retained as-is since
// nothing external configures it.
const SymbolTableAddr uint32 = 0

// EnsurePagesPresent is the interpreter's static pre-flight check: it
// signals (via PageFaultError) when an instruction would need a page that
// is not yet resident, without performing the fault service itself.
// DECLARE/ADD/SUBTRACT/PRINT only need the symbol-table page resident;
// READ/WRITE additionally need their operand address's page.
func (m *Manager) EnsurePagesPresent(proc string, ins isa.Instruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ins.Kind {
	case isa.DECLARE, isa.ADD, isa.SUBTRACT, isa.PRINT:
		return m.checkResident(proc, SymbolTableAddr)
	case isa.READ:
		if err := m.checkResident(proc, ins.Operands[1].Address); err != nil {
			return err
		}
		return m.checkResident(proc, SymbolTableAddr)
	case isa.WRITE:
		if err := m.checkResident(proc, ins.Operands[0].Address); err != nil {
			return err
		}
		return m.checkResident(proc, SymbolTableAddr)
	default:
		// SLEEP and other non-memory-touching instructions need no page.
		return nil
	}
}

func (m *Manager) checkResident(proc string, addr uint32) error {
	size, ok := m.allocatedBytes[proc]
	if !ok || addr >= uint32(size) {
		return &AccessViolationError{Proc: proc, Addr: addr}
	}
	page := int(addr) / m.frameSize
	table := m.pageTables[proc]
	if !table[page].Valid {
		return &PageFaultError{Proc: proc, Addr: addr}
	}
	return nil
}

// ServicePageFault loads proc's page for addr into a frame, evicting a
// victim if no frame is free. Victim selection is first-free, else
// first-occupied-in-index-order (a FIFO approximation of LRU) — the
// source's "LRU" eviction is actually FIFO by frame index, and that
// behavior is retained exactly rather than implemented as true LRU.
func (m *Manager) ServicePageFault(proc string, addr uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	size, ok := m.allocatedBytes[proc]
	if !ok || addr >= uint32(size) {
		return &AccessViolationError{Proc: proc, Addr: addr}
	}
	page := int(addr) / m.frameSize

	victim := m.pickVictim()
	if m.frames[victim].occupied {
		if err := m.evict(victim); err != nil {
			return err
		}
	}

	words := make([]uint16, m.wordsPer)
	if m.store.Read(proc, page, words) {
		m.pagesSwappedIn.Add(1)
	}
	copy(m.physMem[victim*m.wordsPer:(victim+1)*m.wordsPer], words)

	m.frames[victim] = frame{occupied: true, owner: proc, page: page}
	table := m.pageTables[proc]
	table[page] = PageTableEntry{FrameIndex: victim, Valid: true, Dirty: false}

	m.pageFaults.Add(1)
	return nil
}

// pickVictim scans frame indices in increasing order: first free frame,
// else the first occupied one. Caller holds m.mu.
func (m *Manager) pickVictim() int {
	for i := range m.frames {
		if !m.frames[i].occupied {
			return i
		}
	}
	return 0
}

// evict writes a dirty victim frame back to the backing store and
// invalidates its owning page table entry. Caller holds m.mu.
func (m *Manager) evict(victim int) error {
	f := m.frames[victim]
	table := m.pageTables[f.owner]
	entry := table[f.page]
	if entry.Dirty {
		words := make([]uint16, m.wordsPer)
		copy(words, m.physMem[victim*m.wordsPer:(victim+1)*m.wordsPer])
		if err := m.store.Write(f.owner, f.page, words); err != nil {
			return err
		}
		m.pagesSwappedOut.Add(1)
	}
	table[f.page] = PageTableEntry{FrameIndex: -1, Valid: false}
	return nil
}

// TotalFrames returns the frame pool size.
func (m *Manager) TotalFrames() int {
	return len(m.frames)
}

// UsedFrames returns the number of occupied frames.
func (m *Manager) UsedFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := 0
	for _, f := range m.frames {
		if f.occupied {
			used++
		}
	}
	return used
}

// FreeFrames returns the number of unoccupied frames.
func (m *Manager) FreeFrames() int {
	return m.TotalFrames() - m.UsedFrames()
}

// UsedBytes returns UsedFrames() * frameSize bytes.
func (m *Manager) UsedBytes() int {
	return m.UsedFrames() * m.frameSize
}

// AllocatedBytes returns the virtual size allocated to proc, if any.
func (m *Manager) AllocatedBytes(proc string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	size, ok := m.allocatedBytes[proc]
	return size, ok
}

func (m *Manager) PageFaults() int64      { return m.pageFaults.Load() }
func (m *Manager) PagesSwappedIn() int64  { return m.pagesSwappedIn.Load() }
func (m *Manager) PagesSwappedOut() int64 { return m.pagesSwappedOut.Load() }
