/*
 * kernelsim - Statistics test set.
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

package stats

import (
	"path/filepath"
	"testing"

	"kernelsim/backingstore"
	"kernelsim/memory"
)

func TestCountersIncDec(t *testing.T) {
	c := NewCounters(4)
	c.IncTick()
	c.IncTick()
	c.IncActiveCores()
	c.IncActiveCores()
	c.DecActiveCores()

	if c.CPUTick() != 2 {
		t.Errorf("CPUTick: got %d, want 2", c.CPUTick())
	}
	if c.ActiveCores() != 1 {
		t.Errorf("ActiveCores: got %d, want 1", c.ActiveCores())
	}
}

func TestSnapshotComputesActiveAndIdleTicks(t *testing.T) {
	store, err := backingstore.Open(filepath.Join(t.TempDir(), "swap.store"), 8)
	if err != nil {
		t.Fatalf("backingstore.Open: %v", err)
	}
	mm := memory.New(32, 8, store)
	c := NewCounters(4)
	c.IncTick()
	c.IncTick()
	c.IncActiveCores()

	reg := NewRegistry(c, mm)
	snap := reg.Snapshot()

	if snap.CPUTick != 2 {
		t.Errorf("CPUTick: got %d, want 2", snap.CPUTick)
	}
	if snap.ActiveTicks != 2 {
		t.Errorf("ActiveTicks: got %d, want 2", snap.ActiveTicks)
	}
	if snap.IdleTicks != 6 {
		t.Errorf("IdleTicks: got %d, want 6 (4 cores * 2 ticks - 2 active)", snap.IdleTicks)
	}
	if snap.TotalFrames != 4 {
		t.Errorf("TotalFrames: got %d, want 4", snap.TotalFrames)
	}
}
