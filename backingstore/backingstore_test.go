/*
 * kernelsim - Backing store test set.
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

package backingstore

import (
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "swap.store"), 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := []uint16{1, 2, 3, 4}
	if err := store.Write("p1", 0, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]uint16, 4)
	if !store.Read("p1", 0, got) {
		t.Fatal("Read: expected record to be found")
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Read: word %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestReadMissingKey(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "swap.store"), 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	words := make([]uint16, 4)
	if store.Read("nobody", 0, words) {
		t.Fatal("Read: expected false for missing key")
	}
}

func TestLastWriteWins(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "swap.store"), 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Write("p1", 2, []uint16{1, 1, 1, 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write("p1", 2, []uint16{9, 9, 9, 9}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]uint16, 4)
	if !store.Read("p1", 2, got) {
		t.Fatal("Read: expected record to be found")
	}
	if got[0] != 9 {
		t.Errorf("Read: got %d, want last-written value 9", got[0])
	}
}

func TestDistinctPagesDoNotCollide(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "swap.store"), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Write("p1", 0, []uint16{1, 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write("p1", 1, []uint16{2, 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]uint16, 2)
	if !store.Read("p1", 1, got) || got[0] != 2 {
		t.Errorf("Read: page 1 got %v, want [2 2]", got)
	}
	if !store.Read("p1", 0, got) || got[0] != 1 {
		t.Errorf("Read: page 0 got %v, want [1 1]", got)
	}
}
