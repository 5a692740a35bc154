/*
 * kernelsim - Append-only backing store for evicted pages
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

// Package backingstore implements the swap file the memory manager evicts
// pages to: an append-only text file keyed by (process, page), where the
// last matching record for a key wins. No locking at this layer; callers
// (the memory manager) serialize access.
package backingstore

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Store is a file-backed key-value store of fixed-size word records.
type Store struct {
	path      string
	frameSize int // bytes per record; frameSize/2 uint16 words
}

// Open attaches to (creating if necessary) the backing store file at path.
func Open(path string, frameSize int) (*Store, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("backingstore: open %s: %w", path, err)
	}
	file.Close()
	return &Store{path: path, frameSize: frameSize}, nil
}

// Path returns the backing file's path.
func (s *Store) Path() string { return s.path }

// Write appends a record for (proc, page). Writes are retried once on I/O
// failure; a persistent failure is returned to the caller, who treats the
// swap-out as best-effort per the error-handling design.
func (s *Store) Write(proc string, page int, words []uint16) error {
	line := formatRecord(proc, page, words)
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.appendLine(line)
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("backingstore: write %s.%d: %w", proc, page, err)
}

func (s *Store) appendLine(line string) error {
	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.WriteString(line)
	return err
}

// Read scans for the last record matching (proc, page) and fills words
// with exactly frameSize/2 uint16 values. Returns false if no record
// exists, in which case the caller zero-fills.
func (s *Store) Read(proc string, page int, words []uint16) bool {
	file, err := os.Open(s.path)
	if err != nil {
		return false
	}
	defer file.Close()

	key := fmt.Sprintf("%s.%d:", proc, page)
	found := false
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, key) {
			continue
		}
		if parseRecord(line[len(key):], words) {
			found = true
		}
	}
	return found
}

func formatRecord(proc string, page int, words []uint16) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%d:", proc, page)
	for _, w := range words {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(w), 10))
	}
	b.WriteByte('\n')
	return b.String()
}

func parseRecord(rest string, words []uint16) bool {
	fields := strings.Fields(rest)
	if len(fields) != len(words) {
		return false
	}
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return false
		}
		words[i] = uint16(n)
	}
	return true
}
