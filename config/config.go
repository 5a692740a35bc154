/*
 * kernelsim - Run configuration file parser
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

// Package config parses the run configuration file: one "<key> <value>"
// pair per line, '#' starts a comment, blank lines are ignored.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Scheduler policy names accepted in the "scheduler" key.
const (
	FCFS = "fcfs"
	RR   = "rr"
)

// Config holds every tunable for one run. Immutable once loaded.
type Config struct {
	NumCPU        int    // [1,128]
	Scheduler     string // fcfs or rr
	QuantumCycles int    // >= 1, only used by rr
	BatchFreq     int    // >= 1, ticks between auto-spawned processes
	MinIns        int    // minimum generated program length
	MaxIns        int    // maximum generated program length
	DelayPerExec  int    // ticks of pacing delay per executed step
	MaxOverallMem int    // bytes
	MemPerFrame   int    // bytes, power of two
	MinMemPerProc int    // bytes
	MaxMemPerProc int    // bytes
}

var required = []string{
	"numcpu", "scheduler", "quantumcycles", "batchfreq", "minins", "maxins",
	"delayperexec", "maxoverallmem", "memperframe", "minmemperproc", "maxmemperproc",
}

// LoadFile reads a configuration file from disk and validates it.
func LoadFile(name string) (Config, error) {
	file, err := os.Open(name)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	return Load(file)
}

// Load parses a configuration stream. Exported separately from LoadFile so
// tests can exercise it against an in-memory reader.
func Load(r io.Reader) (Config, error) {
	values := map[string]string{}
	reader := bufio.NewReader(r)
	lineNumber := 0

	for {
		line, err := reader.ReadString('\n')
		lineNumber++
		if len(line) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Config{}, err
		}

		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				break
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return Config{}, fmt.Errorf("config line %d: expected \"<key> <value>\", got %q", lineNumber, line)
		}
		values[strings.ToLower(fields[0])] = fields[1]

		if errors.Is(err, io.EOF) {
			break
		}
	}

	for _, key := range required {
		if _, ok := values[key]; !ok {
			return Config{}, fmt.Errorf("config missing required key %q", key)
		}
	}

	cfg := Config{}
	var perr error
	cfg.NumCPU, perr = parseInt(values, "numcpu", perr)
	cfg.QuantumCycles, perr = parseInt(values, "quantumcycles", perr)
	cfg.BatchFreq, perr = parseInt(values, "batchfreq", perr)
	cfg.MinIns, perr = parseInt(values, "minins", perr)
	cfg.MaxIns, perr = parseInt(values, "maxins", perr)
	cfg.DelayPerExec, perr = parseInt(values, "delayperexec", perr)
	cfg.MaxOverallMem, perr = parseInt(values, "maxoverallmem", perr)
	cfg.MemPerFrame, perr = parseInt(values, "memperframe", perr)
	cfg.MinMemPerProc, perr = parseInt(values, "minmemperproc", perr)
	cfg.MaxMemPerProc, perr = parseInt(values, "maxmemperproc", perr)
	if perr != nil {
		return Config{}, perr
	}

	cfg.Scheduler = strings.ToLower(values["scheduler"])
	if cfg.Scheduler != FCFS && cfg.Scheduler != RR {
		return Config{}, fmt.Errorf("config: scheduler must be %q or %q, got %q", FCFS, RR, cfg.Scheduler)
	}

	return cfg, cfg.validate()
}

func parseInt(values map[string]string, key string, prevErr error) (int, error) {
	if prevErr != nil {
		return 0, prevErr
	}
	n, err := strconv.Atoi(values[key])
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func (c Config) validate() error {
	switch {
	case c.NumCPU < 1 || c.NumCPU > 128:
		return errors.New("config: numCPU must be in [1,128]")
	case c.QuantumCycles < 1:
		return errors.New("config: quantumCycles must be >= 1")
	case c.BatchFreq < 1:
		return errors.New("config: batchFreq must be >= 1")
	case c.MinIns < 1 || c.MaxIns < c.MinIns:
		return errors.New("config: minIns/maxIns out of range")
	case c.DelayPerExec < 0:
		return errors.New("config: delayPerExec must be >= 0")
	case c.MemPerFrame <= 0 || c.MemPerFrame&(c.MemPerFrame-1) != 0:
		return errors.New("config: memPerFrame must be a power of two")
	case c.MaxOverallMem < c.MemPerFrame:
		return errors.New("config: maxOverallMem must be >= memPerFrame")
	case c.MinMemPerProc < 2 || c.MaxMemPerProc < c.MinMemPerProc:
		return errors.New("config: minMemPerProc/maxMemPerProc out of range")
	default:
		return nil
	}
}
