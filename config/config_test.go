/*
 * kernelsim - Run configuration file parser test set.
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

package config

import (
	"strings"
	"testing"
)

const validConfig = `
# a comment line
numCPU 4
scheduler rr
quantumCycles 5
batchFreq 3
minIns 2
maxIns 10
delayPerExec 1
maxOverallMem 16384
memPerFrame 256
minMemPerProc 256
maxMemPerProc 4096
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(strings.NewReader(validConfig))
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if cfg.NumCPU != 4 || cfg.Scheduler != RR || cfg.QuantumCycles != 5 {
		t.Fatalf("Load: unexpected config: %+v", cfg)
	}
	if cfg.MaxOverallMem != 16384 || cfg.MemPerFrame != 256 {
		t.Fatalf("Load: unexpected memory config: %+v", cfg)
	}
}

func TestLoadMissingKey(t *testing.T) {
	broken := strings.Replace(validConfig, "quantumCycles 5\n", "", 1)
	if _, err := Load(strings.NewReader(broken)); err == nil {
		t.Fatal("Load: expected error for missing key")
	}
}

func TestLoadBadScheduler(t *testing.T) {
	broken := strings.Replace(validConfig, "scheduler rr", "scheduler roundrobin", 1)
	if _, err := Load(strings.NewReader(broken)); err == nil {
		t.Fatal("Load: expected error for invalid scheduler")
	}
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name string
		edit func(string) string
	}{
		{"numCPU too high", func(s string) string { return strings.Replace(s, "numCPU 4", "numCPU 200", 1) }},
		{"quantum zero", func(s string) string { return strings.Replace(s, "quantumCycles 5", "quantumCycles 0", 1) }},
		{"minIns over maxIns", func(s string) string { return strings.Replace(s, "minIns 2", "minIns 20", 1) }},
		{"memPerFrame not power of two", func(s string) string { return strings.Replace(s, "memPerFrame 256", "memPerFrame 300", 1) }},
		{"maxOverallMem below frame", func(s string) string { return strings.Replace(s, "maxOverallMem 16384", "maxOverallMem 10", 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.edit(validConfig))); err == nil {
				t.Fatalf("Load: expected validation error for %s", tt.name)
			}
		})
	}
}

func TestLoadMalformedLine(t *testing.T) {
	broken := validConfig + "\nnumCPU 4 8\n"
	if _, err := Load(strings.NewReader(broken)); err == nil {
		t.Fatal("Load: expected error for malformed line")
	}
}
