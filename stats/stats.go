/*
 * kernelsim - Scheduler and memory statistics
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

// Package stats tracks the scheduler's tick counters and exposes them,
// together with the memory manager's paging counters, as Prometheus
// collectors. The counters themselves are lock-free atomics; only the
// export path touches the memory manager, which does its own locking.
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"kernelsim/memory"
)

// Counters are the scheduler-owned tick statistics. Lock-free: the worker
// loops update these without holding the scheduler mutex.
type Counters struct {
	cpuTick     atomic.Int64
	activeCores atomic.Int64
	numCPU      int
}

// NewCounters creates a Counters for a run with the given core count.
func NewCounters(numCPU int) *Counters {
	return &Counters{numCPU: numCPU}
}

func (c *Counters) IncTick()            { c.cpuTick.Add(1) }
func (c *Counters) IncActiveCores()     { c.activeCores.Add(1) }
func (c *Counters) DecActiveCores()     { c.activeCores.Add(-1) }
func (c *Counters) CPUTick() int64      { return c.cpuTick.Load() }
func (c *Counters) ActiveCores() int64  { return c.activeCores.Load() }

// Snapshot is a point-in-time read of every statistic in the external
// statistics surface.
type Snapshot struct {
	CPUTick         int64
	ActiveTicks     int64
	IdleTicks       int64
	TotalFrames     int
	UsedFrames      int
	FreeFrames      int
	UsedBytes       int
	PageFaults      int64
	PagesSwappedIn  int64
	PagesSwappedOut int64
}

// Registry composes the scheduler's tick counters with the memory
// manager's paging counters and exposes both to Prometheus.
type Registry struct {
	counters *Counters
	mm       *memory.Manager

	cpuTickDesc      *prometheus.Desc
	activeTicksDesc  *prometheus.Desc
	idleTicksDesc    *prometheus.Desc
	usedFramesDesc   *prometheus.Desc
	freeFramesDesc   *prometheus.Desc
	usedBytesDesc    *prometheus.Desc
	pageFaultsDesc   *prometheus.Desc
	swappedInDesc    *prometheus.Desc
	swappedOutDesc   *prometheus.Desc
}

// NewRegistry wires a Prometheus-exportable view over counters and mm.
func NewRegistry(counters *Counters, mm *memory.Manager) *Registry {
	return &Registry{
		counters:        counters,
		mm:              mm,
		cpuTickDesc:     prometheus.NewDesc("kernelsim_cpu_tick_total", "Total worker-loop ticks across all cores.", nil, nil),
		activeTicksDesc: prometheus.NewDesc("kernelsim_active_ticks_total", "Estimated active ticks across all cores.", nil, nil),
		idleTicksDesc:   prometheus.NewDesc("kernelsim_idle_ticks_total", "Estimated idle ticks across all cores.", nil, nil),
		usedFramesDesc:  prometheus.NewDesc("kernelsim_frames_used", "Occupied physical frames.", nil, nil),
		freeFramesDesc:  prometheus.NewDesc("kernelsim_frames_free", "Free physical frames.", nil, nil),
		usedBytesDesc:   prometheus.NewDesc("kernelsim_memory_used_bytes", "Bytes of physical memory in use.", nil, nil),
		pageFaultsDesc:  prometheus.NewDesc("kernelsim_page_faults_total", "Page faults serviced.", nil, nil),
		swappedInDesc:   prometheus.NewDesc("kernelsim_pages_swapped_in_total", "Pages read back from the backing store.", nil, nil),
		swappedOutDesc:  prometheus.NewDesc("kernelsim_pages_swapped_out_total", "Pages written out to the backing store.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.cpuTickDesc
	ch <- r.activeTicksDesc
	ch <- r.idleTicksDesc
	ch <- r.usedFramesDesc
	ch <- r.freeFramesDesc
	ch <- r.usedBytesDesc
	ch <- r.pageFaultsDesc
	ch <- r.swappedInDesc
	ch <- r.swappedOutDesc
}

// Collect implements prometheus.Collector.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	snap := r.Snapshot()
	ch <- prometheus.MustNewConstMetric(r.cpuTickDesc, prometheus.CounterValue, float64(snap.CPUTick))
	ch <- prometheus.MustNewConstMetric(r.activeTicksDesc, prometheus.CounterValue, float64(snap.ActiveTicks))
	ch <- prometheus.MustNewConstMetric(r.idleTicksDesc, prometheus.CounterValue, float64(snap.IdleTicks))
	ch <- prometheus.MustNewConstMetric(r.usedFramesDesc, prometheus.GaugeValue, float64(snap.UsedFrames))
	ch <- prometheus.MustNewConstMetric(r.freeFramesDesc, prometheus.GaugeValue, float64(snap.FreeFrames))
	ch <- prometheus.MustNewConstMetric(r.usedBytesDesc, prometheus.GaugeValue, float64(snap.UsedBytes))
	ch <- prometheus.MustNewConstMetric(r.pageFaultsDesc, prometheus.CounterValue, float64(snap.PageFaults))
	ch <- prometheus.MustNewConstMetric(r.swappedInDesc, prometheus.CounterValue, float64(snap.PagesSwappedIn))
	ch <- prometheus.MustNewConstMetric(r.swappedOutDesc, prometheus.CounterValue, float64(snap.PagesSwappedOut))
}

// Snapshot reads every statistic once. activeTicks is an estimate:
// cpuTick times the active-cores estimate at read time.
func (r *Registry) Snapshot() Snapshot {
	tick := r.counters.CPUTick()
	active := r.counters.ActiveCores()
	activeTicks := tick * active
	idleTicks := tick*int64(r.counters.numCPU) - activeTicks

	return Snapshot{
		CPUTick:         tick,
		ActiveTicks:     activeTicks,
		IdleTicks:       idleTicks,
		TotalFrames:     r.mm.TotalFrames(),
		UsedFrames:      r.mm.UsedFrames(),
		FreeFrames:      r.mm.FreeFrames(),
		UsedBytes:       r.mm.UsedBytes(),
		PageFaults:      r.mm.PageFaults(),
		PagesSwappedIn:  r.mm.PagesSwappedIn(),
		PagesSwappedOut: r.mm.PagesSwappedOut(),
	}
}
