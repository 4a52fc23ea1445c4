// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package heaptrace

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/DimitryQm/otrace-go/internal/gls"
	"github.com/DimitryQm/otrace-go/otrace/tracer"
)

// shardCount splits the live-allocation map to spread mutex contention.
const shardCount = 64

// liveCounterIntervalUS throttles the heap_live_bytes counter events.
const liveCounterIntervalUS = 1_000_000

// entry describes one live allocation.
type entry struct {
	size uintptr
	site uint64 // callsite hash, 0 when unsampled
	ts   uint64
}

type shard struct {
	mu sync.Mutex
	m  map[uintptr]entry
}

// callsite aggregates every sampled allocation that shares a stack hash.
type callsite struct {
	totalBytes uint64
	allocs     uint64
	liveBytes  uint64
	liveCount  uint64
	stack      string // representative stack text, set by the first writer
}

var (
	enabled    atomic.Bool
	sampleBits atomic.Uint64 // float64 bits of the callsite sampling probability

	liveBytes   atomic.Int64
	totalAllocs atomic.Uint64
	totalFrees  atomic.Uint64

	shards [shardCount]shard

	sitesMu sync.Mutex
	sites   = make(map[uint64]*callsite)

	lastLiveEmitUS atomic.Uint64
)

func init() {
	for i := range shards {
		shards[i].m = make(map[uintptr]entry)
	}
}

// Enable turns the heap layer on. sampleRate is the probability, clamped
// into [0,1], that an allocation's callsite is captured and attributed.
func Enable(sampleRate float64) {
	SetSampleRate(sampleRate)
	enabled.Store(true)
}

// Disable turns the heap layer off. Existing accounting is retained.
func Disable() {
	enabled.Store(false)
}

// Enabled reports whether the heap layer records allocations.
func Enabled() bool {
	return enabled.Load()
}

// SetSampleRate changes the callsite sampling probability, clamped into
// [0,1].
func SetSampleRate(p float64) {
	if p < 0 || math.IsNaN(p) {
		p = 0
	} else if p > 1 {
		p = 1
	}
	sampleBits.Store(math.Float64bits(p))
}

func sampleRate() float64 {
	return math.Float64frombits(sampleBits.Load())
}

// LiveBytes returns the current total of live allocated bytes.
func LiveBytes() int64 {
	return liveBytes.Load()
}

// Totals returns the cumulative allocation and free counts.
func Totals() (allocs, frees uint64) {
	return totalAllocs.Load(), totalFrees.Load()
}

// RecordAlloc accounts for one successful allocation. Hosts call it from
// their allocator hook. Calls from inside the tracer or from inside
// another hook are no-ops.
func RecordAlloc(ptr, size uintptr) {
	if !enabled.Load() {
		return
	}
	g := gls.Get()
	if g.InTracer || g.InHook {
		return
	}
	g.InHook = true
	liveBytes.Add(int64(size))
	totalAllocs.Add(1)

	var site uint64
	if p := sampleRate(); p > 0 && (p >= 1 || g.Uniform() <= p) {
		site = siteHash()
	}

	sh := &shards[ptr%shardCount]
	sh.mu.Lock()
	sh.m[ptr] = entry{size: size, site: site, ts: tracer.NowMicros()}
	sh.mu.Unlock()

	if site != 0 {
		recordSite(site, size)
	}

	maybeEmitLiveCounter()
	g.InHook = false
}

// RecordFree accounts for one free. Unknown pointers (allocated before the
// layer was enabled, or double frees) are ignored.
func RecordFree(ptr uintptr) {
	if !enabled.Load() {
		return
	}
	g := gls.Get()
	if g.InTracer || g.InHook {
		return
	}
	g.InHook = true
	sh := &shards[ptr%shardCount]
	sh.mu.Lock()
	e, ok := sh.m[ptr]
	if ok {
		delete(sh.m, ptr)
	}
	sh.mu.Unlock()
	if ok {
		liveBytes.Add(-int64(e.size))
		totalFrees.Add(1)
		if e.site != 0 {
			sitesMu.Lock()
			if cs := sites[e.site]; cs != nil {
				cs.liveBytes -= uint64(e.size)
				cs.liveCount--
			}
			sitesMu.Unlock()
		}
	}
	maybeEmitLiveCounter()
	g.InHook = false
}

// maybeEmitLiveCounter publishes the live-bytes total as a trace counter at
// most once per second; a CAS on the last-emit timestamp elects the
// emitting goroutine.
func maybeEmitLiveCounter() {
	now := tracer.NowMicros()
	last := lastLiveEmitUS.Load()
	if now-last < liveCounterIntervalUS && last != 0 {
		return
	}
	if !lastLiveEmitUS.CompareAndSwap(last, now) {
		return
	}
	tracer.CounterCat("heap_live_bytes", "heap", "heap_live_bytes", float64(liveBytes.Load()))
}

// resetForTest clears all heap state.
func resetForTest() {
	enabled.Store(false)
	sampleBits.Store(0)
	liveBytes.Store(0)
	totalAllocs.Store(0)
	totalFrees.Store(0)
	for i := range shards {
		shards[i].mu.Lock()
		shards[i].m = make(map[uintptr]entry)
		shards[i].mu.Unlock()
	}
	sitesMu.Lock()
	sites = make(map[uint64]*callsite)
	sitesMu.Unlock()
	lastLiveEmitUS.Store(0)
}
