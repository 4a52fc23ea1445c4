// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import (
	"sort"
	"time"
)

// cleanArg and cleanEvent are the copy-friendly forms used for sorting,
// synthesis and serialization, detached from the rings' atomics.
type cleanArg struct {
	key  string
	kind argKind
	num  float64
	str  string
}

type cleanEvent struct {
	ts     uint64
	dur    uint64
	seq    uint64
	flowID uint64
	pid    uint32
	tid    uint64
	ph     Phase
	name   string
	cat    string
	cname  string
	args   []cleanArg
}

func cleanFrom(src *event) cleanEvent {
	ce := cleanEvent{
		ts:     src.ts,
		dur:    src.dur,
		seq:    src.seq,
		flowID: src.flowID,
		pid:    src.pid,
		tid:    src.tid,
		ph:     src.ph,
		name:   string(src.name[:src.nlen]),
		cat:    string(src.cat[:src.clen]),
		cname:  string(src.cname[:src.cnlen]),
	}
	if src.argc > 0 {
		ce.args = make([]cleanArg, src.argc)
		for i := uint8(0); i < src.argc; i++ {
			a := &src.args[i]
			ce.args[i] = cleanArg{
				key:  string(a.key[:a.klen]),
				kind: a.kind,
				num:  a.num,
				str:  string(a.str[:a.slen]),
			}
		}
	}
	return ce
}

// collect walks the registry chain and copies out every committed slot,
// then appends synthetic metadata rows (ts=0 so they sort to the front)
// from each buffer's thread name and sort index, and the process name.
func (r *registry) collect() []cleanEvent {
	out := make([]cleanEvent, 0, 4096)
	pid := r.pid.Load()
	for tb := r.head.Load(); tb != nil; tb = tb.next {
		start, count := tb.committedRange()
		capacity := uint32(len(tb.events))
		for i := uint32(0); i < count; i++ {
			idx := start + i
			if idx >= capacity {
				idx -= capacity
			}
			src := &tb.events[idx]
			if src.committed.Load() == 0 {
				// in-flight slot; skip
				continue
			}
			out = append(out, cleanFrom(src))
		}
		if tb.threadName != "" {
			out = append(out, cleanEvent{
				pid:  pid,
				tid:  tb.tid,
				ph:   PhaseThreadName,
				name: tb.threadName,
			})
		}
		if tb.sortIndex != 0 {
			out = append(out, cleanEvent{
				pid:  pid,
				tid:  tb.tid,
				ph:   PhaseThreadSortIndex,
				args: []cleanArg{{key: "sort_index", kind: argNumber, num: float64(tb.sortIndex)}},
			})
		}
	}
	if name, ok := r.processName.Load().(string); ok && name != "" {
		out = append(out, cleanEvent{
			pid:  pid,
			ph:   PhaseProcessName,
			name: name,
		})
	}
	return out
}

// sortEvents establishes the determinism contract: a stable sort by
// (ts, tid, seq). Identical inputs serialize to identical files.
func sortEvents(evs []cleanEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		a, b := &evs[i], &evs[j]
		if a.ts != b.ts {
			return a.ts < b.ts
		}
		if a.tid != b.tid {
			return a.tid < b.tid
		}
		return a.seq < b.seq
	})
}

// flush snapshots the rings and hands the sorted events to the writer.
// Recording is suppressed (not interrupted) for the duration; the previous
// enabled state is restored on every path, including failures.
func (r *registry) flush(path string) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	prev := r.enabled.Swap(false)
	defer r.enabled.Store(prev)

	t0 := time.Now()
	evs := r.collect()
	sortEvents(evs)
	cfg := r.cfg.Load()
	if cfg.synthesis {
		evs = append(evs, synthesize(evs, cfg, r.pid.Load())...)
		sortEvents(evs)
	}

	var err error
	if path == "" && cfg.pattern != "" {
		err = r.writeRotated(cfg, evs)
	} else {
		if path == "" {
			path = cfg.outputPath
		}
		err = writeSingle(path, evs)
	}
	if err != nil {
		r.statsd.Incr("otrace.flush.errors", nil, 1)
		return err
	}
	r.statsd.Incr("otrace.flush", nil, 1)
	r.statsd.Count("otrace.flush.events", int64(len(evs)), nil, 1)
	r.statsd.Timing("otrace.flush.duration", time.Since(t0), nil, 1)
	return nil
}

// Flush snapshots all committed events and writes them to the configured
// destination (single file or rotation series). It runs synchronously on
// the calling goroutine. Failures restore the recorder's state and are
// returned; the host is never aborted.
func Flush() error {
	return reg().flush("")
}

// FlushTo is Flush with an explicit single-file destination, ignoring any
// rotation configuration for this one snapshot.
func FlushTo(path string) error {
	if path == "" {
		return Flush()
	}
	return reg().flush(path)
}
