// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import (
	"time"

	"github.com/DimitryQm/otrace-go/internal/gls"
	"github.com/DimitryQm/otrace-go/internal/log"
)

// fillCommon stamps the freshly reserved slot with the fields every phase
// shares. The pid is re-read on every emit so the recorder stays correct
// after a fork.
func (r *registry) fillCommon(e *event, tb *threadBuffer, ph Phase, name, cat string) {
	e.ts = timeNow()
	e.pid = r.refreshPID()
	e.tid = tb.tid
	e.ph = ph
	e.nlen = putBounded(e.name[:], name)
	e.clen = putBounded(e.cat[:], cat)
}

// attachPairs walks a variadic key/value list. Keys must be strings;
// numeric, boolean and string values are accepted. A trailing unpaired
// token and pairs past the argument slot count are silently dropped.
func attachPairs(e *event, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			log.Debug("dropping argument pair with non-string key %v", kv[i])
			continue
		}
		if f, ok := toFloat64(kv[i+1]); ok {
			e.addNumber(key, f)
		} else if s, ok := kv[i+1].(string); ok {
			e.addString(key, s)
		} else {
			log.Debug("dropping argument %q with unsupported value type", key)
		}
	}
}

// emit runs the shared emitter skeleton: re-entry guard, admission gate,
// slot reservation, common fields, phase-specific fill, commit.
func emit(ph Phase, name, cat string, fill func(*event)) {
	r := reg()
	g := gls.Get()
	if g.InTracer {
		return
	}
	g.InTracer = true
	if r.admit(g, ph, name, cat) {
		tb := r.buffer(g)
		e := tb.reserve()
		r.fillCommon(e, tb, ph, name, cat)
		if fill != nil {
			fill(e)
		}
		commitEvent(e)
	}
	g.InTracer = false
}

// Begin opens a duration slice. The matching End is the caller's
// responsibility; the recorder does not pair them.
func Begin(name string) {
	emit(PhaseBegin, name, "", nil)
}

// BeginCat is Begin with a category.
func BeginCat(name, cat string) {
	emit(PhaseBegin, name, cat, nil)
}

// End closes a duration slice previously opened with Begin.
func End(name string) {
	emit(PhaseEnd, name, "", nil)
}

// EndCat is End with a category.
func EndCat(name, cat string) {
	emit(PhaseEnd, name, cat, nil)
}

// Instant records a point-in-time marker. Optional arguments are given as
// alternating key/value pairs: Instant("tick", "phase", 42, "src", "net").
func Instant(name string, kv ...interface{}) {
	emit(PhaseInstant, name, "", func(e *event) { attachPairs(e, kv) })
}

// InstantCat is Instant with a category.
func InstantCat(name, cat string, kv ...interface{}) {
	emit(PhaseInstant, name, cat, func(e *event) { attachPairs(e, kv) })
}

// Counter samples a single counter series under the event's own name.
func Counter(name string, value float64) {
	emit(PhaseCounter, name, "", func(e *event) { e.addNumber(name, value) })
}

// CounterCat samples a counter with a category and explicit series given
// as key/value pairs. A counter without a numeric argument falls back to a
// single series named after the event with value 0.
func CounterCat(name, cat string, kv ...interface{}) {
	emit(PhaseCounter, name, cat, func(e *event) {
		attachPairs(e, kv)
		ensureCounterSeries(e, name)
	})
}

// CounterSeries samples a multi-series counter, one timeline band per key.
func CounterSeries(name string, kv ...interface{}) {
	CounterCat(name, "", kv...)
}

func ensureCounterSeries(e *event, name string) {
	for i := uint8(0); i < e.argc; i++ {
		if e.args[i].kind == argNumber {
			return
		}
	}
	e.addNumber(name, 0)
}

// Complete records a self-contained slice of the given duration. Like every
// emitter it stamps ts with the current time, so ts marks the call, not the
// start of the measured work. Negative durations clamp to zero.
func Complete(name string, dur time.Duration) {
	CompleteCat(name, "", dur)
}

// CompleteCat is Complete with a category.
func CompleteCat(name, cat string, dur time.Duration) {
	us := dur.Microseconds()
	if us < 0 {
		us = 0
	}
	emit(PhaseComplete, name, cat, func(e *event) { e.dur = uint64(us) })
}

// FlowStart opens a flow: a chain of events sharing an id that expresses
// causality across goroutines. Use FlowID to mint ids.
func FlowStart(id uint64) {
	emitFlow(PhaseFlowStart, id, "", "")
}

// FlowStep marks an intermediate hop of a flow.
func FlowStep(id uint64) {
	emitFlow(PhaseFlowStep, id, "", "")
}

// FlowEnd closes a flow.
func FlowEnd(id uint64) {
	emitFlow(PhaseFlowEnd, id, "", "")
}

// FlowStartNamed is FlowStart with an explicit name and category.
func FlowStartNamed(id uint64, name, cat string) {
	emitFlow(PhaseFlowStart, id, name, cat)
}

// FlowStepNamed is FlowStep with an explicit name and category.
func FlowStepNamed(id uint64, name, cat string) {
	emitFlow(PhaseFlowStep, id, name, cat)
}

// FlowEndNamed is FlowEnd with an explicit name and category.
func FlowEndNamed(id uint64, name, cat string) {
	emitFlow(PhaseFlowEnd, id, name, cat)
}

func emitFlow(ph Phase, id uint64, name, cat string) {
	if name == "" {
		name = "flow"
	}
	if cat == "" {
		cat = "flow"
	}
	emit(ph, name, cat, func(e *event) { e.flowID = id })
}

// MarkFrame records a frame boundary carrying the frame index. Frame
// instants feed the fps synthesis track.
func MarkFrame(idx int) {
	emit(PhaseInstant, "frame", "frame", func(e *event) { e.addNumber("frame", float64(idx)) })
}

// MarkFrameLabel records a labeled frame boundary.
func MarkFrameLabel(label string) {
	emit(PhaseInstant, "frame", "frame", func(e *event) { e.addString("label", label) })
}

// SetThreadName names the calling goroutine's timeline row. The name is
// kept on the buffer (re-emitted as metadata on every snapshot) and, when
// admitted, also recorded inline.
func SetThreadName(name string) {
	r := reg()
	g := gls.Get()
	if g.InTracer {
		return
	}
	g.InTracer = true
	tb := r.buffer(g)
	tb.threadName = name
	if r.admit(g, PhaseThreadName, name, "") {
		e := tb.reserve()
		r.fillCommon(e, tb, PhaseThreadName, name, "")
		commitEvent(e)
	}
	g.InTracer = false
}

// SetThreadSortIndex orders the calling goroutine's row in the viewer.
func SetThreadSortIndex(idx int) {
	r := reg()
	g := gls.Get()
	if g.InTracer {
		return
	}
	g.InTracer = true
	tb := r.buffer(g)
	tb.sortIndex = idx
	if r.admit(g, PhaseThreadSortIndex, "", "") {
		e := tb.reserve()
		r.fillCommon(e, tb, PhaseThreadSortIndex, "", "")
		e.addNumber("sort_index", float64(idx))
		commitEvent(e)
	}
	g.InTracer = false
}

// SetProcessName names the process's timeline group.
func SetProcessName(name string) {
	r := reg()
	r.processName.Store(name)
	emit(PhaseProcessName, name, "", nil)
}

// SetNextColor sets a one-shot color hint consumed by the calling
// goroutine's next recorded event.
func SetNextColor(cname string) {
	if cname == "" {
		return
	}
	r := reg()
	g := gls.Get()
	if g.InTracer {
		return
	}
	g.InTracer = true
	r.buffer(g).pendingColor = cname
	g.InTracer = false
}

// Scope is a timestamped region opened by StartScope. Its End emits a
// Complete event covering the region on every exit path:
//
//	defer tracer.StartScope("load").End()
//
// Admission is decided at entry; a denied scope emits nothing at exit.
type Scope struct {
	name     string
	cat      string
	argKey   string
	argVal   float64
	hasArg   bool
	t0       uint64
	admitted bool
}

// StartScope opens a scope ending in a Complete event.
func StartScope(name string) Scope {
	return startScope(name, "")
}

// StartScopeCat is StartScope with a category.
func StartScopeCat(name, cat string) Scope {
	return startScope(name, cat)
}

// StartZone opens a scope under the "zone" category.
func StartZone(name string) Scope {
	return startScope(name, "zone")
}

func startScope(name, cat string) Scope {
	r := reg()
	g := gls.Get()
	s := Scope{name: name, cat: cat}
	if g.InTracer {
		return s
	}
	g.InTracer = true
	s.admitted = r.admit(g, PhaseComplete, name, cat)
	g.InTracer = false
	if s.admitted {
		s.t0 = timeNow()
	}
	return s
}

// WithArg attaches a numeric argument to the Complete event the scope will
// emit.
func (s Scope) WithArg(key string, val float64) Scope {
	s.argKey = key
	s.argVal = val
	s.hasArg = true
	return s
}

// End closes the scope. It is safe to call on a denied scope.
func (s Scope) End() {
	if !s.admitted {
		return
	}
	r := reg()
	g := gls.Get()
	if g.InTracer || !r.enabled.Load() {
		return
	}
	g.InTracer = true
	tb := r.buffer(g)
	e := tb.reserve()
	r.fillCommon(e, tb, PhaseComplete, s.name, s.cat)
	// stamped at exit like every other event; backdating ts to t0 would
	// reorder the slice ahead of events recorded inside the scope
	if e.ts > s.t0 {
		e.dur = e.ts - s.t0
	}
	if s.hasArg {
		e.addNumber(s.argKey, s.argVal)
	}
	commitEvent(e)
	g.InTracer = false
}
