// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import "sync/atomic"

// Phase identifies the kind of a recorded event. It maps onto the "ph"
// field of the Chrome Trace Event format.
type Phase uint8

const (
	// PhaseBegin opens a duration slice ("B").
	PhaseBegin Phase = iota
	// PhaseEnd closes a duration slice ("E").
	PhaseEnd
	// PhaseComplete is a self-contained slice with a duration ("X").
	PhaseComplete
	// PhaseInstant is a point-in-time marker ("I").
	PhaseInstant
	// PhaseCounter is a sampled counter value ("C").
	PhaseCounter
	// PhaseThreadName is the thread-name metadata event ("M").
	PhaseThreadName
	// PhaseProcessName is the process-name metadata event ("M").
	PhaseProcessName
	// PhaseThreadSortIndex is the thread-ordering metadata event ("M").
	PhaseThreadSortIndex
	// PhaseFlowStart opens a cross-goroutine flow ("s").
	PhaseFlowStart
	// PhaseFlowStep marks an intermediate flow hop ("t").
	PhaseFlowStep
	// PhaseFlowEnd closes a flow ("f").
	PhaseFlowEnd
)

// letter returns the wire representation of the phase.
func (p Phase) letter() byte {
	switch p {
	case PhaseBegin:
		return 'B'
	case PhaseEnd:
		return 'E'
	case PhaseComplete:
		return 'X'
	case PhaseInstant:
		return 'I'
	case PhaseCounter:
		return 'C'
	case PhaseThreadName, PhaseProcessName, PhaseThreadSortIndex:
		return 'M'
	case PhaseFlowStart:
		return 's'
	case PhaseFlowStep:
		return 't'
	case PhaseFlowEnd:
		return 'f'
	}
	return 'I'
}

// isMetadata reports whether p is one of the "M" metadata phases.
func (p Phase) isMetadata() bool {
	return p == PhaseThreadName || p == PhaseProcessName || p == PhaseThreadSortIndex
}

// isFlow reports whether p is one of the flow phases.
func (p Phase) isFlow() bool {
	return p == PhaseFlowStart || p == PhaseFlowStep || p == PhaseFlowEnd
}

// Bounded string lengths and the argument slot count of an event record.
// Everything is sized at compile time so that a slot never allocates.
const (
	maxName   = 64
	maxCat    = 32
	maxArgKey = 32
	maxArgVal = 64
	maxColor  = 16
	maxArgs   = 4
)

type argKind uint8

const (
	argNone argKind = iota
	argNumber
	argString
)

// eventArg is one argument slot: a bounded key plus a tagged value.
type eventArg struct {
	key  [maxArgKey]byte
	str  [maxArgVal]byte
	num  float64
	klen uint8
	slen uint8
	kind argKind
}

// event is the fixed-size record stored in a ring slot. The committed flag
// is the only field with cross-goroutine visibility rules: the owner stores
// 0 on reserve and 1 on commit; the snapshotter skips slots it observes
// as 0.
type event struct {
	ts     uint64 // microseconds since the process-local epoch
	dur    uint64 // Complete only
	seq    uint64 // per-ring monotonic sequence
	flowID uint64 // flow phases only
	pid    uint32
	tid    uint64
	ph     Phase
	nlen   uint8
	clen   uint8
	cnlen  uint8
	argc   uint8
	name   [maxName]byte
	cat    [maxCat]byte
	cname  [maxColor]byte
	args   [maxArgs]eventArg

	committed atomic.Uint32
}

// putBounded copies s into dst, truncating at the buffer bound, and returns
// the stored length.
func putBounded(dst []byte, s string) uint8 {
	n := copy(dst, s)
	return uint8(n)
}

// addNumber appends a numeric argument. Slots past maxArgs are silently
// dropped.
func (e *event) addNumber(key string, val float64) {
	if key == "" || e.argc >= maxArgs {
		return
	}
	a := &e.args[e.argc]
	e.argc++
	a.klen = putBounded(a.key[:], key)
	a.kind = argNumber
	a.num = val
	a.slen = 0
}

// addString appends a string argument. Slots past maxArgs are silently
// dropped.
func (e *event) addString(key, val string) {
	if key == "" || e.argc >= maxArgs {
		return
	}
	a := &e.args[e.argc]
	e.argc++
	a.klen = putBounded(a.key[:], key)
	a.kind = argString
	a.slen = putBounded(a.str[:], val)
	a.num = 0
}
