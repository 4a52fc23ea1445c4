// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

// threadBuffer is the per-goroutine event ring. It is written by exactly
// one goroutine; the snapshotter only reads slots whose committed flag it
// observes as 1. All other fields are owned by the writing goroutine, apart
// from next/tid which are immutable after registration.
type threadBuffer struct {
	next *threadBuffer // registry chain, immutable once linked
	tid  uint64

	seq          uint64 // per-ring sequence, never resets
	threadName   string
	sortIndex    int
	pendingColor string // one-shot color hint for the next reserved slot

	events  []event
	head    uint32
	wrapped bool
}

func newThreadBuffer(tid uint64, capacity int) *threadBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &threadBuffer{
		tid:    tid,
		events: make([]event, capacity),
	}
}

// reserve claims the next slot: advances the head (latching wrapped on
// wrap-around), bumps the sequence counter, clears the slot's dynamic
// fields and moves a pending color hint into it. The commit flag is zeroed
// before any field is written so a concurrent snapshot skips the slot.
func (tb *threadBuffer) reserve() *event {
	idx := tb.head
	tb.head++
	if tb.head >= uint32(len(tb.events)) {
		tb.head = 0
		tb.wrapped = true
	}
	e := &tb.events[idx]
	e.committed.Store(0)
	tb.seq++
	e.seq = tb.seq
	e.argc = 0
	e.dur = 0
	e.flowID = 0
	e.nlen = 0
	e.clen = 0
	if tb.pendingColor != "" {
		e.cnlen = putBounded(e.cname[:], tb.pendingColor)
		tb.pendingColor = ""
	} else {
		e.cnlen = 0
	}
	return e
}

// commitEvent publishes a filled slot to snapshot readers.
func commitEvent(e *event) {
	e.committed.Store(1)
}

// committedRange returns the start index and count of the slots that may
// hold committed events: [0, head) before the first wrap, the full ring
// starting at head afterwards.
func (tb *threadBuffer) committedRange() (start, count uint32) {
	if tb.wrapped {
		return tb.head, uint32(len(tb.events))
	}
	return 0, tb.head
}
