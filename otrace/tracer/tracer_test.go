// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimitryQm/otrace-go/internal/gls"
)

// resetForTest reinitializes the recorder with a fresh registry, fresh
// goroutine-local state and the given options.
func resetForTest(t *testing.T, opts ...StartOption) {
	t.Helper()
	gls.Reset()
	active.Store(nil)
	Start(opts...)
	t.Cleanup(func() {
		active.Store(nil)
		gls.Reset()
		timeNow = nowUS
	})
}

// traceDoc mirrors the output JSON for test parsing.
type traceDoc struct {
	TraceEvents     []map[string]interface{} `json:"traceEvents"`
	DisplayTimeUnit string                   `json:"displayTimeUnit"`
}

func flushAndParse(t *testing.T, path string) traceDoc {
	t.Helper()
	require.NoError(t, FlushTo(path))
	return parseTrace(t, path)
}

func parseTrace(t *testing.T, path string) traceDoc {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc traceDoc
	require.NoError(t, json.Unmarshal(b, &doc), "invalid JSON in %s", path)
	return doc
}

// eventsNamed filters parsed events by name.
func eventsNamed(doc traceDoc, name string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, ev := range doc.TraceEvents {
		if ev["name"] == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestInstantOrderSameTick(t *testing.T) {
	// two instants on the same goroutine at the same tick stay in program
	// order with strictly increasing sequence numbers
	resetForTest(t)
	timeNow = func() uint64 { return 1000 }
	Instant("A")
	Instant("B")
	timeNow = nowUS

	evs := collectSorted(t)
	var a, b *cleanEvent
	for i := range evs {
		switch evs[i].name {
		case "A":
			a = &evs[i]
		case "B":
			b = &evs[i]
		}
	}
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, uint64(1000), a.ts)
	assert.Equal(t, uint64(1000), b.ts)
	assert.Less(t, a.seq, b.seq)

	path := filepath.Join(t.TempDir(), "trace.json")
	doc := flushAndParse(t, path)
	ia, ib := -1, -1
	for i, ev := range doc.TraceEvents {
		switch ev["name"] {
		case "A":
			ia = i
		case "B":
			ib = i
		}
	}
	require.GreaterOrEqual(t, ia, 0)
	require.GreaterOrEqual(t, ib, 0)
	assert.Less(t, ia, ib)
}

func collectSorted(t *testing.T) []cleanEvent {
	t.Helper()
	evs := reg().collect()
	sortEvents(evs)
	return evs
}

func TestFlowAcrossGoroutines(t *testing.T) {
	resetForTest(t)
	const id = 0xC0FFEE

	FlowStart(id)
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(2 * time.Millisecond)
		FlowStep(id)
		time.Sleep(2 * time.Millisecond)
		FlowEnd(id)
	}()
	<-done

	path := filepath.Join(t.TempDir(), "trace.json")
	doc := flushAndParse(t, path)

	var phases []string
	for _, ev := range doc.TraceEvents {
		idv, ok := ev["id"].(float64)
		if !ok || uint64(idv) != id {
			continue
		}
		phases = append(phases, ev["ph"].(string))
		assert.Equal(t, "flow", ev["name"])
		assert.Equal(t, "flow", ev["cat"])
	}
	assert.Equal(t, []string{"s", "t", "f"}, phases)
}

func TestCategoryGate(t *testing.T) {
	resetForTest(t, WithAllowList("io,frame"), WithDenyList("debug"))
	InstantCat("a", "io")
	InstantCat("b", "debug")
	InstantCat("c", "frame")
	InstantCat("d", "")

	evs := collectSorted(t)
	var names []string
	for i := range evs {
		names = append(names, evs[i].name)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, names)
}

func TestSampling(t *testing.T) {
	resetForTest(t, WithSampleRate(0.3))
	const n = 50
	for i := 0; i < n; i++ {
		Instant("sampled")
	}
	kept := len(collectSorted(t))
	// binomial 99.7% interval around n*p = 15
	assert.GreaterOrEqual(t, kept, 5, "kept %d of %d", kept, n)
	assert.LessOrEqual(t, kept, 25, "kept %d of %d", kept, n)
}

func TestRingOverflow(t *testing.T) {
	resetForTest(t, WithBufferEvents(4))
	for _, name := range []string{"e0", "e1", "e2", "e3", "e4", "e5"} {
		Instant(name)
	}
	evs := collectSorted(t)
	require.Len(t, evs, 4)
	var names []string
	var seqs []uint64
	for i := range evs {
		names = append(names, evs[i].name)
		seqs = append(seqs, evs[i].seq)
	}
	assert.Equal(t, []string{"e2", "e3", "e4", "e5"}, names)
	assert.Equal(t, []uint64{3, 4, 5, 6}, seqs)
}

func TestDisabledEmitsNothing(t *testing.T) {
	resetForTest(t)
	Disable()
	Instant("x")
	Counter("c", 1)
	Begin("b")
	assert.Empty(t, collectSorted(t))
	Enable()
	Instant("y")
	assert.Len(t, collectSorted(t), 1)
}

func TestFilterPredicate(t *testing.T) {
	resetForTest(t, WithFilter(func(name, _ string, _ Phase) bool {
		return name != "blocked"
	}))
	Instant("blocked")
	Instant("allowed")
	evs := collectSorted(t)
	require.Len(t, evs, 1)
	assert.Equal(t, "allowed", evs[0].name)
}

func TestFilterReentryIsNoop(t *testing.T) {
	resetForTest(t, WithFilter(func(name, _ string, _ Phase) bool {
		// a filter that annotates would recurse forever without the
		// in-tracer guard
		Instant("nested")
		return true
	}))
	Instant("outer")
	evs := collectSorted(t)
	require.Len(t, evs, 1)
	assert.Equal(t, "outer", evs[0].name)
}

func TestCounterFallbackSeries(t *testing.T) {
	resetForTest(t)
	CounterCat("queue_len", "")
	evs := collectSorted(t)
	require.Len(t, evs, 1)
	require.Len(t, evs[0].args, 1)
	assert.Equal(t, "queue_len", evs[0].args[0].key)
	assert.Equal(t, 0.0, evs[0].args[0].num)
}

func TestCounterMultiSeries(t *testing.T) {
	resetForTest(t)
	CounterSeries("mem", "heap", 10, "stack", 2)
	evs := collectSorted(t)
	require.Len(t, evs, 1)
	require.Len(t, evs[0].args, 2)
	assert.Equal(t, "heap", evs[0].args[0].key)
	assert.Equal(t, 10.0, evs[0].args[0].num)
}

func TestScope(t *testing.T) {
	resetForTest(t)
	s := StartScope("work")
	time.Sleep(time.Millisecond)
	s.End()

	evs := collectSorted(t)
	require.Len(t, evs, 1)
	assert.Equal(t, PhaseComplete, evs[0].ph)
	assert.Equal(t, "work", evs[0].name)
	assert.GreaterOrEqual(t, evs[0].dur, uint64(500))
}

func TestScopeDeniedAtEntry(t *testing.T) {
	resetForTest(t)
	Disable()
	s := StartScope("denied")
	Enable()
	s.End() // admission was decided at entry; nothing may appear
	assert.Empty(t, collectSorted(t))
}

func TestScopeWithArg(t *testing.T) {
	resetForTest(t)
	StartScopeCat("copy", "io").WithArg("bytes", 4096).End()
	evs := collectSorted(t)
	require.Len(t, evs, 1)
	assert.Equal(t, "io", evs[0].cat)
	require.Len(t, evs[0].args, 1)
	assert.Equal(t, "bytes", evs[0].args[0].key)
	assert.Equal(t, 4096.0, evs[0].args[0].num)
}

func TestZone(t *testing.T) {
	resetForTest(t)
	StartZone("update").End()
	evs := collectSorted(t)
	require.Len(t, evs, 1)
	assert.Equal(t, "zone", evs[0].cat)
}

func TestMarkFrame(t *testing.T) {
	resetForTest(t)
	MarkFrame(7)
	MarkFrameLabel("present")
	evs := collectSorted(t)
	require.Len(t, evs, 2)
	for i := range evs {
		assert.Equal(t, "frame", evs[i].name)
		assert.Equal(t, "frame", evs[i].cat)
	}
	assert.Equal(t, 7.0, evs[0].args[0].num)
	assert.Equal(t, "present", evs[1].args[0].str)
}

func TestColorHintOneShot(t *testing.T) {
	resetForTest(t)
	SetNextColor("good")
	Instant("first")
	Instant("second")
	evs := collectSorted(t)
	require.Len(t, evs, 2)
	assert.Equal(t, "good", evs[0].cname)
	assert.Empty(t, evs[1].cname)
}

func TestMetadata(t *testing.T) {
	resetForTest(t, WithProcessName("my-app"))
	SetThreadName("worker-0")
	SetThreadSortIndex(3)

	path := filepath.Join(t.TempDir(), "trace.json")
	doc := flushAndParse(t, path)

	tn := eventsNamed(doc, "thread_name")
	require.NotEmpty(t, tn)
	assert.Equal(t, "M", tn[0]["ph"])
	assert.Equal(t, "worker-0", tn[0]["args"].(map[string]interface{})["name"])

	pn := eventsNamed(doc, "process_name")
	require.NotEmpty(t, pn)
	assert.Equal(t, "my-app", pn[0]["args"].(map[string]interface{})["name"])

	si := eventsNamed(doc, "thread_sort_index")
	require.NotEmpty(t, si)
	assert.Equal(t, 3.0, si[0]["args"].(map[string]interface{})["sort_index"])

	// metadata sorts to the front of the timeline
	assert.Equal(t, 0.0, tn[0]["ts"])
}

func TestCommitVisibility(t *testing.T) {
	resetForTest(t)
	r := reg()
	g := gls.Get()
	tb := r.buffer(g)
	e := tb.reserve()
	r.fillCommon(e, tb, PhaseInstant, "inflight", "")
	// not committed: a snapshot must skip the slot
	assert.Empty(t, r.collect())
	commitEvent(e)
	assert.Len(t, r.collect(), 1)
}

func TestDeterministicFlush(t *testing.T) {
	resetForTest(t, WithSynthesis(true))
	for i := 0; i < 20; i++ {
		Counter("q", float64(i))
		Instant("tick", "i", i)
	}
	StartScope("step").End()

	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.json")
	p2 := filepath.Join(dir, "b.json")
	require.NoError(t, FlushTo(p1))
	require.NoError(t, FlushTo(p2))
	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "same snapshot must serialize identically")
}

func TestFlushRestoresEnabled(t *testing.T) {
	resetForTest(t)
	Instant("x")
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, FlushTo(path))
	assert.True(t, Enabled())

	// a failing flush restores the enabled flag too
	bad := filepath.Join(path, "sub", "trace.json") // parent is a file
	err := FlushTo(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.True(t, Enabled())
}

func TestTieBreakAcrossGoroutines(t *testing.T) {
	resetForTest(t)
	timeNow = func() uint64 { return 42 }
	Instant("main")
	done := make(chan struct{})
	go func() {
		defer close(done)
		Instant("worker")
	}()
	<-done
	timeNow = nowUS

	evs := collectSorted(t)
	require.Len(t, evs, 2)
	// equal ts resolves by tid ascending
	assert.LessOrEqual(t, evs[0].tid, evs[1].tid)
}

func TestDisplayTimeUnit(t *testing.T) {
	resetForTest(t)
	Instant("x")
	path := filepath.Join(t.TempDir(), "trace.json")
	doc := flushAndParse(t, path)
	assert.Equal(t, "ms", doc.DisplayTimeUnit)
}
