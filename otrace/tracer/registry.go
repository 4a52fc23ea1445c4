// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/DimitryQm/otrace-go/internal/gls"
	"github.com/DimitryQm/otrace-go/internal/log"
)

// registry is the process-wide singleton tying together the per-goroutine
// buffers, the recording switch and the active configuration.
type registry struct {
	// head is the CAS-linked intrusive chain of all thread buffers ever
	// registered. Buffers are only prepended, never removed.
	head atomic.Pointer[threadBuffer]

	// enabled is the user-visible recording switch; Flush toggles it off
	// around the snapshot.
	enabled atomic.Bool

	// pid caches the process id; refreshed lazily on emit after a fork.
	pid atomic.Uint32

	// processName is recorded as process metadata on each snapshot.
	processName atomic.Value // string

	// cfg is the immutable active configuration; setters clone-and-swap.
	cfg   atomic.Pointer[config]
	cfgMu sync.Mutex

	// flushMu serializes snapshots; rotIndex is owned by the writer while
	// flushMu is held.
	flushMu  sync.Mutex
	rotIndex int

	statsd statsdClient
}

var (
	activeMu sync.Mutex
	active   atomic.Pointer[registry]

	envOnce sync.Once
	envVals envValues
)

// envLookup reads the recorder's environment exactly once per process.
func envLookup() envValues {
	envOnce.Do(func() {
		envVals = parseEnvValues(os.LookupEnv)
	})
	return envVals
}

// reg returns the active registry, lazily constructing it from defaults and
// the environment on first touch.
func reg() *registry {
	if r := active.Load(); r != nil {
		return r
	}
	return start(nil)
}

func start(opts []StartOption) *registry {
	activeMu.Lock()
	defer activeMu.Unlock()
	c := newConfig(opts...)
	r := active.Load()
	if r == nil {
		r = new(registry)
		r.pid.Store(uint32(os.Getpid()))
		active.Store(r)
	}
	r.applyConfig(c)
	return r
}

func (r *registry) applyConfig(c *config) {
	r.cfgMu.Lock()
	r.cfg.Store(c)
	r.cfgMu.Unlock()
	r.enabled.Store(c.enabled)
	if c.processName != "" {
		r.processName.Store(c.processName)
	}
	setClock(c.clock)
	if r.statsd == nil || c.statsdAddr != "" {
		client, err := newStatsdClient(c.statsdAddr)
		if err != nil {
			log.Warn("cannot create statsd client: %v", err)
			client = &statsdNoop{}
		}
		if r.statsd != nil {
			r.statsd.Close()
		}
		r.statsd = client
	}
	r.statsd.Incr("otrace.tracer.started", nil, 1)
}

// updateConfig clones the active configuration, applies f and swaps the
// result in. Emitters racing with the swap see either version in full.
func (r *registry) updateConfig(f func(*config)) {
	r.cfgMu.Lock()
	c := r.cfg.Load().clone()
	f(c)
	sanitize(c)
	r.cfg.Store(c)
	r.cfgMu.Unlock()
}

// buffer returns the calling goroutine's ring, creating and registering it
// on first use. The new buffer is linked into the registry chain by CAS.
func (r *registry) buffer(g *gls.G) *threadBuffer {
	if tb, ok := g.Ring.(*threadBuffer); ok {
		return tb
	}
	tb := newThreadBuffer(uint64(g.ID), r.cfg.Load().bufferEvents)
	for {
		old := r.head.Load()
		tb.next = old
		if r.head.CompareAndSwap(old, tb) {
			break
		}
	}
	g.Ring = tb
	return tb
}

// refreshPID keeps the recorded pid current across forks.
func (r *registry) refreshPID() uint32 {
	p := uint32(os.Getpid())
	if r.pid.Load() != p {
		r.pid.Store(p)
	}
	return p
}

// Start configures the recorder. It may be called before any annotation or
// at any later point; calling it again replaces the configuration. An
// unconfigured recorder initializes itself with defaults and the
// environment on the first annotation.
func Start(opts ...StartOption) {
	start(opts)
}

// Stop flushes buffered events (unless disabled via WithFinalFlush) and
// releases the recorder's auxiliary resources. It replaces the process
// at-exit hook of platforms that have one: defer it from main. Subsequent
// annotations are dropped until a new Start.
func Stop() {
	r := active.Load()
	if r == nil {
		return
	}
	if r.cfg.Load().finalFlush {
		if err := r.flush(""); err != nil {
			log.Error("stop", "final flush: %v", err)
		}
	}
	r.enabled.Store(false)
	if r.statsd != nil {
		r.statsd.Incr("otrace.tracer.stopped", nil, 1)
		r.statsd.Close()
		r.statsd = &statsdNoop{}
	}
	log.Flush()
}

// Enable turns recording on.
func Enable() {
	reg().enabled.Store(true)
}

// Disable turns recording off. Buffered events remain available to Flush.
func Disable() {
	reg().enabled.Store(false)
}

// Enabled reports whether the recorder currently admits events.
func Enabled() bool {
	return reg().enabled.Load()
}

// SetOutputPath changes the single-file output destination.
func SetOutputPath(path string) {
	if path == "" {
		return
	}
	reg().updateConfig(func(c *config) { c.outputPath = path })
}

// SetSampleRate changes the admission keep probability. Values outside
// [0,1] are clamped.
func SetSampleRate(p float64) {
	reg().updateConfig(func(c *config) { c.sampleRate = p })
}

// SetAllowList replaces the category allowlist with the given CSV.
func SetAllowList(csv string) {
	reg().updateConfig(func(c *config) { c.allow = parseCSV(csv) })
}

// SetDenyList replaces the category denylist with the given CSV.
func SetDenyList(csv string) {
	reg().updateConfig(func(c *config) { c.deny = parseCSV(csv) })
}

// SetFilter installs (or, with nil, removes) the user predicate.
func SetFilter(f Filter) {
	reg().updateConfig(func(c *config) { c.filter = f })
}

// SetSynthesis toggles the post-snapshot derived tracks.
func SetSynthesis(enabled bool) {
	reg().updateConfig(func(c *config) { c.synthesis = enabled })
}
