// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import (
	"strconv"
	"strings"
	"time"

	"github.com/DimitryQm/otrace-go/internal/log"
)

const (
	defaultOutputPath   = "trace.json"
	defaultBufferEvents = 1 << 15
	defaultRateWindow   = time.Second
)

var defaultPercentiles = []float64{0.5, 0.95, 0.99}

// Filter is a user predicate evaluated by the admission gate. Returning
// false drops the event before a ring slot is reserved. Filters must be
// fast, must not allocate, and must be safe for concurrent use.
type Filter func(name, category string, ph Phase) bool

// Logger is implemented by types able to receive the recorder's own log
// output. See WithLogger.
type Logger interface {
	Log(msg string)
}

// config holds the recorder configuration. A config value is immutable once
// published; runtime setters clone-and-swap it.
type config struct {
	// enabled is the initial state of the recording switch.
	enabled bool

	// outputPath is the single-file output destination.
	outputPath string

	// pattern, when non-empty, switches the writer into rotated mode.
	pattern string

	// maxSizeMB is advisory; a single flush is never split across files.
	maxSizeMB int

	// maxFiles bounds the rotation index (min 1).
	maxFiles int

	// sampleRate is the admission keep probability in [0, 1].
	sampleRate float64

	// allow and deny are the parsed category CSV lists.
	allow []string
	deny  []string

	// filter is the optional user predicate.
	filter Filter

	// synthesis enables the post-snapshot derived tracks.
	synthesis    bool
	rateWindowUS uint64
	percentiles  []float64

	// clock selects the timestamp backend.
	clock Clock

	// bufferEvents is the per-goroutine ring capacity.
	bufferEvents int

	// processName, when set at start, is recorded as process metadata.
	processName string

	// statsdAddr, when non-empty, enables self-metrics over dogstatsd.
	statsdAddr string

	// finalFlush makes Stop perform a last flush.
	finalFlush bool
}

// StartOption represents a function that can be provided as a parameter to Start.
type StartOption func(*config)

// defaults sets the default values for a config.
func defaults(c *config) {
	c.enabled = true
	c.outputPath = defaultOutputPath
	c.maxFiles = 1
	c.sampleRate = 1
	c.rateWindowUS = uint64(defaultRateWindow / time.Microsecond)
	c.percentiles = defaultPercentiles
	c.clock = ClockMonotonic
	c.bufferEvents = defaultBufferEvents
	c.finalFlush = true
}

func newConfig(opts ...StartOption) *config {
	c := new(config)
	defaults(c)
	applyEnv(c, envLookup())
	for _, fn := range opts {
		fn(c)
	}
	sanitize(c)
	return c
}

// sanitize clamps invalid values instead of failing; the recorder never
// aborts the host over configuration.
func sanitize(c *config) {
	if c.sampleRate < 0 || c.sampleRate > 1 {
		log.Warn("sample rate %g outside [0,1]; clamping", c.sampleRate)
		if c.sampleRate < 0 {
			c.sampleRate = 0
		} else {
			c.sampleRate = 1
		}
	}
	if c.maxFiles < 1 {
		c.maxFiles = 1
	}
	if c.maxSizeMB < 0 {
		c.maxSizeMB = 0
	}
	if c.bufferEvents < 1 {
		c.bufferEvents = defaultBufferEvents
	}
	if c.rateWindowUS == 0 {
		c.rateWindowUS = uint64(defaultRateWindow / time.Microsecond)
	}
	if c.outputPath == "" {
		c.outputPath = defaultOutputPath
	}
}

func (c *config) clone() *config {
	d := *c
	d.allow = append([]string(nil), c.allow...)
	d.deny = append([]string(nil), c.deny...)
	d.percentiles = append([]float64(nil), c.percentiles...)
	return &d
}

// applyEnv overlays the read-once environment onto c. OTRACE_ENABLE wins
// over OTRACE_DISABLE; OTRACE_SAMPLE is clamped into [0,1].
func applyEnv(c *config, env envValues) {
	if env.disable {
		c.enabled = false
	}
	if env.enable {
		c.enabled = true
	}
	if env.sampleSet {
		c.sampleRate = env.sample
	}
}

type envValues struct {
	disable   bool
	enable    bool
	sampleSet bool
	sample    float64
}

// parseEnvValues reads the recorder's environment variables through the
// given lookup function.
func parseEnvValues(lookup func(string) (string, bool)) envValues {
	var ev envValues
	if _, ok := lookup("OTRACE_DISABLE"); ok {
		ev.disable = true
	}
	if _, ok := lookup("OTRACE_ENABLE"); ok {
		ev.enable = true
	}
	if v, ok := lookup("OTRACE_SAMPLE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			log.Warn("invalid OTRACE_SAMPLE value %q: %v", v, err)
		} else {
			ev.sampleSet = true
			ev.sample = f
		}
	}
	return ev
}

// parseCSV splits a category list on commas, trims whitespace and drops
// empty tokens.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// WithOutputPath sets the single-file output destination. The default is
// "trace.json" in the working directory.
func WithOutputPath(path string) StartOption {
	return func(c *config) {
		c.outputPath = path
	}
}

// WithRotation switches the writer into rotated mode. The pattern may hold
// one %u/%d style placeholder for the rotation index; without one, a
// six-digit index is appended. A ".gz" suffix requests gzip compression.
// maxSizeMB is advisory in this version; maxFiles bounds the index.
func WithRotation(pattern string, maxSizeMB, maxFiles int) StartOption {
	return func(c *config) {
		c.pattern = pattern
		c.maxSizeMB = maxSizeMB
		c.maxFiles = maxFiles
	}
}

// WithSampleRate sets the admission keep probability. Values outside [0,1]
// are clamped.
func WithSampleRate(p float64) StartOption {
	return func(c *config) {
		c.sampleRate = p
	}
}

// WithAllowList restricts recording to the categories in the given CSV.
func WithAllowList(csv string) StartOption {
	return func(c *config) {
		c.allow = parseCSV(csv)
	}
}

// WithDenyList drops events whose category appears in the given CSV.
func WithDenyList(csv string) StartOption {
	return func(c *config) {
		c.deny = parseCSV(csv)
	}
}

// WithFilter installs a user predicate in the admission gate.
func WithFilter(f Filter) StartOption {
	return func(c *config) {
		c.filter = f
	}
}

// WithSynthesis toggles the post-snapshot derived tracks (fps, counter
// rates, latency percentiles).
func WithSynthesis(enabled bool) StartOption {
	return func(c *config) {
		c.synthesis = enabled
	}
}

// WithRateWindow sets the sliding window used by the fps synthesis track.
func WithRateWindow(d time.Duration) StartOption {
	return func(c *config) {
		if d > 0 {
			c.rateWindowUS = uint64(d / time.Microsecond)
		}
	}
}

// WithPercentiles sets the quantiles summarized by the latency synthesis
// track, as fractions in (0, 1].
func WithPercentiles(q ...float64) StartOption {
	return func(c *config) {
		var ps []float64
		for _, p := range q {
			if p > 0 && p <= 1 {
				ps = append(ps, p)
			}
		}
		if len(ps) > 0 {
			c.percentiles = ps
		}
	}
}

// WithClock selects the timestamp backend.
func WithClock(clock Clock) StartOption {
	return func(c *config) {
		c.clock = clock
	}
}

// WithBufferEvents sets the per-goroutine ring capacity. The default is
// 32768 events; once full, the oldest events on that goroutine are
// overwritten.
func WithBufferEvents(n int) StartOption {
	return func(c *config) {
		c.bufferEvents = n
	}
}

// WithProcessName records the given process name as trace metadata.
func WithProcessName(name string) StartOption {
	return func(c *config) {
		c.processName = name
	}
}

// WithDogstatsdAddr enables the recorder's own health metrics (flush
// counts, durations, event totals) over dogstatsd at the given address.
func WithDogstatsdAddr(addr string) StartOption {
	return func(c *config) {
		c.statsdAddr = addr
	}
}

// WithLogger sets l as the destination of the recorder's log output.
func WithLogger(l Logger) StartOption {
	return func(_ *config) {
		log.UseLogger(l)
	}
}

// WithDebugMode makes the recorder's logging more verbose.
func WithDebugMode(enabled bool) StartOption {
	return func(_ *config) {
		if enabled {
			log.SetLevel(log.LevelDebug)
		} else {
			log.SetLevel(log.LevelWarn)
		}
	}
}

// WithFinalFlush controls whether Stop performs a last flush. Enabled by
// default.
func WithFinalFlush(enabled bool) StartOption {
	return func(c *config) {
		c.finalFlush = enabled
	}
}
