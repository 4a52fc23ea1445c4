// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import (
	"fmt"
	"sort"
)

// synthCategory marks every derived event.
const synthCategory = "synth"

// synthesize derives the optional post-snapshot tracks from a sorted
// snapshot: an fps counter from frame instants, a per-second derivative for
// every counter series, and latency percentile summaries for Complete
// events. It is a pure function of its input: the same snapshot always
// yields the same output, and missing inputs yield none.
func synthesize(evs []cleanEvent, cfg *config, pid uint32) []cleanEvent {
	var out []cleanEvent
	out = append(out, synthFPS(evs, cfg, pid)...)
	out = append(out, synthRates(evs, pid)...)
	out = append(out, synthLatency(evs, cfg, pid)...)
	return out
}

// synthFPS turns "frame"/"frame" instants into an fps counter using a
// sliding window.
func synthFPS(evs []cleanEvent, cfg *config, pid uint32) []cleanEvent {
	var frames []uint64
	for i := range evs {
		e := &evs[i]
		if e.ph == PhaseInstant && e.name == "frame" && e.cat == "frame" {
			frames = append(frames, e.ts)
		}
	}
	if len(frames) == 0 {
		return nil
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	window := cfg.rateWindowUS
	out := make([]cleanEvent, 0, len(frames))
	lo := 0
	for i, t := range frames {
		for t >= window && frames[lo] < t-window {
			lo++
		}
		fps := float64(i-lo+1) * 1e6 / float64(window)
		out = append(out, cleanEvent{
			ts:   t,
			pid:  pid,
			ph:   PhaseCounter,
			name: "fps",
			cat:  synthCategory,
			args: []cleanArg{{key: "fps", kind: argNumber, num: fps}},
		})
	}
	return out
}

// synthRates emits the per-second derivative of every counter series with
// at least two samples. Only the primary (first) series of multi-series
// counters is used.
func synthRates(evs []cleanEvent, pid uint32) []cleanEvent {
	type sample struct {
		ts uint64
		v  float64
	}
	series := make(map[string][]sample)
	for i := range evs {
		e := &evs[i]
		if e.ph != PhaseCounter || e.cat == synthCategory {
			continue
		}
		if len(e.args) == 0 || e.args[0].kind != argNumber {
			continue
		}
		series[e.name] = append(series[e.name], sample{ts: e.ts, v: e.args[0].num})
	}
	names := make([]string, 0, len(series))
	for name, samples := range series {
		if len(samples) >= 2 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var out []cleanEvent
	for _, name := range names {
		samples := series[name]
		sort.Slice(samples, func(i, j int) bool { return samples[i].ts < samples[j].ts })
		for i := 1; i < len(samples); i++ {
			dt := samples[i].ts - samples[i-1].ts
			if dt == 0 {
				continue
			}
			rate := (samples[i].v - samples[i-1].v) * 1e6 / float64(dt)
			out = append(out, cleanEvent{
				ts:   samples[i].ts,
				pid:  pid,
				ph:   PhaseCounter,
				name: "rate(" + name + ")",
				cat:  synthCategory,
				args: []cleanArg{{key: "value", kind: argNumber, num: rate}},
			})
		}
	}
	return out
}

// synthLatency summarizes the durations of each Complete event name into
// the configured percentiles, in milliseconds, anchored at the last
// timestamp of the trace.
func synthLatency(evs []cleanEvent, cfg *config, pid uint32) []cleanEvent {
	durs := make(map[string][]uint64)
	var maxTS uint64
	for i := range evs {
		e := &evs[i]
		if e.ts > maxTS {
			maxTS = e.ts
		}
		if e.ph == PhaseComplete {
			durs[e.name] = append(durs[e.name], e.dur)
		}
	}
	if len(durs) == 0 {
		return nil
	}
	names := make([]string, 0, len(durs))
	for name := range durs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]cleanEvent, 0, len(names))
	for _, name := range names {
		ds := durs[name]
		sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
		args := make([]cleanArg, 0, len(cfg.percentiles))
		for _, q := range cfg.percentiles {
			if len(args) == maxArgs {
				break
			}
			idx := int(q * float64(len(ds)-1))
			args = append(args, cleanArg{
				key:  fmt.Sprintf("p%g", q*100),
				kind: argNumber,
				num:  float64(ds[idx]) / 1000,
			})
		}
		out = append(out, cleanEvent{
			ts:   maxTS,
			pid:  pid,
			ph:   PhaseInstant,
			name: "latency(" + name + ")",
			cat:  synthCategory,
			args: args,
		})
	}
	return out
}
