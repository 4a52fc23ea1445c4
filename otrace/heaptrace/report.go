// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package heaptrace

import (
	"fmt"
	"sort"

	"github.com/DimitryQm/otrace-go/internal/gls"
	"github.com/DimitryQm/otrace-go/otrace/tracer"
)

const (
	reportCategory = "heap"
	reportTopN     = 10

	// argsPerEvent matches the recorder's argument slot count; longer
	// report sections continue across events with the same name.
	argsPerEvent = 4
)

// Report renders the current heap state into the trace as a sequence of
// instants: report start, aggregate stats, the top live-byte groups
// ("leaks"), the top callsites by total allocated bytes, and report end.
// It never fails; empty sections become informational rows.
func Report() {
	g := gls.Get()
	if g.InTracer || g.InHook {
		return
	}
	g.InHook = true
	defer func() { g.InHook = false }()

	tracer.InstantCat("heap_report_started", reportCategory)

	type group struct {
		site  uint64
		bytes uint64
		count uint64
	}
	groups := make(map[uint64]*group)
	liveCount := 0
	for i := range shards {
		sh := &shards[i]
		sh.mu.Lock()
		for _, e := range sh.m {
			liveCount++
			gr := groups[e.site]
			if gr == nil {
				gr = &group{site: e.site}
				groups[e.site] = gr
			}
			gr.bytes += uint64(e.size)
			gr.count++
		}
		sh.mu.Unlock()
	}

	sitesMu.Lock()
	siteCount := len(sites)
	siteRows := make([]siteRow, 0, siteCount)
	for id, cs := range sites {
		siteRows = append(siteRows, siteRow{site: id, cs: *cs})
	}
	sitesMu.Unlock()
	stacks := make(map[uint64]string, len(siteRows))
	for _, row := range siteRows {
		if row.cs.stack != "" {
			stacks[row.site] = row.cs.stack
		}
	}

	tracer.InstantCat("heap_report_stats", reportCategory,
		"live_alloc_count", liveCount,
		"site_count", siteCount,
	)

	if liveCount == 0 {
		tracer.InstantCat("heap_leaks", reportCategory, "info", "no_live_allocations_detected")
	} else {
		ranked := make([]*group, 0, len(groups))
		for _, gr := range groups {
			ranked = append(ranked, gr)
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].bytes != ranked[j].bytes {
				return ranked[i].bytes > ranked[j].bytes
			}
			return ranked[i].site < ranked[j].site
		})
		if len(ranked) > reportTopN {
			ranked = ranked[:reportTopN]
		}
		emitRows(ranked, "heap_leaks", "leak", func(gr *group) string {
			label, ok := stacks[gr.site]
			if !ok {
				label = fmt.Sprintf("hash=0x%x", gr.site)
			}
			return reportRow(label, gr.bytes, gr.count)
		})
	}

	if siteCount == 0 {
		tracer.InstantCat("heap_sites", reportCategory, "info", "no_sampled_sites")
	} else {
		sort.Slice(siteRows, func(i, j int) bool {
			if siteRows[i].cs.totalBytes != siteRows[j].cs.totalBytes {
				return siteRows[i].cs.totalBytes > siteRows[j].cs.totalBytes
			}
			return siteRows[i].site < siteRows[j].site
		})
		top := siteRows
		if len(top) > reportTopN {
			top = top[:reportTopN]
		}
		emitRows(top, "heap_sites", "site", func(row siteRow) string {
			label := row.cs.stack
			if label == "" {
				label = fmt.Sprintf("hash=0x%x", row.site)
			}
			return reportRow(label, row.cs.totalBytes, row.cs.allocs)
		})
	}

	tracer.InstantCat("heap_report_done", reportCategory)
}

// siteRow is a detached snapshot of one sampled callsite.
type siteRow struct {
	site uint64
	cs   callsite
}

// maxRowLen mirrors the recorder's bounded argument value length. Stack
// labels are trimmed so the byte and allocation totals always survive.
const maxRowLen = 64

func reportRow(label string, bytes, count uint64) string {
	suffix := fmt.Sprintf(" (%d bytes, %d allocations)", bytes, count)
	if lim := maxRowLen - len(suffix); lim > 0 && len(label) > lim {
		label = label[:lim]
	}
	return label + suffix
}

// emitRows writes ranked report rows as instants, at most argsPerEvent
// entries per event, with keys <prefix>_1..<prefix>_N.
func emitRows[T any](rows []T, name, prefix string, render func(T) string) {
	for start := 0; start < len(rows); start += argsPerEvent {
		endIdx := start + argsPerEvent
		if endIdx > len(rows) {
			endIdx = len(rows)
		}
		kv := make([]interface{}, 0, 2*(endIdx-start))
		for i := start; i < endIdx; i++ {
			kv = append(kv, fmt.Sprintf("%s_%d", prefix, i+1), render(rows[i]))
		}
		tracer.InstantCat(name, reportCategory, kv...)
	}
}
