// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

// Package heaptrace is the optional heap-attribution layer of the
// recorder. It rides on allocator hooks the host wires up: every
// successful allocation reports RecordAlloc(ptr, size), every free reports
// RecordFree(ptr). The layer maintains a sharded live-allocation map,
// samples allocation callsites, feeds a throttled live-bytes counter into
// the trace, and renders an end-of-run leak report as trace instants.
//
// The layer never fails and never recurses: per-goroutine re-entry guards
// make any allocation performed by the tracer invisible to the hooks, and
// any hook work triggered from inside the tracer a no-op.
package heaptrace
