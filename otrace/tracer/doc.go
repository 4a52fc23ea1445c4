// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

// Package tracer implements an in-process, annotation-driven timeline
// recorder. A host program marks code sites with explicit events (scopes,
// instants, counters, flows, frame marks) and periodically snapshots them to
// a file in the Chrome Trace Event JSON format, viewable in ui.perfetto.dev
// or chrome://tracing.
//
// Nothing is recorded unless an annotation fires: the recorder is deliberate
// rather than sampling-based. Events are stored in per-goroutine lock-free
// rings and copied out by Flush, which sorts them into a deterministic
// timeline and writes a single file or a rotated, optionally gzipped, series
// of files.
//
// A typical main looks like:
//
//	func main() {
//		tracer.Start(tracer.WithOutputPath("out/trace.json"))
//		defer tracer.Stop()
//
//		defer tracer.StartScope("startup").End()
//		tracer.Instant("ready")
//	}
//
// Go has no process at-exit hook, so the final flush rides on Stop, which
// hosts are expected to defer from main. Explicit Flush calls may be issued
// at any time.
//
// The recorder is safe for concurrent use from any number of goroutines. It
// is not async-signal-safe. After a fork only the child's surviving
// goroutine may use the tracer until exec; the recorded pid refreshes
// lazily on the next emit.
package tracer
