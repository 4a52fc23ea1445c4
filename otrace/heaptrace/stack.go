// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package heaptrace

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"runtime"
	"strings"
	"unsafe"

	"github.com/DataDog/gostackparse"
)

const (
	// maxSiteFrames bounds the captured callsite depth.
	maxSiteFrames = 8

	// maxSiteTextFrames bounds the rendered representative stack.
	maxSiteTextFrames = 4
)

// siteHash hashes the allocation callsite. Returns 0 when no stack is
// available.
func siteHash() uint64 {
	var pcs [maxSiteFrames]uintptr
	// skip runtime.Callers, siteHash and RecordAlloc; the remaining top
	// frame is the host's allocator hook
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return 0
	}
	return hashPCs(pcs[:n])
}

// recordSite folds one sampled allocation into its callsite aggregate. The
// first writer of a site also stores the representative stack text.
func recordSite(hash uint64, size uintptr) {
	sitesMu.Lock()
	cs := sites[hash]
	if cs == nil {
		cs = &callsite{stack: formatSiteStack()}
		sites[hash] = cs
	}
	cs.totalBytes += uint64(size)
	cs.allocs++
	cs.liveBytes += uint64(size)
	cs.liveCount++
	sitesMu.Unlock()
}

// hashPCs mixes the program counters with FNV-1a into a 64-bit site id.
func hashPCs(pcs []uintptr) uint64 {
	h := fnv.New64a()
	for _, pc := range pcs {
		b := (*[8]byte)(unsafe.Pointer(&pc))[:]
		h.Write(b)
	}
	return h.Sum64()
}

// formatSiteStack renders a compact one-line view of the current stack for
// leak reports: the goroutine's stack text is parsed and the hook-internal
// frames dropped. Only runs once per distinct callsite.
func formatSiteStack() string {
	buf := make([]byte, 16*1024)
	n := runtime.Stack(buf, false)
	goroutines, _ := gostackparse.Parse(bytes.NewReader(buf[:n]))
	if len(goroutines) == 0 {
		return ""
	}
	var parts []string
	for _, f := range goroutines[0].Stack {
		if isHookInternal(f.Func) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s:%d)", shortFunc(f.Func), filepath.Base(f.File), f.Line))
		if len(parts) == maxSiteTextFrames {
			break
		}
	}
	return strings.Join(parts, " < ")
}

// isHookInternal reports whether a frame is part of the hook machinery
// itself rather than the host's code.
func isHookInternal(fn string) bool {
	for _, suffix := range []string{
		"heaptrace.formatSiteStack",
		"heaptrace.recordSite",
		"heaptrace.RecordAlloc",
		"heaptrace.RecordFree",
	} {
		if strings.HasSuffix(fn, suffix) {
			return true
		}
	}
	return false
}

// shortFunc drops the import path from a fully qualified function name:
// "example.com/pkg/sub.(*T).Run" becomes "sub.(*T).Run".
func shortFunc(fn string) string {
	if i := strings.LastIndexByte(fn, '/'); i >= 0 {
		return fn[i+1:]
	}
	return fn
}
