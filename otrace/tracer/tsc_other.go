// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

//go:build !amd64

package tracer

// tscNow reports that no cycle counter is available; callers fall back to
// the monotonic clock.
func tscNow() (uint64, bool) { return 0, false }

func tscCalibrateOnce() {}
