// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// statsdClient is the subset of the dogstatsd client the recorder uses for
// its own health metrics. A no-op implementation is active unless
// WithDogstatsdAddr was given.
type statsdClient interface {
	Count(name string, value int64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Close() error
}

type statsdNoop struct{}

func (statsdNoop) Count(string, int64, []string, float64) error         { return nil }
func (statsdNoop) Incr(string, []string, float64) error                 { return nil }
func (statsdNoop) Timing(string, time.Duration, []string, float64) error { return nil }
func (statsdNoop) Close() error                                         { return nil }

func newStatsdClient(addr string) (statsdClient, error) {
	if addr == "" {
		return &statsdNoop{}, nil
	}
	return statsd.New(addr)
}
