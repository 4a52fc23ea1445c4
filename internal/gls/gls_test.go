// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package gls

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGID(t *testing.T) {
	for i, tt := range [...]struct {
		in   string
		want int64
	}{
		0: {"goroutine 1 [running]:\nmain.main()", 1},
		1: {"goroutine 4711 [running]:", 4711},
		2: {"goroutine 18446744073709 [runnable]:", 18446744073709},
		3: {"goroutine ", 0},
		4: {"", 0},
	} {
		assert.Equal(t, tt.want, parseGID([]byte(tt.in)), "case %d", i)
	}
}

func TestIDStable(t *testing.T) {
	a := ID()
	b := ID()
	require.NotZero(t, a)
	assert.Equal(t, a, b)
}

func TestIDDistinct(t *testing.T) {
	main := ID()
	ch := make(chan int64)
	go func() { ch <- ID() }()
	other := <-ch
	assert.NotEqual(t, main, other)
}

func TestGetSameG(t *testing.T) {
	defer Reset()
	g1 := Get()
	g1.InTracer = true
	g2 := Get()
	assert.Same(t, g1, g2)
	assert.True(t, g2.InTracer)
	g1.InTracer = false
}

func TestGetConcurrent(t *testing.T) {
	defer Reset()
	var wg sync.WaitGroup
	seen := make(chan int64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := Get()
			if Get() != g {
				panic("gls: unstable G")
			}
			seen <- g.ID
		}()
	}
	wg.Wait()
	close(seen)
	ids := make(map[int64]bool)
	for id := range seen {
		ids[id] = true
	}
	assert.Len(t, ids, 100)
}
