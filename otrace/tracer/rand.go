// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import (
	cryptorand "crypto/rand"
	"math"
	"math/big"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DimitryQm/otrace-go/internal/log"
)

var (
	random   randT
	warnOnce sync.Once
	seedSeq  int64
	randPool = sync.Pool{
		New: func() interface{} {
			var seed int64
			n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(math.MaxInt64))
			if err == nil {
				seed = n.Int64()
			} else {
				warnOnce.Do(func() {
					log.Warn("cannot generate random seed: %v; using current time", err)
				})
				seed = time.Now().UnixNano()
			}
			// seedSeq makes sure we don't create two generators with the same seed
			// by accident.
			return mathrand.New(mathrand.NewSource(seed + atomic.AddInt64(&seedSeq, 1)))
		},
	}
)

type randT struct{}

// Uint64 returns a random number. It's optimized for concurrent access.
func (randT) Uint64() uint64 {
	r := randPool.Get().(*mathrand.Rand)
	v := r.Uint64()
	randPool.Put(r)
	return v
}

// FlowID returns a fresh non-zero 64-bit id suitable for linking
// FlowStart/FlowStep/FlowEnd hops across goroutines.
func FlowID() uint64 {
	for {
		if v := random.Uint64(); v != 0 {
			return v
		}
	}
}
