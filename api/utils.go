package api

import (
	"sync/atomic"
	"time"
)

var lastVersion int64

// nextVersion returns a strictly increasing snapshot version seeded from the
// wall clock, so versions keep growing across restarts.
func nextVersion() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastVersion)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastVersion, last, now) {
			return now
		}
	}
}

// observeVersion advances the local counter past a version seen elsewhere.
func observeVersion(v int64) {
	for {
		last := atomic.LoadInt64(&lastVersion)
		if v <= last || atomic.CompareAndSwapInt64(&lastVersion, last, v) {
			return
		}
	}
}
