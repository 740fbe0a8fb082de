// Package mono provides monotonic time for latency accounting.
/*
 * Adapted from github.com/NVIDIA/aistore cmn/mono.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns a monotonic-clock reading in nanoseconds, counted from
// process start. Unlike the teacher's runtime.nanotime linkname trick
// (build-tag gated, platform specific), dash only needs relative deltas for
// logging cadence and uses the portable, exported time.Since, which reads
// the monotonic clock carried by a time.Now() value.
func NanoTime() int64 { return int64(time.Since(start)) }

// Since returns the elapsed duration since a NanoTime reading.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
