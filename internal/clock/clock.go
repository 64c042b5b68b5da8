// Package clock provides the whole-second rounding helpers used by all
// scheduling math. Buckets and interval comparisons must be deterministic
// regardless of sub-second call jitter, so every instant is floored to a
// second boundary before use.
package clock

import "time"

// BucketSizeMs is the width of a one-shot event bucket.
const BucketSizeMs int64 = 5000

// RoundMs floors a millisecond timestamp to the whole second below it.
func RoundMs(ms int64) int64 {
	if ms < 0 {
		return ms - (ms%1000+1000)%1000
	}
	return ms - ms%1000
}

// NowMs returns the current wall clock in milliseconds, rounded down
// to the whole second.
func NowMs() int64 {
	return RoundMs(time.Now().UnixMilli())
}

// BucketKey maps a millisecond timestamp to its bucket index.
func BucketKey(ms int64) int64 {
	if ms < 0 {
		return (ms - (BucketSizeMs - 1)) / BucketSizeMs
	}
	return ms / BucketSizeMs
}

// NextSecondBoundary returns the duration until the next wall-clock
// second boundary after t. Used to phase-align the tick loop.
func NextSecondBoundary(t time.Time) time.Duration {
	return t.Truncate(time.Second).Add(time.Second).Sub(t)
}
