package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundMs(t *testing.T) {
	t.Run("already whole second", func(t *testing.T) {
		assert.Equal(t, int64(7_000), RoundMs(7_000))
	})

	t.Run("floors sub-second remainder", func(t *testing.T) {
		assert.Equal(t, int64(7_000), RoundMs(7_999))
		assert.Equal(t, int64(7_000), RoundMs(7_001))
	})

	t.Run("result is always a multiple of 1000", func(t *testing.T) {
		for _, ms := range []int64{0, 1, 999, 1000, 123_456, 1_700_000_000_123} {
			assert.Zero(t, RoundMs(ms)%1000, "ms=%d", ms)
		}
	})
}

func TestBucketKey(t *testing.T) {
	assert.Equal(t, int64(0), BucketKey(0))
	assert.Equal(t, int64(0), BucketKey(4_999))
	assert.Equal(t, int64(1), BucketKey(5_000))
	assert.Equal(t, int64(2), BucketKey(12_345))
}

func TestNextSecondBoundary(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("mid-second", func(t *testing.T) {
		d := NextSecondBoundary(base.Add(300 * time.Millisecond))
		assert.Equal(t, 700*time.Millisecond, d)
	})

	t.Run("exact boundary waits a full second", func(t *testing.T) {
		assert.Equal(t, time.Second, NextSecondBoundary(base))
	})
}
