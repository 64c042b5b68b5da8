package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker(t *testing.T) {
	t.Run("closed circuit allows calls", func(t *testing.T) {
		cb := NewCircuitBreaker(3, time.Minute)
		res := cb.Check("persist.create")
		assert.True(t, res.Allowed)
		assert.Equal(t, CircuitClosed, cb.State("persist.create"))
	})

	t.Run("opens after threshold failures", func(t *testing.T) {
		cb := NewCircuitBreaker(3, time.Minute)
		for i := 0; i < 3; i++ {
			cb.RecordFailure("persist.create")
		}
		require.Equal(t, CircuitOpen, cb.State("persist.create"))

		res := cb.Check("persist.create")
		assert.False(t, res.Allowed)
		assert.Contains(t, res.Reason, "circuit open")
	})

	t.Run("half-opens after reset timeout and closes on success", func(t *testing.T) {
		cb := NewCircuitBreaker(1, time.Millisecond)
		cb.RecordFailure("persist.update")
		require.Equal(t, CircuitOpen, cb.State("persist.update"))

		time.Sleep(5 * time.Millisecond)
		res := cb.Check("persist.update")
		require.True(t, res.Allowed)
		require.Equal(t, CircuitHalfOpen, cb.State("persist.update"))

		cb.RecordSuccess("persist.update")
		assert.Equal(t, CircuitClosed, cb.State("persist.update"))
	})

	t.Run("threshold of one opens on the first failure of a new key", func(t *testing.T) {
		cb := NewCircuitBreaker(1, time.Minute)
		cb.RecordFailure("persist.snapshot")
		assert.Equal(t, CircuitOpen, cb.State("persist.snapshot"))
		assert.False(t, cb.Check("persist.snapshot").Allowed)
	})

	t.Run("failure during half-open reopens", func(t *testing.T) {
		cb := NewCircuitBreaker(1, time.Millisecond)
		cb.RecordFailure("persist.pause")
		time.Sleep(5 * time.Millisecond)
		require.True(t, cb.Check("persist.pause").Allowed)

		cb.RecordFailure("persist.pause")
		assert.Equal(t, CircuitOpen, cb.State("persist.pause"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		cb := NewCircuitBreaker(1, time.Minute)
		cb.RecordFailure("persist.create")
		assert.False(t, cb.Check("persist.create").Allowed)
		assert.True(t, cb.Check("persist.delete").Allowed)
	})
}
