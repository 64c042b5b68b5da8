package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundtrip(t *testing.T) {
	// numeric(15,0) max is 999_999_999_999_999
	values := []int64{0, 1, -1, 200, 999_999_999_999_999, math.MaxInt64, math.MinInt64}
	for _, v := range values {
		n := Int64ToNumeric(v)
		got, err := NumericToInt64(n)
		require.NoError(t, err, "value: %d", v)
		assert.Equal(t, v, got, "value: %d", v)
	}
}

func TestNumericToInt64_NullReturnsError(t *testing.T) {
	_, err := NumericToInt64(pgtype.Numeric{Valid: false})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")
}

func TestNumericToInt64_AppliesExponent(t *testing.T) {
	// 500 * 10^2 = 50000
	n := pgtype.Numeric{Int: big.NewInt(500), Exp: 2, Valid: true}
	v, err := NumericToInt64(n)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), v)

	// 50099 * 10^-2 truncates to 500
	n = pgtype.Numeric{Int: big.NewInt(50099), Exp: -2, Valid: true}
	v, err = NumericToInt64(n)
	require.NoError(t, err)
	assert.Equal(t, int64(500), v)
}

func TestNumericToInt64_Overflow(t *testing.T) {
	over := new(big.Int).SetInt64(math.MaxInt64)
	over.Add(over, big.NewInt(1))
	_, err := NumericToInt64(pgtype.Numeric{Int: over, Exp: 0, Valid: true})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "overflows")
}
