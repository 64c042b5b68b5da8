package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// Stockpile amounts live in numeric(15,0) columns so the database can do
// overflow-safe arithmetic; in Go they are plain int64. These two helpers
// are the only crossing point.

// NumericToInt64 converts a pgtype.Numeric to int64. Errors on NULL and on
// values outside int64 range; a negative exponent truncates toward zero,
// which cannot occur for scale-0 columns.
func NumericToInt64(n pgtype.Numeric) (int64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("numeric value is NULL")
	}

	// pgtype.Numeric represents Int * 10^Exp.
	v := new(big.Int).Set(n.Int)
	if n.Exp != 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(abs64(int64(n.Exp))), nil)
		if n.Exp > 0 {
			v.Mul(v, scale)
		} else {
			v.Quo(v, scale)
		}
	}

	if !v.IsInt64() {
		return 0, fmt.Errorf("numeric value %s overflows int64", v.String())
	}
	return v.Int64(), nil
}

// Int64ToNumeric converts an int64 stockpile amount for writing to a
// numeric(15,0) column.
func Int64ToNumeric(v int64) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              big.NewInt(v),
		Exp:              0,
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
