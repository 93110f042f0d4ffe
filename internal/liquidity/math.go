// internal/liquidity/math.go
package liquidity

import (
	"math/big"
	"math/bits"

	"github.com/tarlanisaev/poolbridge/internal/ledger"
)

// mulDiv computes a*b/den over the full 128-bit intermediate, failing with
// ErrOverflow when the quotient does not fit in 64 bits.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ledger.ErrUnderflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, ledger.ErrOverflow
	}
	quot, _ := bits.Div64(hi, lo, den)
	return quot, nil
}

// isqrt is the integer square root of a*b, used for the initial share grant
// so the starting supply is independent of deposit ordering.
func isqrt(a, b uint64) uint64 {
	product := new(big.Int).Mul(
		new(big.Int).SetUint64(a),
		new(big.Int).SetUint64(b),
	)
	return product.Sqrt(product).Uint64()
}

// feeSplit returns the protocol fee withheld from amount at feeBps basis
// points and the net remainder paid out. feeBps above 100% would make net
// wrap below zero, so it is rejected here as well as at pool creation.
func feeSplit(amount, feeBps uint64) (fee, net uint64, err error) {
	if feeBps > ledger.MaxFeeBasisPoints {
		return 0, 0, ledger.ErrInvalidFeeRate
	}
	fee, err = mulDiv(amount, feeBps, ledger.MaxFeeBasisPoints)
	if err != nil {
		return 0, 0, err
	}
	return fee, amount - fee, nil
}
