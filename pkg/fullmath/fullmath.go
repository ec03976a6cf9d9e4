// Package fullmath implements the 512-bit-intermediate multiply-then-divide
// primitives used by the bond contracts. Results are computed on big.Int so
// the intermediate product never loses precision, then range-checked against
// uint256 to match on-chain semantics exactly.
package fullmath

import (
	"errors"
	"math/big"
)

var (
	ErrDivisionByZero = errors.New("fullmath: division by zero")
	ErrOverflow       = errors.New("fullmath: result overflows uint256")
)

var (
	// Q96 is the UQ64.96 fixed-point scale (2^96) used by the pool's
	// sqrt price representation.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	// MaxUint256 is the largest value representable on chain.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	one = big.NewInt(1)
)

// MulDiv returns floor(a*b/denominator) with full intermediate precision.
// Inputs are never mutated. The result must fit uint256 or ErrOverflow is
// returned; a zero denominator returns ErrDivisionByZero.
func MulDiv(a, b, denominator *big.Int) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}

	product := new(big.Int).Mul(a, b)
	if product.Sign() == 0 {
		return new(big.Int), nil
	}

	result := product.Div(product, denominator)
	if result.Cmp(MaxUint256) > 0 {
		return nil, ErrOverflow
	}
	return result, nil
}

// MulDivRoundingUp returns ceil(a*b/denominator). The rounded-up result is
// range-checked the same way as MulDiv.
func MulDivRoundingUp(a, b, denominator *big.Int) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}

	product := new(big.Int).Mul(a, b)
	result, rem := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if rem.Sign() != 0 {
		result.Add(result, one)
	}
	if result.Cmp(MaxUint256) > 0 {
		return nil, ErrOverflow
	}
	return result, nil
}
