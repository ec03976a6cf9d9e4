package calc

import (
	"math/big"

	"github.com/vestafi/bonding-backend/pkg/fullmath"
)

var one = big.NewInt(1)

// PoolReserves converts raw pool state (sqrt price in Q64.96 and in-range
// liquidity) into virtual token reserves:
//
//	collateral = L * 2^96 / sqrtP
//	token      = L * sqrtP / 2^96
//
// A zero sqrt price or zero liquidity describes an uninitialized pool; both
// reserves are reported as zero and callers treat the quote as unavailable.
func PoolReserves(sqrtPriceX96, liquidity *big.Int) (collateralReserve, tokenReserve *big.Int, err error) {
	if sqrtPriceX96 == nil || liquidity == nil || sqrtPriceX96.Sign() == 0 || liquidity.Sign() == 0 {
		return new(big.Int), new(big.Int), nil
	}

	collateralReserve, err = fullmath.MulDiv(liquidity, fullmath.Q96, sqrtPriceX96)
	if err != nil {
		return nil, nil, err
	}
	tokenReserve, err = fullmath.MulDiv(liquidity, sqrtPriceX96, fullmath.Q96)
	if err != nil {
		return nil, nil, err
	}
	return collateralReserve, tokenReserve, nil
}

// EnsurePositiveReserve clamps a reserve to a minimum of 1 so the
// constant-product denominators can never hit zero. Returns a fresh value.
func EnsurePositiveReserve(v *big.Int) *big.Int {
	if v == nil || v.Sign() <= 0 {
		return new(big.Int).Set(one)
	}
	return new(big.Int).Set(v)
}

// SpotCollateralPerToken returns the pool-implied price of one whole token in
// collateral base units, scaled by 10^tokenDecimals to preserve precision.
// Zero when either reserve is zero.
func SpotCollateralPerToken(collateralReserve, tokenReserve *big.Int, tokenDecimals int) (*big.Int, error) {
	if collateralReserve.Sign() == 0 || tokenReserve.Sign() == 0 {
		return new(big.Int), nil
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tokenDecimals)), nil)
	return fullmath.MulDiv(collateralReserve, scale, tokenReserve)
}
