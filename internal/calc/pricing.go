package calc

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/vestafi/bonding-backend/pkg/fullmath"
)

// Basis-point scale shared with the contracts. A term rate at or above the
// full scale would zero (or invert) the discount denominator, so it is
// treated as a fatal configuration error rather than a quote warning.
var (
	bpsScale = big.NewInt(10000)

	feeNum = big.NewInt(99)
	feeDen = big.NewInt(100)

	ErrRateOutOfRange = errors.New("calc: rate basis points out of [0, 10000)")
)

// CollateralForToken computes the constant-product collateral amount implied
// by buying tokenAmount out of the (collateral, token) reserve pair:
//
//	dx = x * dy / (y - dy)
//
// A nil result (with nil error) means the model is exhausted: the requested
// amount meets or exceeds the token-side reserve.
func CollateralForToken(collateralReserve, tokenReserve, tokenAmount *big.Int) (*big.Int, error) {
	denominator := new(big.Int).Sub(tokenReserve, tokenAmount)
	if denominator.Sign() <= 0 {
		return nil, nil
	}
	return fullmath.MulDiv(collateralReserve, tokenAmount, denominator)
}

// TokenForCollateral computes the token output for a net collateral input
// against the reserve pair: dy = y * dx / (x + dx). The additive denominator
// cannot go non-positive with clamped reserves.
func TokenForCollateral(collateralReserve, tokenReserve, netCollateral *big.Int) (*big.Int, error) {
	denominator := new(big.Int).Add(collateralReserve, netCollateral)
	if denominator.Sign() <= 0 {
		return nil, nil
	}
	return fullmath.MulDiv(tokenReserve, netCollateral, denominator)
}

// SellCollateralOut computes the collateral paid out for selling netToken into
// the reserve pair: dx = x * dy / (y + dy). Selling grows the token-side
// reserve, hence the addition.
func SellCollateralOut(collateralReserve, tokenReserve, netToken *big.Int) (*big.Int, error) {
	denominator := new(big.Int).Add(tokenReserve, netToken)
	if denominator.Sign() <= 0 {
		return nil, nil
	}
	return fullmath.MulDiv(collateralReserve, netToken, denominator)
}

// ConservativeCost picks the required-input baseline that protects the
// protocol: the larger of the impacted-model and live-market amounts. The
// second return reports whether the live pool value was used (the impacted
// model had drifted favorably or was exhausted).
func ConservativeCost(impacted, market *big.Int) (baseline *big.Int, reservesSynced bool) {
	if impacted == nil {
		return market, market != nil
	}
	if market != nil && impacted.Cmp(market) < 0 {
		return market, true
	}
	return impacted, false
}

// ConservativePayout mirrors ConservativeCost for output quotes: the smaller
// payout wins.
func ConservativePayout(impacted, market *big.Int) (baseline *big.Int, reservesSynced bool) {
	if impacted == nil {
		return market, market != nil
	}
	if market != nil && impacted.Cmp(market) > 0 {
		return market, true
	}
	return impacted, false
}

// ApplyDiscount scales a cost baseline by (10000 - rateBps) / 10000.
func ApplyDiscount(base *big.Int, rateBps int64) (*big.Int, error) {
	if err := ValidateRate(rateBps); err != nil {
		return nil, err
	}
	return fullmath.MulDiv(base, new(big.Int).Sub(bpsScale, big.NewInt(rateBps)), bpsScale)
}

// GrossUpDiscount scales a payout baseline by 10000 / (10000 - rateBps),
// the inverse direction used when solving for token output.
func GrossUpDiscount(base *big.Int, rateBps int64) (*big.Int, error) {
	if err := ValidateRate(rateBps); err != nil {
		return nil, err
	}
	return fullmath.MulDiv(base, bpsScale, new(big.Int).Sub(bpsScale, big.NewInt(rateBps)))
}

// ApplyPremium scales a sell payout by (10000 + rateBps) / 10000.
func ApplyPremium(base *big.Int, rateBps int64) (*big.Int, error) {
	if err := ValidateRate(rateBps); err != nil {
		return nil, err
	}
	return fullmath.MulDiv(base, new(big.Int).Add(bpsScale, big.NewInt(rateBps)), bpsScale)
}

// DeductFee removes the 1% protocol fee from an input amount (99/100, floor).
func DeductFee(amount *big.Int) (*big.Int, error) {
	return fullmath.MulDiv(amount, feeNum, feeDen)
}

// GrossUpFee adds the 1% protocol fee on top of a computed cost (100/99).
func GrossUpFee(amount *big.Int) (*big.Int, error) {
	return fullmath.MulDiv(amount, feeDen, feeNum)
}

// ValidateRate rejects rates the discount denominator cannot absorb.
func ValidateRate(rateBps int64) error {
	if rateBps < 0 || rateBps >= 10000 {
		return fmt.Errorf("%w: %d", ErrRateOutOfRange, rateBps)
	}
	return nil
}
