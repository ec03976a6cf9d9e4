package calc

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestafi/bonding-backend/pkg/fullmath"
)

func TestPoolReserves(t *testing.T) {
	// sqrtP = 2 * 2^96 means price = 4 token per collateral:
	// collateral = L / 2, token = L * 2.
	sqrtP := new(big.Int).Lsh(big.NewInt(2), 96)
	liquidity := big.NewInt(1_000_000)

	collateral, token, err := PoolReserves(sqrtP, liquidity)
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(500_000).Cmp(collateral))
	assert.Zero(t, big.NewInt(2_000_000).Cmp(token))
}

func TestPoolReservesDegenerate(t *testing.T) {
	tests := []struct {
		name      string
		sqrtP     *big.Int
		liquidity *big.Int
	}{
		{"zero sqrt price", new(big.Int), big.NewInt(1000)},
		{"zero liquidity", new(big.Int).Lsh(big.NewInt(1), 96), new(big.Int)},
		{"both zero", new(big.Int), new(big.Int)},
		{"nil sqrt price", nil, big.NewInt(1000)},
		{"nil liquidity", new(big.Int).Lsh(big.NewInt(1), 96), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collateral, token, err := PoolReserves(tt.sqrtP, tt.liquidity)
			require.NoError(t, err)
			assert.Zero(t, collateral.Sign())
			assert.Zero(t, token.Sign())
		})
	}
}

// The reserve product approximates L^2 regardless of price.
func TestPoolReservesProduct(t *testing.T) {
	liquidity := bi("340282366920938463463")
	for _, shift := range []uint{90, 96, 100, 110} {
		sqrtP := new(big.Int).Lsh(big.NewInt(3), shift)
		collateral, token, err := PoolReserves(sqrtP, liquidity)
		require.NoError(t, err)

		product := new(big.Int).Mul(collateral, token)
		l2 := new(big.Int).Mul(liquidity, liquidity)
		// Flooring in each direction loses at most a factor bounded by the
		// operands; check the product lands within 0.01% of L^2.
		diff := new(big.Int).Sub(l2, product)
		diff.Abs(diff)
		tolerance := new(big.Int).Div(l2, big.NewInt(10_000))
		assert.True(t, diff.Cmp(tolerance) <= 0, "shift %d: product %s vs L^2 %s", shift, product, l2)
	}
}

func TestEnsurePositiveReserve(t *testing.T) {
	assert.Zero(t, big.NewInt(1).Cmp(EnsurePositiveReserve(nil)))
	assert.Zero(t, big.NewInt(1).Cmp(EnsurePositiveReserve(new(big.Int))))
	assert.Zero(t, big.NewInt(1).Cmp(EnsurePositiveReserve(big.NewInt(-42))))
	assert.Zero(t, big.NewInt(7).Cmp(EnsurePositiveReserve(big.NewInt(7))))

	// Returned value is a copy, never an alias.
	in := big.NewInt(9)
	out := EnsurePositiveReserve(in)
	out.SetInt64(123)
	assert.Zero(t, big.NewInt(9).Cmp(in))
}

func TestSpotCollateralPerToken(t *testing.T) {
	// 500_000 collateral vs 2_000_000 token at 9 token decimals:
	// one whole token costs 500_000 * 1e9 / 2_000_000 = 250_000_000.
	got, err := SpotCollateralPerToken(big.NewInt(500_000), big.NewInt(2_000_000), 9)
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(250_000_000).Cmp(got))

	zero, err := SpotCollateralPerToken(new(big.Int), big.NewInt(2_000_000), 9)
	require.NoError(t, err)
	assert.Zero(t, zero.Sign())

	zero, err = SpotCollateralPerToken(big.NewInt(500_000), new(big.Int), 9)
	require.NoError(t, err)
	assert.Zero(t, zero.Sign())
}

func TestQ96Constant(t *testing.T) {
	assert.Zero(t, new(big.Int).Lsh(big.NewInt(1), 96).Cmp(fullmath.Q96))
}
