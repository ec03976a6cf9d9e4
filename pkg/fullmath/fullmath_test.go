package fullmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad test literal: " + s)
	}
	return v
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name     string
		a, b, d  *big.Int
		expected *big.Int
	}{
		{
			name: "floor division",
			a:    big.NewInt(3), b: big.NewInt(7), d: big.NewInt(2),
			expected: big.NewInt(10), // 21/2 = 10.5 -> 10
		},
		{
			name: "exact division",
			a:    big.NewInt(6), b: big.NewInt(7), d: big.NewInt(2),
			expected: big.NewInt(21),
		},
		{
			name: "zero product",
			a:    new(big.Int), b: big.NewInt(123456), d: big.NewInt(7),
			expected: new(big.Int),
		},
		{
			name: "phantom overflow survives",
			// a*b exceeds 2^256 but the quotient fits.
			a: new(big.Int).Lsh(big.NewInt(1), 200),
			b: new(big.Int).Lsh(big.NewInt(1), 100),
			d: new(big.Int).Lsh(big.NewInt(1), 60),
			expected: new(big.Int).Lsh(big.NewInt(1), 240),
		},
		{
			name: "result at uint256 max",
			a:    new(big.Int).Set(MaxUint256), b: big.NewInt(5), d: big.NewInt(5),
			expected: new(big.Int).Set(MaxUint256),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(tt.a, tt.b, tt.d)
			require.NoError(t, err)
			assert.Zero(t, tt.expected.Cmp(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestMulDivDoesNotMutateInputs(t *testing.T) {
	a := big.NewInt(1234567)
	b := big.NewInt(7654321)
	d := big.NewInt(99)
	aCopy := new(big.Int).Set(a)
	bCopy := new(big.Int).Set(b)
	dCopy := new(big.Int).Set(d)

	_, err := MulDiv(a, b, d)
	require.NoError(t, err)

	assert.Zero(t, a.Cmp(aCopy))
	assert.Zero(t, b.Cmp(bCopy))
	assert.Zero(t, d.Cmp(dCopy))
}

func TestMulDivDivisionByZero(t *testing.T) {
	_, err := MulDiv(big.NewInt(1), big.NewInt(1), new(big.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = MulDivRoundingUp(big.NewInt(1), big.NewInt(1), new(big.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)

	// Zero numerator still rejects a zero denominator.
	_, err = MulDiv(new(big.Int), new(big.Int), new(big.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDivOverflow(t *testing.T) {
	_, err := MulDiv(MaxUint256, big.NewInt(2), big.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)

	// One over the top after rounding up.
	_, err = MulDivRoundingUp(MaxUint256, big.NewInt(3), big.NewInt(3))
	require.NoError(t, err)
	_, err = MulDivRoundingUp(new(big.Int).Add(MaxUint256, big.NewInt(1)), big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulDivRoundingUp(t *testing.T) {
	tests := []struct {
		name     string
		a, b, d  *big.Int
		expected *big.Int
	}{
		{
			name: "rounds up on remainder",
			a:    big.NewInt(3), b: big.NewInt(7), d: big.NewInt(2),
			expected: big.NewInt(11),
		},
		{
			name: "exact stays",
			a:    big.NewInt(4), b: big.NewInt(5), d: big.NewInt(2),
			expected: big.NewInt(10),
		},
		{
			name: "zero product",
			a:    new(big.Int), b: big.NewInt(9), d: big.NewInt(4),
			expected: new(big.Int),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDivRoundingUp(tt.a, tt.b, tt.d)
			require.NoError(t, err)
			assert.Zero(t, tt.expected.Cmp(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

// floor(a*b/d)*d <= a*b < (floor(a*b/d)+1)*d for a sample of operands,
// including values wide enough to exercise the 512-bit intermediate.
func TestMulDivFloorBounds(t *testing.T) {
	samples := [][3]*big.Int{
		{big.NewInt(1), big.NewInt(1), big.NewInt(3)},
		{big.NewInt(987654321), big.NewInt(123456789), big.NewInt(1000)},
		{bi("340282366920938463463374607431768211455"), bi("79228162514264337593543950336"), bi("18446744073709551616")},
		{new(big.Int).Lsh(big.NewInt(7), 130), new(big.Int).Lsh(big.NewInt(11), 120), bi("999999999999999999999999937")},
	}

	for _, s := range samples {
		a, b, d := s[0], s[1], s[2]
		got, err := MulDiv(a, b, d)
		require.NoError(t, err)

		product := new(big.Int).Mul(a, b)
		lower := new(big.Int).Mul(got, d)
		upper := new(big.Int).Mul(new(big.Int).Add(got, big.NewInt(1)), d)

		assert.True(t, lower.Cmp(product) <= 0, "floor too high for %s*%s/%s", a, b, d)
		assert.True(t, product.Cmp(upper) < 0, "floor too low for %s*%s/%s", a, b, d)

		// Rounding up differs from floor exactly when the division is inexact.
		up, err := MulDivRoundingUp(a, b, d)
		require.NoError(t, err)
		if new(big.Int).Rem(product, d).Sign() == 0 {
			assert.Zero(t, got.Cmp(up))
		} else {
			assert.Zero(t, new(big.Int).Add(got, big.NewInt(1)).Cmp(up))
		}
	}
}
