package calc

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimable(t *testing.T) {
	base := Schedule{
		PayoutAmount:  big.NewInt(1_000_000_000),
		ClaimedAmount: new(big.Int),
		CreationTime:  10_000,
		MaturityTime:  11_000,
		LastClaimTime: 10_000,
	}

	tests := []struct {
		name     string
		mutate   func(s *Schedule)
		now      int64
		expected *big.Int
	}{
		{
			name:     "nothing at creation",
			now:      10_000,
			expected: new(big.Int),
		},
		{
			name: "halfway vests half",
			now:  10_500,
			// floor(1_000_000_000 * 500 / 1000)
			expected: big.NewInt(500_000_000),
		},
		{
			name:     "full payout at maturity",
			now:      11_000,
			expected: big.NewInt(1_000_000_000),
		},
		{
			name:     "full payout after maturity",
			now:      12_345,
			expected: big.NewInt(1_000_000_000),
		},
		{
			name: "partial claim nets out",
			mutate: func(s *Schedule) {
				s.ClaimedAmount = big.NewInt(300_000_000)
				s.LastClaimTime = 10_300
			},
			now:      10_500,
			expected: big.NewInt(200_000_000),
		},
		{
			name: "mature with partial claim pays remainder",
			mutate: func(s *Schedule) {
				s.ClaimedAmount = big.NewInt(300_000_000)
				s.LastClaimTime = 10_300
			},
			now:      11_500,
			expected: big.NewInt(700_000_000),
		},
		{
			name: "fully claimed yields zero",
			mutate: func(s *Schedule) {
				s.Claimed = true
				s.ClaimedAmount = big.NewInt(1_000_000_000)
			},
			now:      12_000,
			expected: new(big.Int),
		},
		{
			name: "clock at last claim yields zero",
			mutate: func(s *Schedule) {
				s.LastClaimTime = 10_600
			},
			now:      10_600,
			expected: new(big.Int),
		},
		{
			name: "truncating division",
			mutate: func(s *Schedule) {
				s.PayoutAmount = big.NewInt(7)
			},
			now: 10_500,
			// floor(7 * 500 / 1000) = 3
			expected: big.NewInt(3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			got := Claimable(s, tt.now)
			require.NotNil(t, got)
			assert.Zero(t, tt.expected.Cmp(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

// Claimable never decreases as the clock advances over an unclaimed bond.
func TestClaimableMonotonic(t *testing.T) {
	s := Schedule{
		PayoutAmount:  big.NewInt(987_654_321),
		ClaimedAmount: new(big.Int),
		CreationTime:  0,
		MaturityTime:  86_400,
		LastClaimTime: 0,
	}

	prev := new(big.Int)
	for now := int64(0); now <= 100_000; now += 3_600 {
		got := Claimable(s, now)
		assert.True(t, got.Cmp(prev) >= 0, "claimable regressed at t=%d", now)
		assert.True(t, got.Cmp(s.PayoutAmount) <= 0, "claimable above payout at t=%d", now)
		prev = got
	}
}

func TestProgress(t *testing.T) {
	s := Schedule{
		PayoutAmount:  big.NewInt(1_000_000_000),
		ClaimedAmount: new(big.Int),
		CreationTime:  10_000,
		MaturityTime:  11_000,
		LastClaimTime: 10_000,
	}

	assert.Equal(t, 0, Progress(s, 9_000))
	assert.Equal(t, 0, Progress(s, 10_000))
	assert.Equal(t, 50, Progress(s, 10_500))
	assert.Equal(t, 99, Progress(s, 10_999))
	assert.Equal(t, 100, Progress(s, 11_000))
	assert.Equal(t, 100, Progress(s, 50_000))

	// Degenerate zero-duration schedule.
	s.MaturityTime = s.CreationTime
	assert.Equal(t, 100, Progress(s, 10_000))
	assert.Equal(t, 0, Progress(s, 9_999))
}

func TestStatusOf(t *testing.T) {
	s := Schedule{
		PayoutAmount:  big.NewInt(100),
		ClaimedAmount: new(big.Int),
		CreationTime:  0,
		MaturityTime:  1_000,
	}

	assert.Equal(t, StatusVesting, StatusOf(s, 500))
	assert.Equal(t, StatusMature, StatusOf(s, 1_000))
	assert.Equal(t, StatusMature, StatusOf(s, 2_000))

	s.Claimed = true
	assert.Equal(t, StatusClaimed, StatusOf(s, 2_000))
	assert.Equal(t, StatusClaimed, StatusOf(s, 500))
}

func TestView(t *testing.T) {
	s := Schedule{
		PayoutAmount:  big.NewInt(1_000_000_000),
		ClaimedAmount: new(big.Int),
		CreationTime:  10_000,
		MaturityTime:  11_000,
		LastClaimTime: 10_000,
	}

	v := View(s, 10_500)
	assert.Zero(t, big.NewInt(500_000_000).Cmp(v.Claimable))
	assert.Equal(t, 50, v.Progress)
	assert.Equal(t, StatusVesting, v.Status)
	assert.True(t, v.CanClaim)

	// Nothing vested yet.
	v = View(s, 10_000)
	assert.False(t, v.CanClaim)
	assert.Equal(t, StatusVesting, v.Status)

	// Claimed bonds can never claim regardless of claimable math.
	s.Claimed = true
	v = View(s, 12_000)
	assert.False(t, v.CanClaim)
	assert.Equal(t, StatusClaimed, v.Status)
	assert.Zero(t, v.Claimable.Sign())
}

func TestValidateSchedule(t *testing.T) {
	valid := Schedule{
		PayoutAmount:  big.NewInt(100),
		ClaimedAmount: big.NewInt(20),
		CreationTime:  100,
		MaturityTime:  200,
	}
	require.NoError(t, ValidateSchedule(valid))

	broken := valid
	broken.ClaimedAmount = big.NewInt(150)
	assert.Error(t, ValidateSchedule(broken))

	broken = valid
	broken.MaturityTime = valid.CreationTime
	assert.Error(t, ValidateSchedule(broken))

	broken = valid
	broken.PayoutAmount = nil
	assert.Error(t, ValidateSchedule(broken))

	broken = valid
	broken.ClaimedAmount = big.NewInt(-1)
	assert.Error(t, ValidateSchedule(broken))
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("123456789000000000")
	require.NoError(t, err)
	assert.Zero(t, bi("123456789000000000").Cmp(got))

	for _, s := range []string{"", "0", "-5", "1.5", "abc", "0x10"} {
		_, err := ParseAmount(s)
		assert.Error(t, err, "input %q", s)
	}
}
