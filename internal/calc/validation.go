package calc

import (
	"fmt"
	"math/big"
)

// ParseAmount parses a base-unit amount from its decimal string form and
// requires it to be a positive integer.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return v, nil
}

// ValidateSchedule rejects bonds whose stored fields violate the contract
// invariants; such bonds indicate a decoding bug, not user error.
func ValidateSchedule(s Schedule) error {
	if s.PayoutAmount == nil || s.ClaimedAmount == nil {
		return fmt.Errorf("schedule amounts must be set")
	}
	if s.PayoutAmount.Sign() < 0 || s.ClaimedAmount.Sign() < 0 {
		return fmt.Errorf("schedule amounts must be non-negative")
	}
	if s.ClaimedAmount.Cmp(s.PayoutAmount) > 0 {
		return fmt.Errorf("claimed amount %s exceeds payout %s", s.ClaimedAmount, s.PayoutAmount)
	}
	if s.MaturityTime <= s.CreationTime {
		return fmt.Errorf("maturity %d not after creation %d", s.MaturityTime, s.CreationTime)
	}
	return nil
}
