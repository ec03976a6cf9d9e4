package calc

import "math/big"

// Status describes where a bond sits in its lifecycle.
type Status string

const (
	StatusVesting Status = "Vesting"
	StatusMature  Status = "Mature"
	StatusClaimed Status = "Claimed"
)

// Schedule carries the vesting-relevant fields of a bond. Amounts are in the
// payout token's base units, timestamps are UNIX seconds.
type Schedule struct {
	PayoutAmount  *big.Int
	ClaimedAmount *big.Int
	CreationTime  int64
	MaturityTime  int64
	LastClaimTime int64
	Claimed       bool
}

// VestingView is the derived, display-ready state of a schedule at a given
// instant. Pure function of (Schedule, now); recomputed every tick.
type VestingView struct {
	Claimable *big.Int
	Progress  int
	Status    Status
	CanClaim  bool
}

// Claimable reproduces the contract's linear-vesting math: the amount newly
// payable at `now`, using truncating integer division so client and contract
// agree bit-for-bit.
func Claimable(s Schedule, now int64) *big.Int {
	if s.Claimed || now <= s.LastClaimTime {
		return new(big.Int)
	}

	var totalReleasable *big.Int
	if now >= s.MaturityTime {
		totalReleasable = new(big.Int).Set(s.PayoutAmount)
	} else {
		duration := s.MaturityTime - s.CreationTime
		elapsed := now - s.CreationTime
		if duration <= 0 || elapsed <= 0 {
			return new(big.Int)
		}
		totalReleasable = new(big.Int).Mul(s.PayoutAmount, big.NewInt(elapsed))
		totalReleasable.Div(totalReleasable, big.NewInt(duration))
	}

	claimable := new(big.Int).Sub(totalReleasable, s.ClaimedAmount)
	if claimable.Sign() < 0 {
		return new(big.Int)
	}
	remaining := new(big.Int).Sub(s.PayoutAmount, s.ClaimedAmount)
	if claimable.Cmp(remaining) > 0 {
		return remaining
	}
	return claimable
}

// Progress returns vesting completion in whole percent, capped at 100.
// A zero or negative duration reads as fully progressed once mature.
func Progress(s Schedule, now int64) int {
	duration := s.MaturityTime - s.CreationTime
	if duration <= 0 {
		if now >= s.MaturityTime {
			return 100
		}
		return 0
	}
	elapsed := now - s.CreationTime
	if elapsed <= 0 {
		return 0
	}
	pct := elapsed * 100 / duration
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// StatusOf classifies the schedule at `now`.
func StatusOf(s Schedule, now int64) Status {
	switch {
	case s.Claimed:
		return StatusClaimed
	case now >= s.MaturityTime:
		return StatusMature
	default:
		return StatusVesting
	}
}

// View bundles the derived vesting state for one instant.
func View(s Schedule, now int64) VestingView {
	claimable := Claimable(s, now)
	return VestingView{
		Claimable: claimable,
		Progress:  Progress(s, now),
		Status:    StatusOf(s, now),
		CanClaim:  !s.Claimed && claimable.Sign() > 0,
	}
}
