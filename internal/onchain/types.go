package onchain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Side distinguishes the two bond contracts: Buy takes collateral and vests
// tokens, Sell takes tokens and vests collateral.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Term identifies one of the fixed vesting durations.
type Term uint8

const (
	TermWeek Term = iota
	TermMonth
	TermQuarter
	TermHalf
	TermYear
)

const daySeconds = 24 * 60 * 60

var termDurations = map[Term]int64{
	TermWeek:    7 * daySeconds,
	TermMonth:   30 * daySeconds,
	TermQuarter: 90 * daySeconds,
	TermHalf:    180 * daySeconds,
	TermYear:    365 * daySeconds,
}

var termNames = map[Term]string{
	TermWeek:    "week",
	TermMonth:   "month",
	TermQuarter: "quarter",
	TermHalf:    "half",
	TermYear:    "year",
}

// AllTerms lists the supported terms in ascending duration order.
func AllTerms() []Term {
	return []Term{TermWeek, TermMonth, TermQuarter, TermHalf, TermYear}
}

// DurationSeconds returns the vesting duration the contracts key rates by.
func (t Term) DurationSeconds() int64 { return termDurations[t] }

func (t Term) String() string {
	if n, ok := termNames[t]; ok {
		return n
	}
	return "unknown"
}

// Valid reports whether t names a supported term.
func (t Term) Valid() bool {
	_, ok := termDurations[t]
	return ok
}

// ParseTerm maps a term name to its id.
func ParseTerm(s string) (Term, bool) {
	for t, n := range termNames {
		if n == s {
			return t, true
		}
	}
	return 0, false
}

// Rate is one row of a bond contract's term table.
type Rate struct {
	Term            Term  `json:"term"`
	RateBasisPoints int64 `json:"rateBasisPoints"`
	DurationSeconds int64 `json:"durationSeconds"`
}

// ImpactedReserves is the bond contract's lagging copy of the pool reserves,
// advanced only by bond trades between syncs.
type ImpactedReserves struct {
	Collateral *big.Int
	Token      *big.Int
	LastSync   time.Time
}

// PoolState is the live AMM oracle state used as the comparison baseline.
type PoolState struct {
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

// Bond is one vesting position as stored by a bond contract. Principal is the
// asset paid in; payout is the asset vesting out.
type Bond struct {
	ID              uint64
	Side            Side
	PrincipalAmount *big.Int
	PayoutAmount    *big.Int
	ClaimedAmount   *big.Int
	CreationTime    int64
	MaturityTime    int64
	LastClaimTime   int64
	Claimed         bool
}

// WarningCode flags a degraded quote. The code travels through the stack;
// human-readable text is attached only at the API boundary.
type WarningCode string

const (
	WarnNone                 WarningCode = ""
	WarnLiquidityExhausted   WarningCode = "liquidity_exhausted"
	WarnTreasuryInsufficient WarningCode = "treasury_insufficient"
	WarnBelowMinimum         WarningCode = "below_minimum"
)

// Quote is a priced bond trade. Amount is nil when Warning explains why no
// price could be produced.
type Quote struct {
	QuoteID         uuid.UUID   `json:"quoteId"`
	Side            Side        `json:"side"`
	Term            Term        `json:"term"`
	RateBasisPoints int64       `json:"rateBasisPoints"`
	Amount          *big.Int    `json:"-"`
	ReservesSynced  bool        `json:"reservesSynced"`
	Warning         WarningCode `json:"warning,omitempty"`
	AsOf            time.Time   `json:"asOf"`
}

// Treasury is the payout capacity of one bond contract: its payout-token
// balance less what earlier bonds have already committed.
type Treasury struct {
	Balance   *big.Int
	Committed *big.Int
	Available *big.Int
}

// BondHolder ties a wallet to its positions on one side.
type BondHolder struct {
	Address common.Address
	Bonds   []Bond
}
