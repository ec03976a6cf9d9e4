package api

// DTOs use strings for every on-chain amount. Base-unit fields are exact
// integers; display fields are shifted by the asset's decimals for the UI.

type QuoteDTO struct {
	QuoteID         string `json:"quoteId"`
	Side            string `json:"side"`
	Term            string `json:"term"`
	RateBasisPoints int64  `json:"rateBasisPoints"`
	Amount          string `json:"amount"`
	AmountDisplay   string `json:"amountDisplay"`
	AmountAsset     string `json:"amountAsset"`
	ReservesSynced  bool   `json:"reservesSynced"`
	Warning         string `json:"warning,omitempty"`
	WarningMessage  string `json:"warningMessage,omitempty"`
	AsOf            int64  `json:"asOf"`
}

type TermDTO struct {
	Term            string `json:"term"`
	DurationSeconds int64  `json:"durationSeconds"`
	RateBasisPoints int64  `json:"rateBasisPoints"`
}

type TermsDTO struct {
	Side  string    `json:"side"`
	Terms []TermDTO `json:"terms"`
}

type BondDTO struct {
	ID             uint64 `json:"id"`
	Side           string `json:"side"`
	Principal      string `json:"principal"`
	Payout         string `json:"payout"`
	PayoutDisplay  string `json:"payoutDisplay"`
	ClaimedAmount  string `json:"claimedAmount"`
	Claimable      string `json:"claimable"`
	ClaimableShown string `json:"claimableDisplay"`
	Progress       int    `json:"progressPercent"`
	Status         string `json:"status"`
	CanClaim       bool   `json:"canClaim"`
	CreationTime   int64  `json:"creationTime"`
	MaturityTime   int64  `json:"maturityTime"`
}

type BondsDTO struct {
	Address string    `json:"address"`
	AsOf    int64     `json:"asOf"`
	Bonds   []BondDTO `json:"bonds"`
}

type ImpactedReservesDTO struct {
	CollateralReserve string `json:"collateralReserve"`
	TokenReserve      string `json:"tokenReserve"`
	LastSync          int64  `json:"lastSync"`
}

type PoolDTO struct {
	SqrtPriceX96      string                         `json:"sqrtPriceX96"`
	Liquidity         string                         `json:"liquidity"`
	CollateralReserve string                         `json:"collateralReserve"`
	TokenReserve      string                         `json:"tokenReserve"`
	SpotPrice         string                         `json:"spotPrice"`
	SpotPriceDisplay  string                         `json:"spotPriceDisplay"`
	ImpactedReserves  map[string]ImpactedReservesDTO `json:"impactedReserves"`
	AsOf              int64                          `json:"asOf"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
