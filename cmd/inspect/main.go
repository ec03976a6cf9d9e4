// Command inspect dials the configured chain and dumps the live bonding
// state as JSON. Useful after a deployment to confirm the contract
// addresses in the environment point at real, initialized contracts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/vestafi/bonding-backend/internal/config"
	"github.com/vestafi/bonding-backend/internal/log"
	"github.com/vestafi/bonding-backend/internal/onchain"
)

type snapshot struct {
	Network      string         `json:"network"`
	RPCURL       string         `json:"rpcUrl"`
	Pool         poolInfo       `json:"pool"`
	MinPurchase  string         `json:"minPurchase"`
	Sides        map[string]any `json:"sides"`
	CapturedAt   int64          `json:"capturedAt"`
	CaptureTook  string         `json:"captureTook"`
}

type poolInfo struct {
	SqrtPriceX96 string `json:"sqrtPriceX96"`
	Liquidity    string `json:"liquidity"`
}

type sideInfo struct {
	ImpactedCollateral string     `json:"impactedCollateral"`
	ImpactedToken      string     `json:"impactedToken"`
	LastSync           int64      `json:"lastSync"`
	TreasuryBalance    string     `json:"treasuryBalance"`
	TreasuryCommitted  string     `json:"treasuryCommitted"`
	TreasuryAvailable  string     `json:"treasuryAvailable"`
	Rates              []rateInfo `json:"rates"`
}

type rateInfo struct {
	Term            string `json:"term"`
	DurationSeconds int64  `json:"durationSeconds"`
	RateBasisPoints int64  `json:"rateBasisPoints"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := onchain.NewClient(ctx, cfg.Chain.RPCURL, onchain.ClientOptions{
		Pool:       cfg.Chain.Pool(),
		BuyBond:    cfg.Chain.BuyBond(),
		SellBond:   cfg.Chain.SellBond(),
		Token:      cfg.Chain.Token(),
		Collateral: cfg.Chain.Collateral(),
	}, logger)
	if err != nil {
		logger.Fatalw("Failed to dial chain RPC", "rpc", cfg.Chain.RPCURL, "error", err)
	}
	defer client.Close()

	start := time.Now()

	pool, err := client.PoolState(ctx)
	if err != nil {
		logger.Fatalw("Failed to read pool state", "error", err)
	}
	minPurchase, err := client.MinPurchaseAmount(ctx)
	if err != nil {
		logger.Fatalw("Failed to read min purchase amount", "error", err)
	}

	snap := snapshot{
		Network: cfg.Chain.Network,
		RPCURL:  cfg.Chain.RPCURL,
		Pool: poolInfo{
			SqrtPriceX96: pool.SqrtPriceX96.String(),
			Liquidity:    pool.Liquidity.String(),
		},
		MinPurchase: minPurchase.String(),
		Sides:       make(map[string]any, 2),
	}

	for _, side := range []onchain.Side{onchain.SideBuy, onchain.SideSell} {
		info, err := readSide(ctx, client, side)
		if err != nil {
			logger.Fatalw("Failed to read side state", "side", side, "error", err)
		}
		snap.Sides[string(side)] = info
	}

	snap.CapturedAt = time.Now().Unix()
	snap.CaptureTook = time.Since(start).String()

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		logger.Fatalw("Failed to marshal snapshot", "error", err)
	}
	fmt.Println(string(out))
}

func readSide(ctx context.Context, client *onchain.Client, side onchain.Side) (sideInfo, error) {
	impacted, err := client.ImpactedReserves(ctx, side)
	if err != nil {
		return sideInfo{}, fmt.Errorf("impacted reserves: %w", err)
	}
	treasury, err := client.Treasury(ctx, side)
	if err != nil {
		return sideInfo{}, fmt.Errorf("treasury: %w", err)
	}
	rates, err := client.BondRates(ctx, side)
	if err != nil {
		return sideInfo{}, fmt.Errorf("bond rates: %w", err)
	}

	info := sideInfo{
		ImpactedCollateral: impacted.Collateral.String(),
		ImpactedToken:      impacted.Token.String(),
		LastSync:           impacted.LastSync.Unix(),
		TreasuryBalance:    treasury.Balance.String(),
		TreasuryCommitted:  treasury.Committed.String(),
		TreasuryAvailable:  treasury.Available.String(),
		Rates:              make([]rateInfo, 0, len(rates)),
	}
	for _, rate := range rates {
		info.Rates = append(info.Rates, rateInfo{
			Term:            rate.Term.String(),
			DurationSeconds: rate.DurationSeconds,
			RateBasisPoints: rate.RateBasisPoints,
		})
	}
	return info, nil
}
