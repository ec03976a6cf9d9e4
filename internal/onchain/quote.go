package onchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vestafi/bonding-backend/internal/calc"
	"github.com/vestafi/bonding-backend/internal/config"
	"github.com/vestafi/bonding-backend/internal/store"
)

// QuoteService prices bond trades the way the contracts will settle them:
// impacted reserves first, live pool as the conservative fallback, then the
// term discount or premium and the protocol fee.
type QuoteService struct {
	chain  ChainReader
	cache  *store.Cache
	config *config.Config
	logger *zap.SugaredLogger
	sf     singleflight.Group
}

func NewQuoteService(chain ChainReader, cache *store.Cache, cfg *config.Config, logger *zap.SugaredLogger) *QuoteService {
	return &QuoteService{
		chain:  chain,
		cache:  cache,
		config: cfg,
		logger: logger,
	}
}

// marketState is one consistent read of everything a quote needs besides the
// rate table.
type marketState struct {
	impacted *ImpactedReserves
	pool     *PoolState
	treasury *Treasury
}

// fetchMarketState reads impacted reserves, pool state and treasury
// concurrently. Any failed leg fails the quote; partial market data is worse
// than none.
func (s *QuoteService) fetchMarketState(ctx context.Context, side Side) (*marketState, error) {
	var state marketState
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		impacted, err := s.chain.ImpactedReserves(gctx, side)
		if err != nil {
			return err
		}
		state.impacted = impacted
		return nil
	})
	g.Go(func() error {
		pool, err := s.chain.PoolState(gctx)
		if err != nil {
			return err
		}
		state.pool = pool
		return nil
	})
	g.Go(func() error {
		treasury, err := s.chain.Treasury(gctx, side)
		if err != nil {
			return err
		}
		state.treasury = treasury
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &state, nil
}

// marketReserves derives the live-pool reserve pair, or (nil, nil) when the
// pool is uninitialized and cannot serve as a baseline.
func marketReserves(pool *PoolState) (*big.Int, *big.Int, error) {
	collateral, token, err := calc.PoolReserves(pool.SqrtPriceX96, pool.Liquidity)
	if err != nil {
		return nil, nil, err
	}
	if collateral.Sign() == 0 || token.Sign() == 0 {
		return nil, nil, nil
	}
	return calc.EnsurePositiveReserve(collateral), calc.EnsurePositiveReserve(token), nil
}

func (s *QuoteService) newQuote(side Side, term Term, rateBps int64) *Quote {
	return &Quote{
		QuoteID:         uuid.New(),
		Side:            side,
		Term:            term,
		RateBasisPoints: rateBps,
		AsOf:            time.Now().UTC(),
	}
}

// BuyQuoteForToken prices the collateral cost of a fixed token payout. The
// quoted cost already includes the term discount and the protocol fee.
func (s *QuoteService) BuyQuoteForToken(ctx context.Context, tokenAmount *big.Int, term Term) (*Quote, error) {
	rateBps, err := s.rateFor(ctx, SideBuy, term)
	if err != nil {
		return nil, err
	}
	quote := s.newQuote(SideBuy, term, rateBps)

	minPurchase, err := s.MinPurchase(ctx)
	if err != nil {
		return nil, err
	}
	if minPurchase.Sign() > 0 && tokenAmount.Cmp(minPurchase) < 0 {
		quote.Warning = WarnBelowMinimum
		return quote, nil
	}

	state, err := s.fetchMarketState(ctx, SideBuy)
	if err != nil {
		return nil, err
	}

	impC := calc.EnsurePositiveReserve(state.impacted.Collateral)
	impT := calc.EnsurePositiveReserve(state.impacted.Token)

	// A request at or beyond the impacted token reserve would exhaust or
	// invert the reserve model; no price exists for it.
	if tokenAmount.Cmp(impT) >= 0 {
		quote.Warning = WarnLiquidityExhausted
		return quote, nil
	}

	// The payout side is the requested amount itself, so the treasury check
	// does not depend on pricing.
	if tokenAmount.Cmp(state.treasury.Available) > 0 {
		quote.Warning = WarnTreasuryInsufficient
		return quote, nil
	}

	impactedCost, err := calc.CollateralForToken(impC, impT, tokenAmount)
	if err != nil {
		return nil, err
	}

	var marketCost *big.Int
	mC, mT, err := marketReserves(state.pool)
	if err != nil {
		return nil, err
	}
	if mC != nil {
		if tokenAmount.Cmp(mT) >= 0 {
			quote.Warning = WarnLiquidityExhausted
			return quote, nil
		}
		marketCost, err = calc.CollateralForToken(mC, mT, tokenAmount)
		if err != nil {
			return nil, err
		}
	}

	baseline, synced := calc.ConservativeCost(impactedCost, marketCost)
	if baseline == nil {
		quote.Warning = WarnLiquidityExhausted
		return quote, nil
	}
	quote.ReservesSynced = synced

	discounted, err := calc.ApplyDiscount(baseline, rateBps)
	if err != nil {
		return nil, err
	}
	cost, err := calc.GrossUpFee(discounted)
	if err != nil {
		return nil, err
	}
	quote.Amount = cost
	return quote, nil
}

// BuyQuoteForCollateral prices the token payout of a fixed collateral spend.
// The fee comes off the input before it meets the curve; the discount grosses
// the output up.
func (s *QuoteService) BuyQuoteForCollateral(ctx context.Context, collateralAmount *big.Int, term Term) (*Quote, error) {
	rateBps, err := s.rateFor(ctx, SideBuy, term)
	if err != nil {
		return nil, err
	}
	quote := s.newQuote(SideBuy, term, rateBps)

	state, err := s.fetchMarketState(ctx, SideBuy)
	if err != nil {
		return nil, err
	}

	net, err := calc.DeductFee(collateralAmount)
	if err != nil {
		return nil, err
	}

	impC := calc.EnsurePositiveReserve(state.impacted.Collateral)
	impT := calc.EnsurePositiveReserve(state.impacted.Token)
	impactedOut, err := calc.TokenForCollateral(impC, impT, net)
	if err != nil {
		return nil, err
	}

	var marketOut *big.Int
	mC, mT, err := marketReserves(state.pool)
	if err != nil {
		return nil, err
	}
	if mC != nil {
		marketOut, err = calc.TokenForCollateral(mC, mT, net)
		if err != nil {
			return nil, err
		}
	}

	baseline, synced := calc.ConservativePayout(impactedOut, marketOut)
	if baseline == nil {
		quote.Warning = WarnLiquidityExhausted
		return quote, nil
	}
	quote.ReservesSynced = synced

	tokens, err := calc.GrossUpDiscount(baseline, rateBps)
	if err != nil {
		return nil, err
	}

	if tokens.Cmp(state.treasury.Available) > 0 {
		quote.Warning = WarnTreasuryInsufficient
		return quote, nil
	}
	quote.Amount = tokens

	minPurchase, err := s.MinPurchase(ctx)
	if err != nil {
		return nil, err
	}
	if minPurchase.Sign() > 0 && tokens.Cmp(minPurchase) < 0 {
		quote.Warning = WarnBelowMinimum
	}
	return quote, nil
}

// SellQuote prices the collateral payout for selling tokens into a sell bond.
func (s *QuoteService) SellQuote(ctx context.Context, tokenAmount *big.Int, term Term) (*Quote, error) {
	rateBps, err := s.rateFor(ctx, SideSell, term)
	if err != nil {
		return nil, err
	}
	quote := s.newQuote(SideSell, term, rateBps)

	state, err := s.fetchMarketState(ctx, SideSell)
	if err != nil {
		return nil, err
	}

	net, err := calc.DeductFee(tokenAmount)
	if err != nil {
		return nil, err
	}

	impC := calc.EnsurePositiveReserve(state.impacted.Collateral)
	impT := calc.EnsurePositiveReserve(state.impacted.Token)

	// Selling at or beyond the impacted token reserve breaks the model.
	if net.Cmp(impT) >= 0 {
		quote.Warning = WarnLiquidityExhausted
		return quote, nil
	}

	impactedOut, err := calc.SellCollateralOut(impC, impT, net)
	if err != nil {
		return nil, err
	}

	var marketOut *big.Int
	mC, mT, err := marketReserves(state.pool)
	if err != nil {
		return nil, err
	}
	if mC != nil {
		marketOut, err = calc.SellCollateralOut(mC, mT, net)
		if err != nil {
			return nil, err
		}
	}

	baseline, synced := calc.ConservativePayout(impactedOut, marketOut)
	if baseline == nil {
		quote.Warning = WarnLiquidityExhausted
		return quote, nil
	}
	quote.ReservesSynced = synced

	payout, err := calc.ApplyPremium(baseline, rateBps)
	if err != nil {
		return nil, err
	}

	// The quote is only good if the treasury can actually pay it.
	if payout.Cmp(state.treasury.Available) > 0 {
		quote.Warning = WarnTreasuryInsufficient
		return quote, nil
	}
	quote.Amount = payout
	return quote, nil
}

// Rates returns the term table for one side. The table changes only by
// governance action, so it is cached and deduplicated across callers.
func (s *QuoteService) Rates(ctx context.Context, side Side) ([]Rate, error) {
	key := store.KeyBondRates(string(side))

	var cached []Rate
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		rates, err := s.chain.BondRates(ctx, side)
		if err != nil {
			return nil, err
		}
		for _, r := range rates {
			if err := calc.ValidateRate(r.RateBasisPoints); err != nil {
				return nil, fmt.Errorf("term %s: %w", r.Term, err)
			}
		}
		if err := s.cache.Set(ctx, key, rates, s.config.Quotes.RatesTTL); err != nil {
			s.logger.Warnw("failed to cache bond rates", "side", side, "error", err)
		}
		return rates, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Rate), nil
}

// RefreshRates drops the cached tables so the next quote re-reads them.
func (s *QuoteService) RefreshRates(ctx context.Context) error {
	for _, side := range []Side{SideBuy, SideSell} {
		if err := s.cache.Delete(ctx, store.KeyBondRates(string(side))); err != nil {
			return err
		}
	}
	return nil
}

func (s *QuoteService) rateFor(ctx context.Context, side Side, term Term) (int64, error) {
	if !term.Valid() {
		return 0, fmt.Errorf("unknown term %d", term)
	}
	rates, err := s.Rates(ctx, side)
	if err != nil {
		return 0, err
	}
	for _, r := range rates {
		if r.Term == term {
			return r.RateBasisPoints, nil
		}
	}
	return 0, fmt.Errorf("no rate configured for term %s on %s side", term, side)
}

// MinPurchase returns the buy contract's minimum purchase, cached alongside
// the rate tables.
func (s *QuoteService) MinPurchase(ctx context.Context) (*big.Int, error) {
	var cached string
	if err := s.cache.Get(ctx, store.KeyMinPurchase, &cached); err == nil {
		if v, ok := new(big.Int).SetString(cached, 10); ok {
			return v, nil
		}
	}

	v, err, _ := s.sf.Do(store.KeyMinPurchase, func() (interface{}, error) {
		min, err := s.chain.MinPurchaseAmount(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, store.KeyMinPurchase, min.String(), s.config.Quotes.RatesTTL); err != nil {
			s.logger.Warnw("failed to cache min purchase", "error", err)
		}
		return min, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

// PoolOverview is the market condensed for display: raw pool state, derived
// reserves, the spot price of one whole token in collateral base units, and
// each bond contract's impacted reserve snapshot.
type PoolOverview struct {
	SqrtPriceX96      *big.Int
	Liquidity         *big.Int
	CollateralReserve *big.Int
	TokenReserve      *big.Int
	SpotPrice         *big.Int
	Impacted          map[Side]*ImpactedReserves
	AsOf              time.Time
}

func (s *QuoteService) PoolOverview(ctx context.Context) (*PoolOverview, error) {
	v, err, _ := s.sf.Do("pool-overview", func() (interface{}, error) {
		var pool *PoolState
		var buyImpacted, sellImpacted *ImpactedReserves
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			p, err := s.chain.PoolState(gctx)
			if err != nil {
				return err
			}
			pool = p
			return nil
		})
		g.Go(func() error {
			r, err := s.chain.ImpactedReserves(gctx, SideBuy)
			if err != nil {
				return err
			}
			buyImpacted = r
			return nil
		})
		g.Go(func() error {
			r, err := s.chain.ImpactedReserves(gctx, SideSell)
			if err != nil {
				return err
			}
			sellImpacted = r
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		impacted := map[Side]*ImpactedReserves{SideBuy: buyImpacted, SideSell: sellImpacted}

		collateral, token, err := calc.PoolReserves(pool.SqrtPriceX96, pool.Liquidity)
		if err != nil {
			return nil, err
		}
		spot, err := calc.SpotCollateralPerToken(collateral, token, s.config.Chain.TokenDecimals)
		if err != nil {
			return nil, err
		}
		return &PoolOverview{
			SqrtPriceX96:      pool.SqrtPriceX96,
			Liquidity:         pool.Liquidity,
			CollateralReserve: collateral,
			TokenReserve:      token,
			SpotPrice:         spot,
			Impacted:          impacted,
			AsOf:              time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PoolOverview), nil
}
