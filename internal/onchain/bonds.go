package onchain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vestafi/bonding-backend/internal/calc"
)

// BondService reads a holder's positions and derives their vesting state.
// Chain reads happen only on fetch; the per-second views are pure clock math.
type BondService struct {
	chain  ChainReader
	logger *zap.SugaredLogger
}

func NewBondService(chain ChainReader, logger *zap.SugaredLogger) *BondService {
	return &BondService{chain: chain, logger: logger}
}

// BondView joins a position with its vesting state at one instant.
type BondView struct {
	Bond    Bond
	Vesting calc.VestingView
}

func schedule(b Bond) calc.Schedule {
	return calc.Schedule{
		PayoutAmount:  b.PayoutAmount,
		ClaimedAmount: b.ClaimedAmount,
		CreationTime:  b.CreationTime,
		MaturityTime:  b.MaturityTime,
		LastClaimTime: b.LastClaimTime,
		Claimed:       b.Claimed,
	}
}

// ActiveBonds fetches the holder's positions from both bond contracts
// concurrently, dropping anything that fails invariant checks, sorted by id
// within each side for stable display.
func (s *BondService) ActiveBonds(ctx context.Context, owner common.Address) ([]Bond, error) {
	var buy, sell []Bond
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		buy, err = s.chain.BondsOf(gctx, SideBuy, owner)
		return err
	})
	g.Go(func() error {
		var err error
		sell, err = s.chain.BondsOf(gctx, SideSell, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch bonds for %s: %w", owner.Hex(), err)
	}

	bonds := make([]Bond, 0, len(buy)+len(sell))
	for _, b := range append(buy, sell...) {
		if err := calc.ValidateSchedule(schedule(b)); err != nil {
			s.logger.Warnw("skipping malformed bond",
				"owner", owner.Hex(), "side", b.Side, "id", b.ID, "error", err)
			continue
		}
		bonds = append(bonds, b)
	}

	sort.Slice(bonds, func(i, j int) bool {
		if bonds[i].Side != bonds[j].Side {
			return bonds[i].Side == SideBuy
		}
		return bonds[i].ID < bonds[j].ID
	})
	return bonds, nil
}

// Views derives display state for a set of bonds at `now`.
func Views(bonds []Bond, now time.Time) []BondView {
	views := make([]BondView, len(bonds))
	for i, b := range bonds {
		views[i] = BondView{Bond: b, Vesting: calc.View(schedule(b), now.Unix())}
	}
	return views
}

// Claimable recomputes a single bond's claimable amount at `now`, used by the
// per-bond claimable endpoint.
func (s *BondService) Claimable(ctx context.Context, side Side, owner common.Address, bondID uint64, now time.Time) (*BondView, error) {
	bonds, err := s.chain.BondsOf(ctx, side, owner)
	if err != nil {
		return nil, fmt.Errorf("fetch bonds for %s: %w", owner.Hex(), err)
	}
	for _, b := range bonds {
		if b.ID != bondID {
			continue
		}
		if err := calc.ValidateSchedule(schedule(b)); err != nil {
			return nil, fmt.Errorf("bond %d: %w", bondID, err)
		}
		v := BondView{Bond: b, Vesting: calc.View(schedule(b), now.Unix())}
		return &v, nil
	}
	return nil, fmt.Errorf("bond %d not found for %s on %s side", bondID, owner.Hex(), side)
}
