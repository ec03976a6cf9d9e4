package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vestafi/bonding-backend/internal/onchain"
	"github.com/vestafi/bonding-backend/internal/store"
)

// VestingTicker recomputes vesting views for watched wallets every tick and
// publishes them for websocket fan-out. Tick math is pure clock arithmetic
// over cached bond snapshots; the chain is only touched by the slower refresh
// loop.
type VestingTicker struct {
	bonds  *onchain.BondService
	cache  *store.Cache
	logger *zap.SugaredLogger
	config VestingTickerConfig

	mu        sync.RWMutex
	watched   map[common.Address]int // refcount per subscriber
	snapshots map[common.Address][]onchain.Bond
	cancelCtx context.CancelFunc
}

type VestingTickerConfig struct {
	TickInterval    time.Duration // how often views are recomputed and published
	RefreshInterval time.Duration // how often bond snapshots are re-read from chain
}

func DefaultVestingTickerConfig() VestingTickerConfig {
	return VestingTickerConfig{
		TickInterval:    time.Second,
		RefreshInterval: 15 * time.Second,
	}
}

// VestingUpdate is the published per-wallet payload.
type VestingUpdate struct {
	Address string       `json:"address"`
	At      int64        `json:"at"`
	Bonds   []BondUpdate `json:"bonds"`
}

type BondUpdate struct {
	ID        uint64 `json:"id"`
	Side      string `json:"side"`
	Payout    string `json:"payout"`
	Claimable string `json:"claimable"`
	Progress  int    `json:"progressPercent"`
	Status    string `json:"status"`
	CanClaim  bool   `json:"canClaim"`
}

func NewVestingTicker(bonds *onchain.BondService, cache *store.Cache, logger *zap.SugaredLogger, config VestingTickerConfig) *VestingTicker {
	return &VestingTicker{
		bonds:     bonds,
		cache:     cache,
		logger:    logger,
		config:    config,
		watched:   make(map[common.Address]int),
		snapshots: make(map[common.Address][]onchain.Bond),
	}
}

// Watch adds a wallet to the tick loop. The first watcher triggers an
// immediate snapshot fetch so the first tick has data.
func (v *VestingTicker) Watch(ctx context.Context, addr common.Address) {
	v.mu.Lock()
	v.watched[addr]++
	first := v.watched[addr] == 1
	v.mu.Unlock()

	if first {
		v.refreshOne(ctx, addr)
	}
}

// Unwatch drops one subscriber; the wallet leaves the loop when the last
// subscriber is gone.
func (v *VestingTicker) Unwatch(addr common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.watched[addr] <= 1 {
		delete(v.watched, addr)
		delete(v.snapshots, addr)
		return
	}
	v.watched[addr]--
}

func (v *VestingTicker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	v.cancelCtx = cancel

	v.logger.Infow("starting vesting ticker",
		"tick", v.config.TickInterval,
		"refresh", v.config.RefreshInterval,
	)

	tick := time.NewTicker(v.config.TickInterval)
	refresh := time.NewTicker(v.config.RefreshInterval)
	defer tick.Stop()
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			v.logger.Infow("vesting ticker stopping")
			return ctx.Err()
		case <-tick.C:
			v.publishViews(ctx, time.Now())
		case <-refresh.C:
			v.refreshAll(ctx)
		}
	}
}

func (v *VestingTicker) Stop() {
	if v.cancelCtx != nil {
		v.cancelCtx()
	}
}

func (v *VestingTicker) watchedAddresses() []common.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	addrs := make([]common.Address, 0, len(v.watched))
	for addr := range v.watched {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (v *VestingTicker) refreshAll(ctx context.Context) {
	for _, addr := range v.watchedAddresses() {
		v.refreshOne(ctx, addr)
	}
}

func (v *VestingTicker) refreshOne(ctx context.Context, addr common.Address) {
	bonds, err := v.bonds.ActiveBonds(ctx, addr)
	if err != nil {
		// Keep the stale snapshot; views stay consistent and the next
		// refresh retries.
		v.logger.Warnw("bond snapshot refresh failed", "address", addr.Hex(), "error", err)
		return
	}
	v.mu.Lock()
	if _, still := v.watched[addr]; still {
		v.snapshots[addr] = bonds
	}
	v.mu.Unlock()
}

func (v *VestingTicker) publishViews(ctx context.Context, now time.Time) {
	v.mu.RLock()
	snapshots := make(map[common.Address][]onchain.Bond, len(v.snapshots))
	for addr, bonds := range v.snapshots {
		snapshots[addr] = bonds
	}
	v.mu.RUnlock()

	for addr, bonds := range snapshots {
		update := buildUpdate(addr, bonds, now)
		if err := v.cache.Publish(ctx, store.ChannelVesting, update); err != nil {
			v.logger.Warnw("failed to publish vesting update", "address", addr.Hex(), "error", err)
		}
	}
}

func buildUpdate(addr common.Address, bonds []onchain.Bond, now time.Time) VestingUpdate {
	views := onchain.Views(bonds, now)
	update := VestingUpdate{
		Address: addr.Hex(),
		At:      now.Unix(),
		Bonds:   make([]BondUpdate, len(views)),
	}
	for i, view := range views {
		update.Bonds[i] = BondUpdate{
			ID:        view.Bond.ID,
			Side:      string(view.Bond.Side),
			Payout:    view.Bond.PayoutAmount.String(),
			Claimable: view.Vesting.Claimable.String(),
			Progress:  view.Vesting.Progress,
			Status:    string(view.Vesting.Status),
			CanClaim:  view.Vesting.CanClaim,
		}
	}
	return update
}
