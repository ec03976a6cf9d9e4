package onchain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vestafi/bonding-backend/internal/calc"
)

func testBond(side Side, id uint64, payout int64) Bond {
	return Bond{
		ID:              id,
		Side:            side,
		PrincipalAmount: big.NewInt(payout / 2),
		PayoutAmount:    big.NewInt(payout),
		ClaimedAmount:   new(big.Int),
		CreationTime:    10_000,
		MaturityTime:    11_000,
		LastClaimTime:   10_000,
	}
}

func TestActiveBondsSortedAndValidated(t *testing.T) {
	chain := newFakeChain()
	chain.bonds = map[Side][]Bond{
		SideBuy:  {testBond(SideBuy, 7, 100), testBond(SideBuy, 2, 200)},
		SideSell: {testBond(SideSell, 5, 300)},
	}
	// A bond with maturity before creation must be dropped, not served.
	malformed := testBond(SideBuy, 9, 400)
	malformed.MaturityTime = malformed.CreationTime - 1
	chain.bonds[SideBuy] = append(chain.bonds[SideBuy], malformed)

	svc := NewBondService(chain, zap.NewNop().Sugar())
	bonds, err := svc.ActiveBonds(context.Background(), common.HexToAddress("0x1"))
	require.NoError(t, err)

	require.Len(t, bonds, 3)
	assert.Equal(t, uint64(2), bonds[0].ID)
	assert.Equal(t, SideBuy, bonds[0].Side)
	assert.Equal(t, uint64(7), bonds[1].ID)
	assert.Equal(t, uint64(5), bonds[2].ID)
	assert.Equal(t, SideSell, bonds[2].Side)
}

func TestViews(t *testing.T) {
	bonds := []Bond{testBond(SideBuy, 1, 1_000_000_000)}
	views := Views(bonds, time.Unix(10_500, 0))

	require.Len(t, views, 1)
	assert.Zero(t, big.NewInt(500_000_000).Cmp(views[0].Vesting.Claimable))
	assert.Equal(t, 50, views[0].Vesting.Progress)
	assert.Equal(t, calc.StatusVesting, views[0].Vesting.Status)
	assert.True(t, views[0].Vesting.CanClaim)
}

func TestClaimable(t *testing.T) {
	chain := newFakeChain()
	chain.bonds = map[Side][]Bond{
		SideBuy: {testBond(SideBuy, 3, 1_000_000_000)},
	}
	svc := NewBondService(chain, zap.NewNop().Sugar())
	owner := common.HexToAddress("0x2")

	view, err := svc.Claimable(context.Background(), SideBuy, owner, 3, time.Unix(11_500, 0))
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(1_000_000_000).Cmp(view.Vesting.Claimable))
	assert.Equal(t, calc.StatusMature, view.Vesting.Status)

	_, err = svc.Claimable(context.Background(), SideBuy, owner, 99, time.Unix(11_500, 0))
	assert.Error(t, err)
}
