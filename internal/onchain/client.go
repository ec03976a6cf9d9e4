package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// ChainReader is the read surface the pricing services need. Everything is a
// view call; the backend never signs or submits transactions.
type ChainReader interface {
	ImpactedReserves(ctx context.Context, side Side) (*ImpactedReserves, error)
	PoolState(ctx context.Context) (*PoolState, error)
	Treasury(ctx context.Context, side Side) (*Treasury, error)
	BondRates(ctx context.Context, side Side) ([]Rate, error)
	BondsOf(ctx context.Context, side Side, owner common.Address) ([]Bond, error)
	MinPurchaseAmount(ctx context.Context) (*big.Int, error)
}

const bondABIJSON = `[
	{"name":"impactedCollateralReserve","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"impactedTokenReserve","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"lastImpactedSync","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"bondRates","type":"function","stateMutability":"view","inputs":[{"type":"uint256"}],"outputs":[{"type":"uint256"}]},
	{"name":"totalPendingPayout","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"minPurchaseAmount","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"getBonds","type":"function","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"tuple[]","components":[
		{"name":"id","type":"uint256"},
		{"name":"principal","type":"uint256"},
		{"name":"payout","type":"uint256"},
		{"name":"claimedAmount","type":"uint256"},
		{"name":"creationTime","type":"uint256"},
		{"name":"maturityTime","type":"uint256"},
		{"name":"lastClaimTime","type":"uint256"},
		{"name":"isClaimed","type":"bool"}]}]}
]`

const poolABIJSON = `[
	{"name":"slot0","type":"function","stateMutability":"view","inputs":[],"outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}]},
	{"name":"liquidity","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint128"}]}
]`

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"uint256"}]}
]`

var (
	bondABI  = mustABI(bondABIJSON)
	poolABI  = mustABI(poolABIJSON)
	erc20ABI = mustABI(erc20ABIJSON)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ChainMetrics is the slice of the metrics module the client records to.
type ChainMetrics interface {
	RecordChainReadError(ctx context.Context, read string)
}

type Client struct {
	rpc     *rpc.Client
	logger  *zap.SugaredLogger
	metrics ChainMetrics

	pool       common.Address
	buyBond    common.Address
	sellBond   common.Address
	token      common.Address
	collateral common.Address
}

type ClientOptions struct {
	Pool       common.Address
	BuyBond    common.Address
	SellBond   common.Address
	Token      common.Address
	Collateral common.Address
	Metrics    ChainMetrics // optional
}

func NewClient(ctx context.Context, rpcURL string, opts ClientOptions, logger *zap.SugaredLogger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return &Client{
		rpc:        rc,
		logger:     logger,
		metrics:    opts.Metrics,
		pool:       opts.Pool,
		buyBond:    opts.BuyBond,
		sellBond:   opts.SellBond,
		token:      opts.Token,
		collateral: opts.Collateral,
	}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) bondAddress(side Side) common.Address {
	if side == SideSell {
		return c.sellBond
	}
	return c.buyBond
}

// payoutToken is the asset a bond on the given side vests: the project token
// for buy bonds, the collateral for sell bonds.
func (c *Client) payoutToken(side Side) common.Address {
	if side == SideSell {
		return c.collateral
	}
	return c.token
}

type callSpec struct {
	to   common.Address
	data []byte
}

func (c *Client) recordReadError(ctx context.Context, read string) {
	if c.metrics != nil {
		c.metrics.RecordChainReadError(ctx, read)
	}
}

// batchCall runs every spec in a single JSON-RPC batch against the latest
// block. All-or-nothing: one failed element fails the whole read so callers
// never mix state from different blocks with partial data. The read label
// names the high-level read for error metrics.
func (c *Client) batchCall(ctx context.Context, read string, specs []callSpec) ([][]byte, error) {
	elems := make([]rpc.BatchElem, len(specs))
	results := make([]hexutil.Bytes, len(specs))
	for i, spec := range specs {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":   spec.to.Hex(),
					"data": hexutil.Encode(spec.data),
				},
				"latest",
			},
			Result: &results[i],
		}
	}

	if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
		c.recordReadError(ctx, read)
		return nil, fmt.Errorf("batch call: %w", err)
	}
	out := make([][]byte, len(specs))
	for i, elem := range elems {
		if elem.Error != nil {
			c.recordReadError(ctx, read)
			return nil, fmt.Errorf("batch element %d: %w", i, elem.Error)
		}
		out[i] = results[i]
	}
	return out, nil
}

func mustPack(parsed abi.ABI, method string, args ...interface{}) []byte {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("pack %s: %v", method, err))
	}
	return data
}

func unpackUint256(parsed abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

// ImpactedReserves reads the side's virtual reserve pair and its last sync
// time in one batch.
func (c *Client) ImpactedReserves(ctx context.Context, side Side) (*ImpactedReserves, error) {
	addr := c.bondAddress(side)
	raw, err := c.batchCall(ctx, "impacted_reserves", []callSpec{
		{addr, mustPack(bondABI, "impactedCollateralReserve")},
		{addr, mustPack(bondABI, "impactedTokenReserve")},
		{addr, mustPack(bondABI, "lastImpactedSync")},
	})
	if err != nil {
		return nil, fmt.Errorf("impacted reserves (%s): %w", side, err)
	}

	collateral, err := unpackUint256(bondABI, "impactedCollateralReserve", raw[0])
	if err != nil {
		return nil, err
	}
	token, err := unpackUint256(bondABI, "impactedTokenReserve", raw[1])
	if err != nil {
		return nil, err
	}
	lastSync, err := unpackUint256(bondABI, "lastImpactedSync", raw[2])
	if err != nil {
		return nil, err
	}

	return &ImpactedReserves{
		Collateral: collateral,
		Token:      token,
		LastSync:   time.Unix(lastSync.Int64(), 0).UTC(),
	}, nil
}

// PoolState reads the AMM oracle's sqrt price and in-range liquidity.
func (c *Client) PoolState(ctx context.Context) (*PoolState, error) {
	raw, err := c.batchCall(ctx, "pool_state", []callSpec{
		{c.pool, mustPack(poolABI, "slot0")},
		{c.pool, mustPack(poolABI, "liquidity")},
	})
	if err != nil {
		return nil, fmt.Errorf("pool state: %w", err)
	}

	slot0, err := poolABI.Unpack("slot0", raw[0])
	if err != nil {
		return nil, fmt.Errorf("unpack slot0: %w", err)
	}
	sqrtPrice, ok := slot0[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack slot0: unexpected type %T", slot0[0])
	}
	liquidity, err := unpackUint256(poolABI, "liquidity", raw[1])
	if err != nil {
		return nil, err
	}

	return &PoolState{SqrtPriceX96: sqrtPrice, Liquidity: liquidity}, nil
}

// Treasury reads the side's payout capacity: its payout-token balance and the
// total already committed to open bonds.
func (c *Client) Treasury(ctx context.Context, side Side) (*Treasury, error) {
	addr := c.bondAddress(side)
	raw, err := c.batchCall(ctx, "treasury", []callSpec{
		{c.payoutToken(side), mustPack(erc20ABI, "balanceOf", addr)},
		{addr, mustPack(bondABI, "totalPendingPayout")},
	})
	if err != nil {
		return nil, fmt.Errorf("treasury (%s): %w", side, err)
	}

	balance, err := unpackUint256(erc20ABI, "balanceOf", raw[0])
	if err != nil {
		return nil, err
	}
	committed, err := unpackUint256(bondABI, "totalPendingPayout", raw[1])
	if err != nil {
		return nil, err
	}

	available := new(big.Int).Sub(balance, committed)
	if available.Sign() < 0 {
		available.SetInt64(0)
	}
	return &Treasury{Balance: balance, Committed: committed, Available: available}, nil
}

// BondRates reads the full term table for one side in a single batch.
func (c *Client) BondRates(ctx context.Context, side Side) ([]Rate, error) {
	addr := c.bondAddress(side)
	terms := AllTerms()
	specs := make([]callSpec, len(terms))
	for i, term := range terms {
		specs[i] = callSpec{addr, mustPack(bondABI, "bondRates", big.NewInt(term.DurationSeconds()))}
	}
	raw, err := c.batchCall(ctx, "bond_rates", specs)
	if err != nil {
		return nil, fmt.Errorf("bond rates (%s): %w", side, err)
	}

	rates := make([]Rate, len(terms))
	for i, term := range terms {
		v, err := unpackUint256(bondABI, "bondRates", raw[i])
		if err != nil {
			return nil, err
		}
		rates[i] = Rate{
			Term:            term,
			RateBasisPoints: v.Int64(),
			DurationSeconds: term.DurationSeconds(),
		}
	}
	return rates, nil
}

type bondRecord struct {
	Id            *big.Int
	Principal     *big.Int
	Payout        *big.Int
	ClaimedAmount *big.Int
	CreationTime  *big.Int
	MaturityTime  *big.Int
	LastClaimTime *big.Int
	IsClaimed     bool
}

// BondsOf reads the owner's positions on one side.
func (c *Client) BondsOf(ctx context.Context, side Side, owner common.Address) ([]Bond, error) {
	raw, err := c.batchCall(ctx, "bonds_of", []callSpec{
		{c.bondAddress(side), mustPack(bondABI, "getBonds", owner)},
	})
	if err != nil {
		return nil, fmt.Errorf("bonds of %s (%s): %w", owner.Hex(), side, err)
	}

	out, err := bondABI.Unpack("getBonds", raw[0])
	if err != nil {
		return nil, fmt.Errorf("unpack getBonds: %w", err)
	}
	records := *abi.ConvertType(out[0], new([]bondRecord)).(*[]bondRecord)

	bonds := make([]Bond, len(records))
	for i, r := range records {
		bonds[i] = Bond{
			ID:              r.Id.Uint64(),
			Side:            side,
			PrincipalAmount: r.Principal,
			PayoutAmount:    r.Payout,
			ClaimedAmount:   r.ClaimedAmount,
			CreationTime:    r.CreationTime.Int64(),
			MaturityTime:    r.MaturityTime.Int64(),
			LastClaimTime:   r.LastClaimTime.Int64(),
			Claimed:         r.IsClaimed,
		}
	}
	return bonds, nil
}

// MinPurchaseAmount reads the buy contract's minimum token purchase.
func (c *Client) MinPurchaseAmount(ctx context.Context) (*big.Int, error) {
	raw, err := c.batchCall(ctx, "min_purchase", []callSpec{
		{c.buyBond, mustPack(bondABI, "minPurchaseAmount")},
	})
	if err != nil {
		return nil, fmt.Errorf("min purchase amount: %w", err)
	}
	return unpackUint256(bondABI, "minPurchaseAmount", raw[0])
}
