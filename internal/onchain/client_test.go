package onchain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type readErrorRecorder struct {
	reads []string
}

func (r *readErrorRecorder) RecordChainReadError(ctx context.Context, read string) {
	r.reads = append(r.reads, read)
}

// The HTTP transport dials lazily, so a client pointed at a dead endpoint
// constructs fine and fails on the first batch. Every failed read must land
// in the error counter under its own label.
func TestClientRecordsReadErrors(t *testing.T) {
	recorder := &readErrorRecorder{}
	client, err := NewClient(context.Background(), "http://127.0.0.1:1", ClientOptions{
		Pool:    common.HexToAddress("0x01"),
		BuyBond: common.HexToAddress("0x02"),
		Metrics: recorder,
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	_, err = client.MinPurchaseAmount(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"min_purchase"}, recorder.reads)

	_, err = client.PoolState(ctx)
	require.Error(t, err)
	_, err = client.Treasury(ctx, SideBuy)
	require.Error(t, err)
	assert.Equal(t, []string{"min_purchase", "pool_state", "treasury"}, recorder.reads)
}

func TestClientWithoutMetricsStillFails(t *testing.T) {
	client, err := NewClient(context.Background(), "http://127.0.0.1:1", ClientOptions{
		BuyBond: common.HexToAddress("0x02"),
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.MinPurchaseAmount(context.Background())
	assert.Error(t, err)
}
