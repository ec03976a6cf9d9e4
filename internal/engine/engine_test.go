package engine

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vestafi/bonding-backend/internal/onchain"
)

// echoProvider returns the request amount back as the quote amount so tests
// can tell which request produced a result.
type echoProvider struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
}

func (p *echoProvider) quote(ctx context.Context, amount *big.Int, side onchain.Side) (*onchain.Quote, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &onchain.Quote{Side: side, Amount: new(big.Int).Set(amount)}, nil
}

func (p *echoProvider) BuyQuoteForToken(ctx context.Context, amount *big.Int, term onchain.Term) (*onchain.Quote, error) {
	return p.quote(ctx, amount, onchain.SideBuy)
}

func (p *echoProvider) BuyQuoteForCollateral(ctx context.Context, amount *big.Int, term onchain.Term) (*onchain.Quote, error) {
	return p.quote(ctx, amount, onchain.SideBuy)
}

func (p *echoProvider) SellQuote(ctx context.Context, amount *big.Int, term onchain.Term) (*onchain.Quote, error) {
	return p.quote(ctx, amount, onchain.SideSell)
}

func (p *echoProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestSubmitDeliversQuote(t *testing.T) {
	provider := &echoProvider{}
	eng := New(provider, 5*time.Millisecond, zap.NewNop().Sugar())

	res := <-eng.Submit(context.Background(), Request{
		Kind:   KindBuyForToken,
		Amount: big.NewInt(42),
		Term:   onchain.TermWeek,
	})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Quote)
	assert.Zero(t, big.NewInt(42).Cmp(res.Quote.Amount))
	assert.Equal(t, uint64(1), res.Token)
}

func TestDebounceSupersedesEarlierRequests(t *testing.T) {
	provider := &echoProvider{}
	eng := New(provider, 20*time.Millisecond, zap.NewNop().Sugar())
	ctx := context.Background()

	// Three keystrokes inside one debounce window: only the last hits the
	// provider.
	ch1 := eng.Submit(ctx, Request{Kind: KindSell, Amount: big.NewInt(1), Term: onchain.TermWeek})
	ch2 := eng.Submit(ctx, Request{Kind: KindSell, Amount: big.NewInt(12), Term: onchain.TermWeek})
	ch3 := eng.Submit(ctx, Request{Kind: KindSell, Amount: big.NewInt(123), Term: onchain.TermWeek})

	res1 := <-ch1
	res2 := <-ch2
	res3 := <-ch3

	assert.ErrorIs(t, res1.Err, ErrSuperseded)
	assert.ErrorIs(t, res2.Err, ErrSuperseded)
	require.NoError(t, res3.Err)
	assert.Zero(t, big.NewInt(123).Cmp(res3.Quote.Amount))
	assert.Equal(t, 1, provider.callCount())

	// Tokens are strictly increasing across the stream.
	assert.Less(t, res1.Token, res2.Token)
	assert.Less(t, res2.Token, res3.Token)
}

func TestStreamsDebounceIndependently(t *testing.T) {
	provider := &echoProvider{}
	eng := New(provider, 10*time.Millisecond, zap.NewNop().Sugar())
	ctx := context.Background()

	chBuy := eng.Submit(ctx, Request{Kind: KindBuyForToken, Amount: big.NewInt(5), Term: onchain.TermWeek})
	chSell := eng.Submit(ctx, Request{Kind: KindSell, Amount: big.NewInt(9), Term: onchain.TermWeek})

	resBuy := <-chBuy
	resSell := <-chSell
	require.NoError(t, resBuy.Err)
	require.NoError(t, resSell.Err)
	assert.Equal(t, onchain.SideBuy, resBuy.Quote.Side)
	assert.Equal(t, onchain.SideSell, resSell.Quote.Side)
	assert.Equal(t, 2, provider.callCount())
}

func TestCancelAbortsPending(t *testing.T) {
	provider := &echoProvider{}
	eng := New(provider, 50*time.Millisecond, zap.NewNop().Sugar())

	ch := eng.Submit(context.Background(), Request{Kind: KindBuyForCollateral, Amount: big.NewInt(7), Term: onchain.TermWeek})
	eng.Cancel("", KindBuyForCollateral)

	res := <-ch
	assert.ErrorIs(t, res.Err, ErrSuperseded)
	assert.Equal(t, 0, provider.callCount())
}

func TestClientsDoNotSupersedeEachOther(t *testing.T) {
	provider := &echoProvider{}
	eng := New(provider, 10*time.Millisecond, zap.NewNop().Sugar())
	ctx := context.Background()

	chA := eng.Submit(ctx, Request{Kind: KindSell, Client: "a", Amount: big.NewInt(1), Term: onchain.TermWeek})
	chB := eng.Submit(ctx, Request{Kind: KindSell, Client: "b", Amount: big.NewInt(2), Term: onchain.TermWeek})

	resA := <-chA
	resB := <-chB
	require.NoError(t, resA.Err)
	require.NoError(t, resB.Err)
	assert.Zero(t, big.NewInt(1).Cmp(resA.Quote.Amount))
	assert.Zero(t, big.NewInt(2).Cmp(resB.Quote.Amount))
}

func TestCallerContextCancellation(t *testing.T) {
	provider := &echoProvider{delay: 100 * time.Millisecond}
	eng := New(provider, time.Millisecond, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	ch := eng.Submit(ctx, Request{Kind: KindSell, Amount: big.NewInt(3), Term: onchain.TermWeek})
	time.Sleep(10 * time.Millisecond)
	cancel()

	res := <-ch
	assert.Error(t, res.Err)
	assert.Nil(t, res.Quote)
}
