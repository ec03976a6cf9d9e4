package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vestafi/bonding-backend/internal/onchain"
)

// ErrSuperseded reports that a newer request on the same stream replaced this
// one before it produced a quote.
var ErrSuperseded = errors.New("quote request superseded")

// Kind names one input stream: which quote operation the amounts feed.
// Requests of the same kind debounce against each other; different kinds run
// independently.
type Kind string

const (
	KindBuyForToken      Kind = "buy_token"
	KindBuyForCollateral Kind = "buy_collateral"
	KindSell             Kind = "sell"
)

// QuoteProvider is the slice of the quote service the engine drives.
type QuoteProvider interface {
	BuyQuoteForToken(ctx context.Context, tokenAmount *big.Int, term onchain.Term) (*onchain.Quote, error)
	BuyQuoteForCollateral(ctx context.Context, collateralAmount *big.Int, term onchain.Term) (*onchain.Quote, error)
	SellQuote(ctx context.Context, tokenAmount *big.Int, term onchain.Term) (*onchain.Quote, error)
}

// Request is one keystroke's worth of quote input. Client separates streams
// from different callers so they never supersede each other.
type Request struct {
	Kind   Kind
	Client string
	Amount *big.Int
	Term   onchain.Term
}

func (r Request) streamKey() string {
	return r.Client + "/" + string(r.Kind)
}

// Result carries the quote (or the reason there is none) plus the monotonic
// token identifying which request produced it.
type Result struct {
	Token uint64
	Quote *onchain.Quote
	Err   error
}

type stream struct {
	token  uint64
	cancel context.CancelFunc
}

// Engine debounces rapid-fire quote requests per input stream so only the
// latest amount reaches the chain, and stamps every request with a monotonic
// token so late results can never overwrite newer ones.
type Engine struct {
	quotes   QuoteProvider
	debounce time.Duration
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	streams map[string]*stream
}

func New(quotes QuoteProvider, debounce time.Duration, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		quotes:   quotes,
		debounce: debounce,
		logger:   logger,
		streams:  make(map[string]*stream),
	}
}

// Submit registers a request on its stream and returns a channel that will
// receive exactly one Result. Submitting again on the same stream before the
// debounce window closes supersedes the earlier request.
func (e *Engine) Submit(ctx context.Context, req Request) <-chan Result {
	key := req.streamKey()
	e.mu.Lock()
	st, ok := e.streams[key]
	if !ok {
		st = &stream{}
		e.streams[key] = st
	}
	if st.cancel != nil {
		st.cancel()
	}
	st.token++
	token := st.token
	cctx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	e.mu.Unlock()

	out := make(chan Result, 1)
	go e.run(cctx, req, token, out)
	return out
}

func (e *Engine) run(ctx context.Context, req Request, token uint64, out chan<- Result) {
	timer := time.NewTimer(e.debounce)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		out <- Result{Token: token, Err: supersededOr(ctx.Err())}
		return
	case <-timer.C:
	}

	quote, err := e.fetch(ctx, req)
	if !e.isLatest(req.streamKey(), token) {
		out <- Result{Token: token, Err: ErrSuperseded}
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			err = supersededOr(ctx.Err())
		} else {
			e.logger.Warnw("quote request failed", "kind", req.Kind, "error", err)
		}
		out <- Result{Token: token, Err: err}
		return
	}
	out <- Result{Token: token, Quote: quote}
}

func (e *Engine) fetch(ctx context.Context, req Request) (*onchain.Quote, error) {
	switch req.Kind {
	case KindBuyForToken:
		return e.quotes.BuyQuoteForToken(ctx, req.Amount, req.Term)
	case KindBuyForCollateral:
		return e.quotes.BuyQuoteForCollateral(ctx, req.Amount, req.Term)
	case KindSell:
		return e.quotes.SellQuote(ctx, req.Amount, req.Term)
	default:
		return nil, errors.New("unknown request kind")
	}
}

func (e *Engine) isLatest(key string, token uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.streams[key]
	return ok && st.token == token
}

// Cancel aborts any pending request on the stream without submitting a new
// one, used when the input empties.
func (e *Engine) Cancel(client string, kind Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.streams[Request{Kind: kind, Client: client}.streamKey()]; ok && st.cancel != nil {
		st.cancel()
		st.cancel = nil
		st.token++
	}
}

// A cancelled request context usually means a newer request took over; report
// that as supersession rather than a bare context error.
func supersededOr(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrSuperseded
	}
	return err
}
