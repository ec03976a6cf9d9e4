package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vestafi/bonding-backend/internal/calc"
	"github.com/vestafi/bonding-backend/internal/config"
	"github.com/vestafi/bonding-backend/internal/engine"
	"github.com/vestafi/bonding-backend/internal/onchain"
	"github.com/vestafi/bonding-backend/internal/store"
	"github.com/vestafi/bonding-backend/internal/ws"
)

// QuoteMetrics is the slice of the metrics module the handlers record to.
type QuoteMetrics interface {
	RecordQuote(ctx context.Context, side, warning string)
}

type Handler struct {
	quoteSvc *onchain.QuoteService
	bondSvc  *onchain.BondService
	engine   *engine.Engine
	wsHub    *ws.Hub
	cache    *store.Cache
	config   *config.Config
	logger   *zap.SugaredLogger
	metrics  QuoteMetrics
}

func NewHandler(
	quoteSvc *onchain.QuoteService,
	bondSvc *onchain.BondService,
	eng *engine.Engine,
	wsHub *ws.Hub,
	cache *store.Cache,
	cfg *config.Config,
	logger *zap.SugaredLogger,
	metrics QuoteMetrics,
) *Handler {
	return &Handler{
		quoteSvc: quoteSvc,
		bondSvc:  bondSvc,
		engine:   eng,
		wsHub:    wsHub,
		cache:    cache,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

var warningMessages = map[onchain.WarningCode]string{
	onchain.WarnLiquidityExhausted:   "requested amount exceeds the available model liquidity",
	onchain.WarnTreasuryInsufficient: "the treasury cannot cover this bond's payout",
	onchain.WarnBelowMinimum:         "amount is below the minimum bond purchase",
}

// Quote endpoints

func (h *Handler) GetBuyQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := calc.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return
	}
	term, ok := onchain.ParseTerm(r.URL.Query().Get("term"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "INVALID_TERM", "term must be one of week, month, quarter, half, year")
		return
	}

	kind := engine.KindBuyForToken
	asset := "collateral" // buying a fixed token amount quotes a collateral cost
	decimals := h.config.Chain.CollateralDecimals
	if r.URL.Query().Get("denomination") == "collateral" {
		kind = engine.KindBuyForCollateral
		asset = "token"
		decimals = h.config.Chain.TokenDecimals
	}

	h.serveQuote(w, r, engine.Request{
		Kind:   kind,
		Client: clientID(r),
		Amount: amount,
		Term:   term,
	}, asset, decimals)
}

func (h *Handler) GetSellQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := calc.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return
	}
	term, ok := onchain.ParseTerm(r.URL.Query().Get("term"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "INVALID_TERM", "term must be one of week, month, quarter, half, year")
		return
	}

	h.serveQuote(w, r, engine.Request{
		Kind:   engine.KindSell,
		Client: clientID(r),
		Amount: amount,
		Term:   term,
	}, "collateral", h.config.Chain.CollateralDecimals)
}

func (h *Handler) serveQuote(w http.ResponseWriter, r *http.Request, req engine.Request, asset string, decimals int) {
	select {
	case res := <-h.engine.Submit(r.Context(), req):
		if res.Err != nil {
			if errors.Is(res.Err, engine.ErrSuperseded) {
				h.writeError(w, http.StatusConflict, "SUPERSEDED", "a newer quote request replaced this one")
				return
			}
			h.writeError(w, http.StatusBadGateway, "QUOTE_ERROR", res.Err.Error())
			return
		}
		if h.metrics != nil {
			h.metrics.RecordQuote(r.Context(), string(res.Quote.Side), string(res.Quote.Warning))
		}
		h.writeJSON(w, http.StatusOK, h.quoteDTO(res.Quote, asset, decimals))
	case <-r.Context().Done():
		// Client went away; nothing to write.
	}
}

func (h *Handler) quoteDTO(q *onchain.Quote, asset string, decimals int) QuoteDTO {
	dto := QuoteDTO{
		QuoteID:         q.QuoteID.String(),
		Side:            string(q.Side),
		Term:            q.Term.String(),
		RateBasisPoints: q.RateBasisPoints,
		ReservesSynced:  q.ReservesSynced,
		Warning:         string(q.Warning),
		WarningMessage:  warningMessages[q.Warning],
		AsOf:            q.AsOf.Unix(),
	}
	if q.Amount != nil {
		dto.Amount = q.Amount.String()
		dto.AmountDisplay = displayAmount(q.Amount, decimals)
	} else {
		// Warnings come with an explicit zero amount, not a missing field.
		dto.Amount = "0"
		dto.AmountDisplay = "0"
	}
	dto.AmountAsset = asset
	return dto
}

// Term endpoints

func (h *Handler) GetTerms(w http.ResponseWriter, r *http.Request) {
	side := onchain.SideBuy
	if r.URL.Query().Get("side") == "sell" {
		side = onchain.SideSell
	}

	rates, err := h.quoteSvc.Rates(r.Context(), side)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "RATES_ERROR", err.Error())
		return
	}

	dto := TermsDTO{Side: string(side), Terms: make([]TermDTO, len(rates))}
	for i, rate := range rates {
		dto.Terms[i] = TermDTO{
			Term:            rate.Term.String(),
			DurationSeconds: rate.DurationSeconds,
			RateBasisPoints: rate.RateBasisPoints,
		}
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// Bond endpoints

func (h *Handler) GetBonds(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		h.writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", "address is not a valid hex address")
		return
	}
	addr := common.HexToAddress(raw)

	bonds, err := h.bondSvc.ActiveBonds(r.Context(), addr)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "BONDS_ERROR", err.Error())
		return
	}

	now := time.Now()
	views := onchain.Views(bonds, now)
	dto := BondsDTO{Address: addr.Hex(), AsOf: now.Unix(), Bonds: make([]BondDTO, len(views))}
	for i, view := range views {
		dto.Bonds[i] = h.bondDTO(view)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetClaimable(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		h.writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", "address is not a valid hex address")
		return
	}
	bondID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BOND_ID", "bond id must be a non-negative integer")
		return
	}
	side := onchain.SideBuy
	if r.URL.Query().Get("side") == "sell" {
		side = onchain.SideSell
	}

	view, err := h.bondSvc.Claimable(r.Context(), side, common.HexToAddress(raw), bondID, time.Now())
	if err != nil {
		h.writeError(w, http.StatusNotFound, "BOND_NOT_FOUND", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.bondDTO(*view))
}

func (h *Handler) bondDTO(view onchain.BondView) BondDTO {
	// Buy bonds vest the project token, sell bonds vest collateral.
	decimals := h.config.Chain.TokenDecimals
	if view.Bond.Side == onchain.SideSell {
		decimals = h.config.Chain.CollateralDecimals
	}
	return BondDTO{
		ID:             view.Bond.ID,
		Side:           string(view.Bond.Side),
		Principal:      view.Bond.PrincipalAmount.String(),
		Payout:         view.Bond.PayoutAmount.String(),
		PayoutDisplay:  displayAmount(view.Bond.PayoutAmount, decimals),
		ClaimedAmount:  view.Bond.ClaimedAmount.String(),
		Claimable:      view.Vesting.Claimable.String(),
		ClaimableShown: displayAmount(view.Vesting.Claimable, decimals),
		Progress:       view.Vesting.Progress,
		Status:         string(view.Vesting.Status),
		CanClaim:       view.Vesting.CanClaim,
		CreationTime:   view.Bond.CreationTime,
		MaturityTime:   view.Bond.MaturityTime,
	}
}

// Pool endpoint

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	overview, err := h.quoteSvc.PoolOverview(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "POOL_ERROR", err.Error())
		return
	}
	impacted := make(map[string]ImpactedReservesDTO, len(overview.Impacted))
	for side, reserves := range overview.Impacted {
		impacted[string(side)] = ImpactedReservesDTO{
			CollateralReserve: reserves.Collateral.String(),
			TokenReserve:      reserves.Token.String(),
			LastSync:          reserves.LastSync.Unix(),
		}
	}
	h.writeJSON(w, http.StatusOK, PoolDTO{
		SqrtPriceX96:      overview.SqrtPriceX96.String(),
		Liquidity:         overview.Liquidity.String(),
		CollateralReserve: overview.CollateralReserve.String(),
		TokenReserve:      overview.TokenReserve.String(),
		SpotPrice:         overview.SpotPrice.String(),
		SpotPriceDisplay:  displayAmount(overview.SpotPrice, h.config.Chain.CollateralDecimals),
		ImpactedReserves:  impacted,
		AsOf:              overview.AsOf.Unix(),
	})
}

// Live updates

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.ServeWS(w, r)
}

// Health endpoints

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Utility methods

func clientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	return r.RemoteAddr
}

// displayAmount shifts a base-unit amount by the asset's decimals for UI
// display, e.g. 1_500_000_000 at 9 decimals -> "1.5".
func displayAmount(v *big.Int, decimals int) string {
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}
