package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vestafi/bonding-backend/internal/api"
	"github.com/vestafi/bonding-backend/internal/config"
	"github.com/vestafi/bonding-backend/internal/engine"
	"github.com/vestafi/bonding-backend/internal/jobs"
	"github.com/vestafi/bonding-backend/internal/log"
	"github.com/vestafi/bonding-backend/internal/metrics"
	"github.com/vestafi/bonding-backend/internal/onchain"
	"github.com/vestafi/bonding-backend/internal/store"
	"github.com/vestafi/bonding-backend/internal/ws"
)

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

	logger.Infow("Starting bonding API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"network", cfg.Chain.Network,
	)

	metricsObj, metricsHandler, err := metrics.Setup("bonding-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	cache, err := store.NewCache(cfg.Cache.RedisAddr, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := cache.Ping(ctx); err != nil {
		cancel()
		logger.Fatalw("Cache ping failed", "error", err)
	}

	chainClient, err := onchain.NewClient(ctx, cfg.Chain.RPCURL, onchain.ClientOptions{
		Pool:       cfg.Chain.Pool(),
		BuyBond:    cfg.Chain.BuyBond(),
		SellBond:   cfg.Chain.SellBond(),
		Token:      cfg.Chain.Token(),
		Collateral: cfg.Chain.Collateral(),
		Metrics:    metricsObj,
	}, log.Named(logger, "chain"))
	cancel()
	if err != nil {
		logger.Fatalw("Failed to dial chain RPC", "rpc", cfg.Chain.RPCURL, "error", err)
	}
	defer chainClient.Close()

	quoteSvc := onchain.NewQuoteService(chainClient, cache, cfg, log.Named(logger, "quotes"))
	bondSvc := onchain.NewBondService(chainClient, log.Named(logger, "bonds"))
	quoteEngine := engine.New(quoteSvc, cfg.Quotes.Debounce, log.Named(logger, "engine"))

	vestingTicker := jobs.NewVestingTicker(bondSvc, cache, log.Named(logger, "vesting"), jobs.VestingTickerConfig{
		TickInterval:    cfg.Jobs.VestingTick,
		RefreshInterval: cfg.Jobs.ChainRefresh,
	})

	wsHub := ws.NewHub(cache, vestingTicker, cfg.Security.CORSAllowedOrigins, log.Named(logger, "ws"), metricsObj)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go wsHub.Run(bgCtx)
	go func() {
		if err := vestingTicker.Start(bgCtx); err != nil && err != context.Canceled {
			logger.Errorw("Vesting ticker error", "error", err)
		}
	}()

	handler := api.NewHandler(quoteSvc, bondSvc, quoteEngine, wsHub, cache, cfg, logger, metricsObj)
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, metricsHandler, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		vestingTicker.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
