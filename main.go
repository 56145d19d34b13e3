package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-gateway/internal/api"
	"order-gateway/internal/bracket"
	"order-gateway/internal/events"
	"order-gateway/internal/filters"
	"order-gateway/internal/market"
	"order-gateway/internal/monitor"
	"order-gateway/internal/volatility"
	"order-gateway/pkg/config"
	"order-gateway/pkg/exchanges/binance/futures"
	marketdata "order-gateway/pkg/market/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[STARTUP] config load failed: %v", err)
	}
	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		log.Println("[STARTUP] WARNING: no API credentials; signed endpoints will fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Exchange clients
	exchange := futures.NewClient(futures.Config{
		APIKey:       cfg.BinanceAPIKey,
		APISecret:    cfg.BinanceAPISecret,
		Testnet:      cfg.BinanceTestnet,
		RecvWindow:   cfg.RecvWindowMs,
		MaxRetries:   cfg.MaxRetries,
		SyncInterval: cfg.TimeSyncInterval,
	})
	exchange.TimeSync().Start(ctx)

	marketClient := marketdata.NewMarketDataClient(cfg.BinanceTestnet)
	streamClient := marketdata.NewStreamClient(cfg.BinanceTestnet)

	// Core services
	bus := events.NewBus()
	metrics := monitor.NewMetrics()

	filterCache := filters.NewCache(marketClient, cfg.FilterTTL)
	validator := filters.NewValidator(filterCache)

	stopSettings, err := volatility.LoadSettings(cfg.StopsConfigPath)
	if err != nil {
		log.Fatalf("[STARTUP] stop settings load failed: %v", err)
	}
	volEngine := volatility.NewEngine(marketClient, stopSettings)

	orchestrator := bracket.New(exchange, validator, volEngine, marketClient, filterCache, bus)

	feed := &market.Feed{
		Client:  marketClient,
		Stream:  streamClient,
		Bus:     bus,
		Symbols: cfg.Symbols,
	}
	feed.Start(ctx)

	server, err := api.NewServer(api.Deps{
		Orders:      orchestrator,
		Filters:     filterCache,
		Validator:   validator,
		Vol:         volEngine,
		Accounts:    exchange,
		Candles:     marketClient,
		Ticker:      marketClient,
		Prices:      feed,
		Clock:       exchange.TimeSync(),
		Bus:         bus,
		Metrics:     metrics,
		JWTSecret:   cfg.JWTSecret,
		APIUser:     cfg.APIUser,
		APIPassword: cfg.APIPassword,
	})
	if err != nil {
		log.Fatalf("[STARTUP] server init failed: %v", err)
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router,
	}

	go func() {
		log.Printf("[STARTUP] order gateway listening on :%s (testnet=%v)", cfg.Port, cfg.BinanceTestnet)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[STARTUP] server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[SHUTDOWN] signal received, draining connections")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[SHUTDOWN] forced close: %v", err)
	}
	log.Println("[SHUTDOWN] complete")
}
