// Command quantcore wires configuration, logging, metrics, storage, the
// distributed lock, exchange adapters, strategies, and the execution core
// into a running process. It also hosts the "backtest" subcommand, which
// replays historical market data through the same execution core instead
// of connecting to a live exchange. Wiring order and signal handling follow
// the reference codebase's main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Quant-Club/Quant-Engine/internal/backtest"
	"github.com/Quant-Club/Quant-Engine/internal/config"
	"github.com/Quant-Club/Quant-Engine/internal/coordination/lock"
	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/engine"
	"github.com/Quant-Club/Quant-Engine/internal/eventbus"
	"github.com/Quant-Club/Quant-Engine/internal/exchange/binance"
	"github.com/Quant-Club/Quant-Engine/internal/httpapi"
	"github.com/Quant-Club/Quant-Engine/internal/risk"
	"github.com/Quant-Club/Quant-Engine/internal/router"
	"github.com/Quant-Club/Quant-Engine/internal/store"
	"github.com/Quant-Club/Quant-Engine/internal/strategy"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/metrics"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/sysmon"
)

// Version is set at release time.
var Version = "0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "backtest" {
		runBacktest(os.Args[2:])
		return
	}
	runLive(os.Args[1:])
}

func runLive(args []string) {
	fs := flag.NewFlagSet("quantcore", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quantcore: %v\n", err)
		os.Exit(1)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	log := logging.New(logging.Options{
		Level:   level,
		Format:  logging.Format(cfg.Logging.Format),
		LogDir:  cfg.Logging.LogDir,
		FilePfx: cfg.Logging.FilePfx,
	})
	defer log.Close()
	log.Info("quantcore starting", "version", Version)

	lk, err := lock.New(lock.Config{
		Enabled: cfg.Lock.Enabled,
		Prefix:  cfg.Lock.Prefix,
		Redis: lock.RedisConfig{
			Addr:     cfg.Lock.Redis.Addr,
			Password: cfg.Lock.Redis.Password,
			DB:       cfg.Lock.Redis.DB,
			PoolSize: cfg.Lock.Redis.PoolSize,
		},
	})
	if err != nil {
		log.Fatal("failed to build distributed lock", "error", err.Error())
	}

	var riskSink risk.Sink
	var auditSink router.AuditSink
	if cfg.Store.Driver != "" {
		auditStore, err := store.Open(store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
		if err != nil {
			log.Fatal("failed to open audit store", "error", err.Error())
		}
		defer auditStore.Close()
		riskSink = auditStore
		auditSink = auditStore
	}

	riskManager := risk.NewManager(cfg.Risk.ToLimits(), log.With("component", "risk"), riskSink)
	if !cfg.Risk.Enabled {
		riskManager.Disable()
	}

	orderRouter := router.New(riskManager, lk, log.With("component", "router"), auditSink)
	strategies := strategy.NewManager(log.With("component", "strategy-manager"))

	proc := eventbus.New(eventbus.Config{BufferSize: 4096, PublishRetries: 5}, log.With("component", "eventbus"))
	core := engine.New(proc, riskManager, orderRouter, strategies, log.With("component", "engine"))

	for name, exCfg := range cfg.Exchanges {
		if !exCfg.Enabled {
			continue
		}
		if name != "binance" {
			log.Warn("unsupported exchange in config, skipping", "exchange", name)
			continue
		}
		adapter := binance.New(binance.Config{
			APIKey:    exCfg.APIKey,
			APISecret: exCfg.APISecret,
			Testnet:   exCfg.Testnet,
		}, log.With("component", "binance"))
		adapter.SetMarketDataCallback(func(md domain.MarketData) { core.Publish(domain.NewMarketDataEvent(md)) })
		adapter.SetOrderUpdateCallback(func(u domain.OrderUpdate) { core.Publish(domain.NewOrderUpdateEvent(u)) })
		adapter.SetTradeUpdateCallback(func(t domain.TradeUpdate) { core.Publish(domain.NewTradeUpdateEvent(t)) })
		orderRouter.RegisterExchange(name, adapter)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core.Start(ctx)
	defer core.Stop()

	for _, subCfg := range cfg.Strategies {
		subs := make([]strategy.SymbolExchange, 0, len(subCfg.Subs))
		for _, entry := range subCfg.Subs {
			sym, ex := splitSubscription(entry)
			subs = append(subs, strategy.SymbolExchange{Symbol: domain.Symbol(sym), Exchange: ex})
		}
		lc := strategy.NewLifecycle(subCfg.Name, strategy.StrategyType(subCfg.Type), core, subs, strategy.Hooks{})
		strategies.Register(lc)
	}
	strategies.StartAll()
	defer strategies.StopAll()

	if cfg.Metrics.Enabled {
		go func() {
			log.Info("prometheus metrics listening", "addr", cfg.Metrics.Addr)
			if err := runMetrics(cfg.Metrics.Addr); err != nil {
				log.Warn("metrics listener stopped", "error", err.Error())
			}
		}()

		sampler, err := sysmon.New(15*time.Second, log.With("component", "sysmon"))
		if err != nil {
			log.Warn("failed to start system sampler", "error", err.Error())
		} else {
			go sampler.Run(ctx, func(s sysmon.Sample) {
				metrics.SetProcessStats(s.CPUPercent, s.MemoryMB, s.MemoryPercent)
			})
		}
	}

	var httpServer *httpapi.Server
	if cfg.HTTP.Enabled {
		httpServer = httpapi.New(orderRouter, strategies, cfg.HTTP.OperatorKey, log.With("component", "httpapi"))
		go func() {
			log.Info("http status api listening", "addr", cfg.HTTP.Addr)
			if err := runHTTP(cfg.HTTP.Addr, httpServer); err != nil {
				log.Warn("http status api stopped", "error", err.Error())
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")
}

func splitSubscription(entry string) (symbol, exchangeName string) {
	for i := len(entry) - 1; i >= 0; i-- {
		if entry[i] == '@' {
			return entry[:i], entry[i+1:]
		}
	}
	return entry, ""
}

func runBacktest(args []string) {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	dataDir := fs.String("data-dir", "data", "directory containing per-symbol CSV market data")
	initialCapital := fs.Float64("initial-capital", 10_000, "starting capital")
	symbol := fs.String("symbol", "BTCUSDT", "symbol to replay")
	outDir := fs.String("out", "backtest-results", "directory to write equity.csv and trades.csv")
	fs.Parse(args)

	cfg := backtest.Config{
		DataDir:        *dataDir,
		InitialCapital: *initialCapital,
		Symbols:        []domain.Symbol{domain.Symbol(*symbol)},
	}
	driver := backtest.NewDriver(cfg)
	if err := driver.LoadMarketDataCSV(); err != nil {
		fmt.Fprintf(os.Stderr, "quantcore backtest: %v\n", err)
		os.Exit(1)
	}

	result, err := driver.Run(noopBacktestStrategy{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "quantcore backtest: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "quantcore backtest: %v\n", err)
		os.Exit(1)
	}
	if err := backtest.WriteEquityCurveCSV(*outDir+"/equity.csv", result.EquityCurve); err != nil {
		fmt.Fprintf(os.Stderr, "quantcore backtest: %v\n", err)
		os.Exit(1)
	}
	if err := backtest.WriteTradesCSV(*outDir+"/trades.csv", result, driver.RealizedPnL()); err != nil {
		fmt.Fprintf(os.Stderr, "quantcore backtest: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("final capital: %.2f (return %.4f), sharpe %.4f, VaR95 %.4f, max drawdown %.4f, trades %d (win rate %.2f%%)\n",
		result.FinalCapital, result.TotalReturn, result.SharpeRatio, result.ValueAtRisk95, result.MaxDrawdown, result.TotalTrades, result.WinRate*100)
}

// noopBacktestStrategy satisfies backtest.Strategy for a data-only replay
// (no strategy decisions, useful for validating a CSV data set's shape).
type noopBacktestStrategy struct{}

func (noopBacktestStrategy) Initialize() error                     { return nil }
func (noopBacktestStrategy) Start() error                          { return nil }
func (noopBacktestStrategy) Stop() error                           { return nil }
func (noopBacktestStrategy) Cleanup() error                        { return nil }
func (noopBacktestStrategy) OnMarketData(domain.MarketData) error  { return nil }
func (noopBacktestStrategy) OnOrderUpdate(domain.OrderUpdate) error { return nil }
func (noopBacktestStrategy) OnTradeUpdate(domain.TradeUpdate) error { return nil }

func runHTTP(addr string, s *httpapi.Server) error {
	server := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return server.ListenAndServe()
}

func runMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return server.ListenAndServe()
}
