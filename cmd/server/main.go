/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the sale engine server. Handles configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load the sale definition (JSON file or built-in dev defaults)
  3. Initialize the store (SQLite file or in-memory)
  4. Build registry, engine, metrics, API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: sale.db)
           Use "memory" for the in-process store
  -config  Path to a JSON sale definition; omit for dev defaults

SALE DEFINITION FILE:
  {
    "payment_asset": "usd-token", "payment_decimals": 6,
    "sale_asset": "pool-token", "sale_decimals": 18,
    "receiving_account": "treasury",
    "inventory_account": "pool",
    "manager": "manager",
    "price": 105,
    "base_fee": 20,
    "global_quota_units": 150000,
    "tiers": [
      {"tier": 1, "min_units": 10, "max_units": 1000,
       "start": "2026-01-01T00:00:00Z", "deadline": "2026-02-01T00:00:00Z",
       "fee": 10, "quota_units": 50000}
    ]
  }

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  active requests, close the store, exit.
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/warp/sale-engine/api"
	"github.com/warp/sale-engine/metrics"
	"github.com/warp/sale-engine/sale"
	memstore "github.com/warp/sale-engine/sale/store"
	"github.com/warp/sale-engine/store/sqlite"
)

// saleConfig is the JSON sale definition.
type saleConfig struct {
	PaymentAsset     string `json:"payment_asset"`
	PaymentDecimals  int32  `json:"payment_decimals"`
	SaleAsset        string `json:"sale_asset"`
	SaleDecimals     int32  `json:"sale_decimals"`
	ReceivingAccount string `json:"receiving_account"`
	InventoryAccount string `json:"inventory_account"`
	Manager          string `json:"manager"`
	Price            int64  `json:"price"`
	BaseFee          int64  `json:"base_fee"`
	GlobalQuotaUnits int64      `json:"global_quota_units"`
	Tiers            []tierJSON `json:"tiers"`
}

type tierJSON struct {
	Tier       int       `json:"tier"`
	MinUnits   int64     `json:"min_units"`
	MaxUnits   int64     `json:"max_units"`
	Start      time.Time `json:"start"`
	Deadline   time.Time `json:"deadline"`
	Fee        int64     `json:"fee"`
	QuotaUnits int64     `json:"quota_units"`
}

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "sale.db", `SQLite database path, or "memory"`)
	configPath := flag.String("config", "", "JSON sale definition (omit for dev defaults)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load sale definition", zap.Error(err))
	}

	var (
		store   sale.TxStore
		closeFn func() error
	)
	if *dbPath == "memory" {
		store = memstore.NewTxMemory()
		closeFn = func() error { return nil }
	} else {
		st, err := sqlite.New(*dbPath)
		if err != nil {
			logger.Fatal("failed to initialize database", zap.Error(err))
		}
		store = st
		closeFn = st.Close
	}
	defer closeFn()

	registry, engine, err := build(cfg, store, logger)
	if err != nil {
		logger.Fatal("failed to initialize sale engine", zap.Error(err))
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	engine.Subscribe(m.Observer())

	handler := api.NewHandler(engine, registry, m, logger)
	router := api.NewRouter(handler, promReg)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("payment_asset", cfg.PaymentAsset),
			zap.String("sale_asset", cfg.SaleAsset))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// build wires the registry and engine from the sale definition.
func build(cfg saleConfig, store sale.TxStore, logger *zap.Logger) (*sale.MemoryRegistry, *sale.Engine, error) {
	defs := make([]sale.TierDef, len(cfg.Tiers))
	configs := make([]sale.TierConfig, len(cfg.Tiers))
	for i, t := range cfg.Tiers {
		defs[i] = sale.TierDef{
			Tier:      sale.TierNumber(t.Tier),
			MinAmount: sale.Units(t.MinUnits, cfg.PaymentDecimals),
			MaxAmount: sale.Units(t.MaxUnits, cfg.PaymentDecimals),
		}
		configs[i] = sale.TierConfig{
			Tier:     sale.TierNumber(t.Tier),
			Start:    t.Start,
			Deadline: t.Deadline,
			Fee:      t.Fee,
			Quota:    sale.Units(t.QuotaUnits, cfg.SaleDecimals),
		}
	}

	registry, err := sale.NewMemoryRegistry(sale.Account(cfg.Manager), defs)
	if err != nil {
		return nil, nil, err
	}

	engine, err := sale.NewEngine(sale.InitParams{
		Store:            store,
		Registry:         registry,
		PaymentAsset:     sale.AssetID(cfg.PaymentAsset),
		PaymentDecimals:  cfg.PaymentDecimals,
		SaleAsset:        sale.AssetID(cfg.SaleAsset),
		SaleDecimals:     cfg.SaleDecimals,
		ReceivingAccount: sale.Account(cfg.ReceivingAccount),
		InventoryAccount: sale.Account(cfg.InventoryAccount),
		Manager:          sale.Account(cfg.Manager),
		Price:            cfg.Price,
		BaseFee:          cfg.BaseFee,
		GlobalQuota:      sale.Units(cfg.GlobalQuotaUnits, cfg.SaleDecimals),
		Tiers:            configs,
		Logger:           logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return registry, engine, nil
}

func loadConfig(path string) (saleConfig, error) {
	if path == "" {
		return devConfig(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return saleConfig{}, err
	}
	var cfg saleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return saleConfig{}, err
	}
	return cfg, nil
}

// devConfig is the built-in definition used when no -config is given:
// three tiers, a month-long window starting now.
func devConfig() saleConfig {
	now := time.Now().UTC()
	cfg := saleConfig{
		PaymentAsset:     "usd-token",
		PaymentDecimals:  6,
		SaleAsset:        "pool-token",
		SaleDecimals:     18,
		ReceivingAccount: "treasury",
		InventoryAccount: "pool",
		Manager:          "manager",
		Price:            105,
		BaseFee:          20,
		GlobalQuotaUnits: 150_000,
	}
	deadline := now.AddDate(0, 1, 0)
	cfg.Tiers = []tierJSON{
		{Tier: 1, MinUnits: 10, MaxUnits: 1_000, Start: now, Deadline: deadline, Fee: 10, QuotaUnits: 50_000},
		{Tier: 2, MinUnits: 100, MaxUnits: 50_000, Start: now, Deadline: deadline, Fee: 15, QuotaUnits: 50_000},
		{Tier: 3, MinUnits: 1_000, MaxUnits: 500_000, Start: now, Deadline: deadline, Fee: 0, QuotaUnits: 50_000},
	}
	return cfg
}
